package domain

import (
	"math"
	"strings"
)

// DefaultWeightEpsilon is the smallest total area weight for which a zone mean
// is defined.
const DefaultWeightEpsilon = 1e-39

// Reducer selects how the input cells of a zone combine into one value.
type Reducer string

const (
	// ReducerMean is the area-weighted mean sum(v*a)/sum(a).
	ReducerMean Reducer = "mean"
	// ReducerTotal is the area-weighted total sum(v*a).
	ReducerTotal Reducer = "total"
	// ReducerMax is the block maximum; areas are ignored.
	ReducerMax Reducer = "max"
	// ReducerMin is the block minimum; areas are ignored.
	ReducerMin Reducer = "min"
)

// ParseReducer maps a configuration string to a Reducer.
func ParseReducer(s string) (Reducer, error) {
	switch r := Reducer(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return ReducerMean, nil
	case ReducerMean, ReducerTotal, ReducerMax, ReducerMin:
		return r, nil
	case "average", "avg":
		return ReducerMean, nil
	case "sum":
		return ReducerTotal, nil
	default:
		return "", Configf("reducer", "unknown reducer %q", s)
	}
}

func (r Reducer) weighted() bool { return r == ReducerMean || r == ReducerTotal }

// EngineOptions tunes the aggregation engine.
type EngineOptions struct {
	Reducer Reducer
	// Epsilon is the minimum weight sum; zero means DefaultWeightEpsilon.
	Epsilon float64
}

// Engine turns one input field into one output field according to the
// resample mode fixed at setup. It holds no per-step state.
type Engine struct {
	mode    ResampleMode
	area    []float64
	reducer Reducer
	epsilon float64

	// Scratch buffers reused between steps. For the mean, sum holds
	// area-weighted deviations from ref, the first valid value of the zone,
	// so a constant zone yields ref exactly.
	sum  []float64
	wsum []float64
	ref  []float64
	cnt  []int
}

// NewEngine validates the cell-area field against the zone map and returns an
// engine. The area field is ignored when downscaling.
func NewEngine(mode ResampleMode, area Field, opts EngineOptions) (*Engine, error) {
	reducer := opts.Reducer
	if reducer == "" {
		reducer = ReducerMean
	}
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultWeightEpsilon
	}
	e := &Engine{mode: mode, reducer: reducer, epsilon: eps}

	up, ok := mode.(Upscale)
	if !ok {
		return e, nil
	}
	if err := area.CheckShape("cell area", up.Zones.InputGrid()); err != nil {
		return nil, err
	}
	// No-data and negative areas carry no weight.
	e.area = make([]float64, len(area.Values))
	for i, a := range area.Values {
		if area.IsNoData(a) || a < 0 || math.IsInf(a, 0) {
			continue
		}
		e.area[i] = a
	}
	n := up.Zones.NumZones()
	e.sum = make([]float64, n)
	e.wsum = make([]float64, n)
	e.ref = make([]float64, n)
	e.cnt = make([]int, n)
	return e, nil
}

// Mode returns the resample mode of the engine.
func (e *Engine) Mode() ResampleMode { return e.mode }

// Reducer returns the configured reducer.
func (e *Engine) Reducer() Reducer { return e.reducer }

// Apply aggregates in onto the output grid. When every input cell is no-data
// it returns an all-no-data field together with ErrAllMissing.
func (e *Engine) Apply(in Field) (Field, error) {
	switch m := e.mode.(type) {
	case Upscale:
		return e.upscale(m.Zones, in)
	case Downscale:
		if err := in.CheckShape("input field", m.Target); err != nil {
			return Field{}, err
		}
		if in.AllMissing() {
			return in, ErrAllMissing
		}
		return in, nil
	default:
		return Field{}, Configf("mode", "unsupported resample mode %T", e.mode)
	}
}

func (e *Engine) upscale(z *ZoneMap, in Field) (Field, error) {
	if err := in.CheckShape("input field", z.InputGrid()); err != nil {
		return Field{}, err
	}
	og := z.OutputGrid()
	out := NewField(og.Rows, og.Cols, in.NoData)

	for i := range e.sum {
		e.sum[i], e.wsum[i], e.ref[i], e.cnt[i] = 0, 0, 0, 0
	}

	valid := 0
	for i, v := range in.Values {
		if in.IsNoData(v) {
			continue
		}
		valid++
		id := z.ZoneAt(i)
		switch e.reducer {
		case ReducerMax:
			if e.cnt[id] == 0 || v > e.sum[id] {
				e.sum[id] = v
			}
		case ReducerMin:
			if e.cnt[id] == 0 || v < e.sum[id] {
				e.sum[id] = v
			}
		case ReducerTotal:
			a := e.area[i]
			e.sum[id] += v * a
			e.wsum[id] += a
		default:
			if e.cnt[id] == 0 {
				e.ref[id] = v
			}
			a := e.area[i]
			e.sum[id] += a * (v - e.ref[id])
			e.wsum[id] += a
		}
		e.cnt[id]++
	}
	if valid == 0 {
		return out, ErrAllMissing
	}

	for id := range out.Values {
		if e.cnt[id] == 0 {
			continue
		}
		if !e.reducer.weighted() {
			out.Values[id] = e.sum[id]
			continue
		}
		if e.wsum[id] <= e.epsilon {
			continue
		}
		if e.reducer == ReducerTotal {
			out.Values[id] = e.sum[id]
		} else {
			out.Values[id] = e.ref[id] + e.sum[id]/e.wsum[id]
		}
	}
	return out, nil
}
