package series

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

func coordinate(g api.Group, names ...string) ([]float64, error) {
	for _, name := range names {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			continue
		}
		raw, err := vg.Values()
		if err != nil {
			return nil, err
		}
		return toFloat64s(raw)
	}
	return nil, fmt.Errorf("coordinate variable not found (tried: %v)", names)
}

// toFloat64s converts a 1D numeric slice returned by the decoder.
func toFloat64s(raw interface{}) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type %T", raw)
	}
}

type number interface {
	~float64 | ~float32 | ~int64 | ~int32 | ~int16 | ~int8 | ~uint8
}

func convert[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

func flatten3[T number](in [][][]T) ([]float64, int, int) {
	if len(in) == 0 || len(in[0]) == 0 {
		return nil, 0, 0
	}
	rows, cols := len(in[0]), len(in[0][0])
	out := make([]float64, 0, rows*cols)
	for _, row := range in[0] {
		for _, x := range row {
			out = append(out, float64(x))
		}
	}
	return out, rows, cols
}

// flattenSlice converts a single-step (1, rows, cols) slice to a flat array.
func flattenSlice(raw interface{}) ([]float64, int, int, error) {
	var (
		out        []float64
		rows, cols int
	)
	switch v := raw.(type) {
	case [][][]float32:
		out, rows, cols = flatten3(v)
	case [][][]float64:
		out, rows, cols = flatten3(v)
	case [][][]int32:
		out, rows, cols = flatten3(v)
	case [][][]int16:
		out, rows, cols = flatten3(v)
	case [][][]int8:
		out, rows, cols = flatten3(v)
	case [][][]uint8:
		out, rows, cols = flatten3(v)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported slice type %T", raw)
	}
	if rows*cols != len(out) {
		return nil, 0, 0, fmt.Errorf("ragged slice of %d values for %dx%d", len(out), rows, cols)
	}
	return out, rows, cols, nil
}

// attrFloat reads the first value of a numeric attribute, scalar or vector.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint8:
		return float64(v), true
	}
	vals, err := toFloat64s(raw)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func isFill(x float64, fill []float64) bool {
	for _, fv := range fill {
		// Fill values of float variables are stored in single precision.
		if x == fv || float32(x) == float32(fv) {
			return true
		}
	}
	return false
}

func flipRows(values []float64, rows, cols int) {
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := values[top*cols : (top+1)*cols]
		b := values[bottom*cols : (bottom+1)*cols]
		for c := range a {
			a[c], b[c] = b[c], a[c]
		}
	}
}

func transpose(values []float64, rows, cols int) []float64 {
	out := make([]float64, len(values))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = values[i*cols+j]
		}
	}
	return out
}
