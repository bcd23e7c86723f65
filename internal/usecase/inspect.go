package usecase

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.ngs.io/ncresample/internal/adapter/interp"
	"go.ngs.io/ncresample/internal/adapter/timeseries"
	"go.ngs.io/ncresample/internal/domain"
)

// ErrDatasetNotFound is returned for names that do not resolve to a dataset
// in the output directory.
var ErrDatasetNotFound = errors.New("dataset not found")

// GeometryRequest describes an input grid and a target resolution.
type GeometryRequest struct {
	Rows               int
	Cols               int
	CellSize           float64
	OriginX            float64
	OriginY            float64
	TargetCellSize     float64
	FactorTolerance    float64
	AllowPartialBlocks bool
}

// GridResponse is the JSON form of a grid definition.
type GridResponse struct {
	Rows     int        `json:"rows"`
	Cols     int        `json:"cols"`
	CellSize float64    `json:"cell_size"`
	OriginX  float64    `json:"origin_x"`
	OriginY  float64    `json:"origin_y"`
	Bounds   [4]float64 `json:"bounds"` // min lon, min lat, max lon, max lat
}

func gridResponse(g domain.GridDefinition) GridResponse {
	b := g.Bounds()
	return GridResponse{
		Rows:     g.Rows,
		Cols:     g.Cols,
		CellSize: g.CellSize,
		OriginX:  g.OriginX,
		OriginY:  g.OriginY,
		Bounds:   [4]float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
	}
}

// GeometryResponse is the outcome of resolving a geometry request.
type GeometryResponse struct {
	Mode     string       `json:"mode"`
	Factor   int          `json:"factor,omitempty"`
	Zones    int          `json:"zones,omitempty"`
	Input    GridResponse `json:"input"`
	Output   GridResponse `json:"output"`
	MaxBlock int          `json:"max_block_cells,omitempty"`
}

// DatasetSummary lists one dataset of the output directory.
type DatasetSummary struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

// VariableInfo describes a data variable of a dataset.
type VariableInfo struct {
	Name      string  `json:"name"`
	Units     string  `json:"units,omitempty"`
	LongName  string  `json:"long_name,omitempty"`
	FillValue float64 `json:"fill_value"`
}

// DatasetInfo describes a dataset of the output directory.
type DatasetInfo struct {
	Name       string             `json:"name"`
	Grid       GridResponse       `json:"grid"`
	Variables  []VariableInfo     `json:"variables"`
	Attributes []domain.Attribute `json:"attributes"`
	Steps      int                `json:"steps"`
	Start      string             `json:"start,omitempty"`
	End        string             `json:"end,omitempty"`
}

// SeriesRequest asks for the time series of one point.
type SeriesRequest struct {
	Name     string
	Variable string
	Lat      float64
	Lon      float64
	Method   interp.Method
}

// SeriesPoint is one sample of a point series. Value is nil for no-data.
type SeriesPoint struct {
	Time  string   `json:"time"`
	Value *float64 `json:"value"`
}

// SeriesResponse is the time series of one point.
type SeriesResponse struct {
	Dataset  string        `json:"dataset"`
	Variable string        `json:"variable"`
	Units    string        `json:"units,omitempty"`
	Lat      float64       `json:"lat"`
	Lon      float64       `json:"lon"`
	Method   interp.Method `json:"method"`
	Points   []SeriesPoint `json:"points"`
}

// InspectUseCase answers read-only questions about grids and produced datasets.
type InspectUseCase struct {
	outputDir string
}

// NewInspectUseCase creates an inspection use case over outputDir.
func NewInspectUseCase(outputDir string) *InspectUseCase {
	return &InspectUseCase{outputDir: outputDir}
}

// Geometry resolves the output grid for a request without touching any file.
func (uc *InspectUseCase) Geometry(req GeometryRequest) (*GeometryResponse, error) {
	input, err := domain.NewGridDefinition(req.Rows, req.Cols, req.CellSize, req.OriginX, req.OriginY)
	if err != nil {
		return nil, err
	}
	mode, err := domain.Resolve(input, req.TargetCellSize, domain.ResolveOptions{
		FactorTolerance:    req.FactorTolerance,
		AllowPartialBlocks: req.AllowPartialBlocks,
	})
	if err != nil {
		return nil, err
	}
	resp := &GeometryResponse{
		Mode:   mode.String(),
		Input:  gridResponse(input),
		Output: gridResponse(mode.OutputGrid()),
	}
	if up, ok := mode.(domain.Upscale); ok {
		resp.Factor = up.Factor
		resp.Zones = up.Zones.NumZones()
		resp.MaxBlock = up.Factor * up.Factor
	}
	return resp, nil
}

// ListDatasets returns the netCDF files of the output directory by name.
func (uc *InspectUseCase) ListDatasets() ([]DatasetSummary, error) {
	entries, err := os.ReadDir(uc.outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []DatasetSummary{}, nil
		}
		return nil, &domain.IOError{Op: "list datasets", Path: uc.outputDir, Err: err}
	}
	out := []DatasetSummary{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nc") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, DatasetSummary{Name: e.Name(), SizeBytes: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (uc *InspectUseCase) open(name string) (*timeseries.Dataset, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".nc") {
		return nil, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	path := filepath.Join(uc.outputDir, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	return timeseries.Open(path)
}

// Describe returns the grid, variables, attributes and time range of a dataset.
func (uc *InspectUseCase) Describe(name string) (*DatasetInfo, error) {
	d, err := uc.open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close() }()
	return describe(name, d), nil
}

// DescribeFile is Describe for a dataset at an arbitrary path.
func DescribeFile(path string) (*DatasetInfo, error) {
	d, err := timeseries.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close() }()
	return describe(filepath.Base(path), d), nil
}

func describe(name string, d *timeseries.Dataset) *DatasetInfo {
	info := &DatasetInfo{
		Name:       name,
		Grid:       gridResponse(d.Grid()),
		Attributes: d.Attributes(),
		Steps:      d.Len(),
	}
	for _, v := range d.Variables() {
		vi := VariableInfo{Name: v, FillValue: d.FillValue(v)}
		vi.Units, _ = d.VariableAttribute(v, "units")
		vi.LongName, _ = d.VariableAttribute(v, "long_name")
		info.Variables = append(info.Variables, vi)
	}
	var first, last time.Time
	for _, t := range d.Times() {
		if t.IsZero() {
			continue
		}
		if first.IsZero() {
			first = t
		}
		last = t
	}
	if !first.IsZero() {
		info.Start = first.Format(time.DateOnly)
		info.End = last.Format(time.DateOnly)
	}
	return info
}

// Series samples a variable at one point for every record of a dataset.
func (uc *InspectUseCase) Series(req SeriesRequest) (*SeriesResponse, error) {
	if req.Lat < -90 || req.Lat > 90 {
		return nil, domain.Configf("lat", "must be between -90 and 90")
	}
	if req.Lon < -180 || req.Lon > 360 {
		return nil, domain.Configf("lon", "must be between -180 and 360")
	}
	if req.Method == "" {
		req.Method = interp.Bilinear
	}
	d, err := uc.open(req.Name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close() }()

	variable := req.Variable
	if variable == "" {
		vars := d.Variables()
		if len(vars) != 1 {
			return nil, domain.Configf("variable", "required, dataset has %d variables", len(vars))
		}
		variable = vars[0]
	}
	g := d.Grid()
	if _, _, ok := g.Locate(req.Lat, req.Lon); !ok {
		return nil, domain.Configf("lat/lon", "(%g, %g) is outside the dataset grid", req.Lat, req.Lon)
	}

	resp := &SeriesResponse{
		Dataset:  req.Name,
		Variable: variable,
		Lat:      req.Lat,
		Lon:      req.Lon,
		Method:   req.Method,
		Points:   make([]SeriesPoint, 0, d.Len()),
	}
	resp.Units, _ = d.VariableAttribute(variable, "units")
	for i, t := range d.Times() {
		if t.IsZero() {
			continue
		}
		f, err := d.ReadStep(variable, i)
		if err != nil {
			return nil, err
		}
		p := SeriesPoint{Time: t.Format(time.DateOnly)}
		if v, ok := interp.SampleAt(f, g, req.Lat, req.Lon, req.Method); ok {
			p.Value = &v
		}
		resp.Points = append(resp.Points, p)
	}
	return resp, nil
}
