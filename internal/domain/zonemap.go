package domain

// ZoneMap assigns every input cell to the output cell it aggregates into.
// The zone id of an output cell is its row-major index in the output grid.
// A ZoneMap is immutable once built.
type ZoneMap struct {
	input  GridDefinition
	output GridDefinition
	factor int
	ids    []int32
	sizes  []int
}

// BuildZoneMap partitions input into blocks of factor×factor cells.
// Ids are assigned on the output grid first, then expanded over each block.
// Blocks on the south and east edges may be partial when the output grid
// extends past the input.
func BuildZoneMap(input, output GridDefinition, factor int) (*ZoneMap, error) {
	if factor < 1 {
		return nil, Configf("factor", "zone factor must be >= 1, got %d", factor)
	}
	if output.Rows*factor < input.Rows || output.Cols*factor < input.Cols {
		return nil, Configf("grid", "output grid %dx%d with factor %d does not cover input %dx%d",
			output.Rows, output.Cols, factor, input.Rows, input.Cols)
	}

	// Stage 1: one id per output cell.
	coarse := make([]int32, output.Cells())
	for i := range coarse {
		coarse[i] = int32(i) //nolint:gosec // G115: output cells are bounded by int32 raster sizes.
	}

	// Stage 2: expand each id over its block of input cells.
	zm := &ZoneMap{
		input:  input,
		output: output,
		factor: factor,
		ids:    make([]int32, input.Cells()),
		sizes:  make([]int, output.Cells()),
	}
	for r := 0; r < input.Rows; r++ {
		or := r / factor
		for c := 0; c < input.Cols; c++ {
			id := coarse[output.Index(or, c/factor)]
			zm.ids[input.Index(r, c)] = id
			zm.sizes[id]++
		}
	}
	return zm, nil
}

// Zone returns the zone id of input cell (r, c).
func (z *ZoneMap) Zone(r, c int) int { return int(z.ids[z.input.Index(r, c)]) }

// ZoneAt returns the zone id of the input cell at linear index i.
func (z *ZoneMap) ZoneAt(i int) int { return int(z.ids[i]) }

// NumZones returns the number of zones, equal to the output cell count.
func (z *ZoneMap) NumZones() int { return len(z.sizes) }

// ZoneSize returns the number of input cells in zone id.
func (z *ZoneMap) ZoneSize(id int) int { return z.sizes[id] }

// Factor returns the block edge length in input cells.
func (z *ZoneMap) Factor() int { return z.factor }

// InputGrid returns the grid the zone ids are defined on.
func (z *ZoneMap) InputGrid() GridDefinition { return z.input }

// OutputGrid returns the grid whose cells are the zones.
func (z *ZoneMap) OutputGrid() GridDefinition { return z.output }
