package track

import (
	"fmt"
	"math"

	"github.com/iamyashm/pyRace/internal/geo"
)

// Raster is an occupancy grid sampled once from a Geometry, the same way a
// renderer would read back pixel colors from the drawn track. Corner behavior
// is only as precise as the cell size.
type Raster struct {
	cells         []bool
	cols, rows    int
	step          float64
	pixelsPerUnit float64
	finish        Rect
}

// Rasterize samples g on a grid of step-pixel cells. Each cell takes the
// value at its top-left corner.
func Rasterize(g *Geometry, step float64) (*Raster, error) {
	if step <= 0 {
		return nil, fmt.Errorf("raster step must be positive, got %v", step)
	}
	layout := g.Layout()
	if layout.Width <= 0 || layout.Height <= 0 {
		return nil, fmt.Errorf("layout has no surface size")
	}

	cols := int(math.Ceil(layout.Width / step))
	rows := int(math.Ceil(layout.Height / step))
	r := &Raster{
		cells:         make([]bool, cols*rows),
		cols:          cols,
		rows:          rows,
		step:          step,
		pixelsPerUnit: layout.PixelsPerUnit,
		finish:        layout.Finish,
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			px := geo.Vec{X: float64(col) * step, Y: float64(row) * step}
			r.cells[row*cols+col] = g.drivablePx(px)
		}
	}
	return r, nil
}

// IsOffTrack reports whether the cell under p (track units) is off the band.
// Points beyond the surface, or not finite, are off-track.
func (r *Raster) IsOffTrack(p geo.Vec) bool {
	px := p.Scale(r.pixelsPerUnit)
	if _, err := px.AsPoint(); err != nil || px.X < 0 || px.Y < 0 {
		return true
	}
	col := int(px.X / r.step)
	row := int(px.Y / r.step)
	if col >= r.cols || row >= r.rows {
		return true
	}
	return !r.cells[row*r.cols+col]
}

// IsOnFinish uses the exact finish rectangle; only the band is rasterized.
func (r *Raster) IsOnFinish(p geo.Vec) bool {
	return r.finish.Contains(p.Scale(r.pixelsPerUnit))
}

// Coverage returns the fraction of drivable cells.
func (r *Raster) Coverage() float64 {
	if len(r.cells) == 0 {
		return 0
	}
	n := 0
	for _, c := range r.cells {
		if c {
			n++
		}
	}
	return float64(n) / float64(len(r.cells))
}
