// Package track describes the static race surface: a loop of rounded
// rectangles that union to the drivable band, plus the finish region.
//
// Segments are laid out in surface pixels; queries take points in track
// units and scale them by PixelsPerUnit.
package track

import (
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/iamyashm/pyRace/internal/geo"
)

// cornerSteps is the number of chords used to approximate each rounded corner.
const cornerSteps = 8

// Surface answers the off-track question for a point in track units.
type Surface interface {
	IsOffTrack(p geo.Vec) bool
}

// FinishRegion answers the finish-line question for a point in track units.
type FinishRegion interface {
	IsOnFinish(p geo.Vec) bool
}

// Rect is an axis-aligned rectangle in surface pixels.
type Rect struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	W float64 `json:"w" mapstructure:"w"`
	H float64 `json:"h" mapstructure:"h"`
}

// Contains reports whether p lies inside r, bounds included.
func (r Rect) Contains(p geo.Vec) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// RoundedRect is one straight of the drivable band.
type RoundedRect struct {
	Rect   `mapstructure:",squash"`
	Radius float64 `json:"radius" mapstructure:"radius"`
}

// outline returns the vertices of the rounded rectangle, corners approximated
// by cornerSteps chords each.
func (r RoundedRect) outline() []geo.Vec {
	radius := math.Min(r.Radius, math.Min(r.W, r.H)/2)
	if radius <= 0 {
		return []geo.Vec{
			{X: r.X, Y: r.Y},
			{X: r.X + r.W, Y: r.Y},
			{X: r.X + r.W, Y: r.Y + r.H},
			{X: r.X, Y: r.Y + r.H},
		}
	}

	centers := []struct {
		c     geo.Vec
		start float64
	}{
		{geo.Vec{X: r.X + r.W - radius, Y: r.Y + radius}, -90},
		{geo.Vec{X: r.X + r.W - radius, Y: r.Y + r.H - radius}, 0},
		{geo.Vec{X: r.X + radius, Y: r.Y + r.H - radius}, 90},
		{geo.Vec{X: r.X + radius, Y: r.Y + radius}, 180},
	}

	pts := make([]geo.Vec, 0, len(centers)*(cornerSteps+1))
	for _, corner := range centers {
		for i := 0; i <= cornerSteps; i++ {
			a := (corner.start + 90*float64(i)/cornerSteps) * math.Pi / 180
			v := geo.Vec{
				X: snap(corner.c.X + radius*math.Cos(a)),
				Y: snap(corner.c.Y + radius*math.Sin(a)),
			}
			// corners share an endpoint when the radius is half the side
			if n := len(pts); n > 0 && pts[n-1] == v {
				continue
			}
			pts = append(pts, v)
		}
	}
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return pts
}

// snap rounds v to a micro-pixel so that chord endpoints computed from
// different corners compare equal.
func snap(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Layout is the serializable description of a track.
type Layout struct {
	Segments      []RoundedRect `json:"segments" mapstructure:"segments"`
	Finish        Rect          `json:"finish" mapstructure:"finish"`
	PixelsPerUnit float64       `json:"pixelsPerUnit" mapstructure:"pixelsPerUnit"`
	Width         float64       `json:"width" mapstructure:"width"`
	Height        float64       `json:"height" mapstructure:"height"`
}

// Geometry is an immutable, queryable track built from a Layout.
type Geometry struct {
	layout   Layout
	polygons []geom.Polygon
}

// New validates the layout and builds the segment polygons once.
func New(layout Layout) (*Geometry, error) {
	if layout.PixelsPerUnit <= 0 {
		return nil, fmt.Errorf("pixelsPerUnit must be positive, got %v", layout.PixelsPerUnit)
	}
	if len(layout.Segments) == 0 {
		return nil, fmt.Errorf("track has no segments")
	}

	polygons := make([]geom.Polygon, len(layout.Segments))
	for i, seg := range layout.Segments {
		if seg.W <= 0 || seg.H <= 0 {
			return nil, fmt.Errorf("segment %d has non-positive size %vx%v", i, seg.W, seg.H)
		}
		ring, err := geo.Ring(seg.outline())
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		poly := geom.NewPolygon([]geom.LineString{ring})
		if err := poly.Validate(); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		polygons[i] = poly
	}

	return &Geometry{layout: layout, polygons: polygons}, nil
}

// Layout returns the layout the geometry was built from.
func (g *Geometry) Layout() Layout {
	return g.layout
}

// IsOffTrack reports whether p (track units) is outside every segment.
func (g *Geometry) IsOffTrack(p geo.Vec) bool {
	return !g.drivablePx(p.Scale(g.layout.PixelsPerUnit))
}

// IsOnFinish reports whether p (track units) is inside the finish rectangle.
func (g *Geometry) IsOnFinish(p geo.Vec) bool {
	return g.layout.Finish.Contains(p.Scale(g.layout.PixelsPerUnit))
}

// drivablePx treats points that are not valid coordinates as off track.
func (g *Geometry) drivablePx(px geo.Vec) bool {
	p, err := px.AsPoint()
	if err != nil {
		return false
	}
	pt := p.AsGeometry()
	for i, seg := range g.layout.Segments {
		if !seg.Rect.Contains(px) {
			continue
		}
		if geom.Intersects(g.polygons[i].AsGeometry(), pt) {
			return true
		}
	}
	return false
}

// SegmentsWKT returns each segment outline as WKT, in surface pixels, for
// renderers that draw the band themselves.
func (g *Geometry) SegmentsWKT() []string {
	out := make([]string, len(g.polygons))
	for i, p := range g.polygons {
		out[i] = p.AsText()
	}
	return out
}

// Default returns the ten-straight loop the game ships with.
func Default() Layout {
	const r = 200
	seg := func(x, y, w, h float64) RoundedRect {
		return RoundedRect{Rect: Rect{X: x, Y: y, W: w, H: h}, Radius: r}
	}
	return Layout{
		Segments: []RoundedRect{
			seg(500, 500, 2000, 400),
			seg(2100, 500, 400, 1000),
			seg(2100, 1100, 2000, 400),
			seg(3700, 1100, 400, 1000),
			seg(3100, 1700, 1000, 400),
			seg(3100, 1700, 400, 1500),
			seg(3100, 2800, 1000, 400),
			seg(3700, 2800, 400, 2000),
			seg(500, 4400, 3600, 400),
			seg(500, 500, 400, 4300),
		},
		Finish:        Rect{X: 1000, Y: 500, W: 100, H: 400},
		PixelsPerUnit: 32,
		Width:         10000,
		Height:        7000,
	}
}
