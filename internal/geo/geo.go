package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Track space is flat: X grows to the right, Y grows downward, exactly like the
// drawing surface the renderer blits. Headings are degrees counter-clockwise
// as seen on screen.

// ErrInvalidPoint is returned when a point string cannot be parsed
var ErrInvalidPoint = errors.New("invalid point provided")

// Vec is a 2D point or vector in track units.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FromXY converts a simplefeatures coordinate pair into a Vec.
func FromXY(xy geom.XY) Vec {
	return Vec{X: xy.X, Y: xy.Y}
}

// XY converts v into a simplefeatures coordinate pair.
func (v Vec) XY() geom.XY {
	return geom.XY{X: v.X, Y: v.Y}
}

// Add returns v + o.
func (v Vec) Add(o Vec) Vec {
	return FromXY(v.XY().Add(o.XY()))
}

// Scale returns v * f.
func (v Vec) Scale(f float64) Vec {
	return FromXY(v.XY().Scale(f))
}

// Len returns the euclidean length of v.
func (v Vec) Len() float64 {
	return v.XY().Length()
}

// Rotate returns v rotated by deg degrees.
func (v Vec) Rotate(deg float64) Vec {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	return Vec{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// AsPoint converts v into a simplefeatures point. NaN or infinite
// components are rejected.
func (v Vec) AsPoint() (geom.Point, error) {
	pt := v.XY().AsPoint()
	if err := pt.Validate(); err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return pt, nil
}

// ParseVec parses a string in the format "x,y" into a Vec.
func ParseVec(s string) (Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Vec{}, ErrInvalidPoint
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Vec{}, ErrInvalidPoint
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Vec{}, ErrInvalidPoint
	}
	return Vec{X: x, Y: y}, nil
}

// Ring builds a closed simplefeatures ring from the given vertices.
// The first vertex is repeated at the end if the input is open.
func Ring(points []Vec) (geom.LineString, error) {
	flat := make([]float64, 0, (len(points)+1)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	if n := len(points); n > 0 && points[0] != points[n-1] {
		flat = append(flat, points[0].X, points[0].Y)
	}
	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err := ring.Validate(); err != nil {
		return geom.LineString{}, fmt.Errorf("invalid ring: %w", err)
	}
	return ring, nil
}
