package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVec(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Vec
		wantErr bool
	}{
		{name: "basic", input: "23.4,23.4", want: Vec{X: 23.4, Y: 23.4}},
		{name: "spaces", input: " 1.5 , -2 ", want: Vec{X: 1.5, Y: -2}},
		{name: "integers", input: "10,20", want: Vec{X: 10, Y: 20}},
		{name: "single value", input: "10", wantErr: true},
		{name: "three values", input: "1,2,3", wantErr: true},
		{name: "bad x", input: "abc,2", wantErr: true},
		{name: "bad y", input: "1,abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVec(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPoint))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVec_Rotate(t *testing.T) {
	v := Vec{X: 1, Y: 0}

	r := v.Rotate(90)
	assert.InDelta(t, 0, r.X, 1e-12)
	assert.InDelta(t, 1, r.Y, 1e-12)

	r = v.Rotate(-90)
	assert.InDelta(t, 0, r.X, 1e-12)
	assert.InDelta(t, -1, r.Y, 1e-12)

	r = v.Rotate(0)
	assert.Equal(t, v, r)

	r = Vec{X: 3, Y: 4}.Rotate(37)
	assert.InDelta(t, 5, r.Len(), 1e-12, "rotation preserves length")
}

func TestVec_Arithmetic(t *testing.T) {
	a := Vec{X: 1, Y: 2}
	b := Vec{X: -3, Y: 0.5}

	assert.Equal(t, Vec{X: -2, Y: 2.5}, a.Add(b))
	assert.Equal(t, Vec{X: 0.2, Y: 0.4}, a.Scale(0.2))
	assert.InDelta(t, math.Sqrt(5), a.Len(), 1e-12)
}

func TestVec_AsPoint(t *testing.T) {
	p, err := Vec{X: 100.5, Y: 200.25}.AsPoint()
	require.NoError(t, err)

	coords, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 100.5, coords.X)
	assert.Equal(t, 200.25, coords.Y)
}

func TestRing_ClosesOpenInput(t *testing.T) {
	ring, err := Ring([]Vec{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	require.NoError(t, err)

	seq := ring.Coordinates()
	require.Equal(t, 5, seq.Length())
	assert.Equal(t, seq.GetXY(0), seq.GetXY(4))
	assert.True(t, ring.IsClosed())
}

func TestRing_KeepsClosedInput(t *testing.T) {
	ring, err := Ring([]Vec{{0, 0}, {10, 0}, {10, 10}, {0, 0}})
	require.NoError(t, err)

	assert.Equal(t, 4, ring.Coordinates().Length())
}

func TestVec_AsPointRejectsNonFinite(t *testing.T) {
	for _, v := range []Vec{{X: math.NaN()}, {Y: math.Inf(1)}} {
		_, err := v.AsPoint()
		assert.ErrorIs(t, err, ErrInvalidPoint)
	}
}

func TestRing_RejectsNonFinite(t *testing.T) {
	_, err := Ring([]Vec{{0, 0}, {math.Inf(-1), 0}, {10, 10}})
	assert.Error(t, err)
}

func TestVec_MatchesXY(t *testing.T) {
	a := Vec{X: 3, Y: -4}
	b := Vec{X: 0.5, Y: 2}

	assert.Equal(t, a.XY().Add(b.XY()), a.Add(b).XY())
	assert.Equal(t, a.XY().Scale(-2), a.Scale(-2).XY())
	assert.Equal(t, a.XY().Length(), a.Len())
	assert.Equal(t, a, FromXY(a.XY()))
}
