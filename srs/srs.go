// Package srs implements the Web Mercator (EPSG:3857) tile-id algebra
// the scheduler is built on: zoom/xy identity, ancestry, bounds,
// subtile enumeration, and overlap tests. See
// original_source/alpine_renderer/srs.cpp for the reference this
// package generalizes into Go.
package srs

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the radius, in meters, of the sphere Web Mercator
// projects onto.
const EarthRadius = 6378137.0

// EarthCircumference is the circumference, in meters, of EarthRadius.
const EarthCircumference = 2 * math.Pi * EarthRadius

// OriginShift is the distance, in meters, from the Web Mercator origin
// to the edge of the projected square (half the circumference).
const OriginShift = EarthCircumference / 2

// MaxZoom is the largest zoom level a TileID may carry. A TileID with
// Zoom >= MaxZoom is invalid.
const MaxZoom = 100

// TileID identifies a quadtree node: a zoom level and the tile's x/y
// index within that level. The root is TileID{}.
type TileID struct {
	Zoom uint8
	X, Y uint32
}

// Root returns the identity of the top of the quadtree, (0, 0, 0).
func Root() TileID {
	return TileID{}
}

// Valid reports whether t.Zoom is within the representable range.
func (t TileID) Valid() bool {
	return t.Zoom < MaxZoom
}

func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Subtiles returns t's four children in fixed SW, SE, NW, NE order
// (dy outer, dx inner), matching the quadtree package's child
// ordering.
func Subtiles(t TileID) [4]TileID {
	z := t.Zoom + 1
	x, y := t.X*2, t.Y*2
	return [4]TileID{
		{z, x + 0, y + 0}, // SW
		{z, x + 1, y + 0}, // SE
		{z, x + 0, y + 1}, // NW
		{z, x + 1, y + 1}, // NE
	}
}

// Parent returns t's parent and true, or the zero TileID and false if
// t is the root.
func Parent(t TileID) (TileID, bool) {
	if t.Zoom == 0 {
		return TileID{}, false
	}
	return TileID{Zoom: t.Zoom - 1, X: t.X / 2, Y: t.Y / 2}, true
}

// AncestorAt returns the ancestor of t at the given zoom level. zoom
// must be <= t.Zoom.
func AncestorAt(t TileID, zoom uint8) TileID {
	if zoom >= t.Zoom {
		return TileID{Zoom: zoom, X: t.X, Y: t.Y}
	}
	shift := t.Zoom - zoom
	return TileID{Zoom: zoom, X: t.X >> shift, Y: t.Y >> shift}
}

// Overlap reports whether a and b occupy overlapping ground: true when
// one is an ancestor of (or identical to) the other.
func Overlap(a, b TileID) bool {
	lo, hi := a, b
	if lo.Zoom > hi.Zoom {
		lo, hi = hi, lo
	}
	return AncestorAt(hi, lo.Zoom) == lo
}

// Bounds returns the Web Mercator bounds of t, in meters.
func Bounds(t TileID) orb.Bound {
	tilesPerAxis := math.Ldexp(1, int(t.Zoom)) // 2^zoom
	width := EarthCircumference / tilesPerAxis
	minX := -OriginShift + float64(t.X)*width
	minY := -OriginShift + float64(t.Y)*width
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + width, minY + width},
	}
}
