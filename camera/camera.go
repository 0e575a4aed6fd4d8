// Package camera models the external camera state the scheduler reacts
// to and the visibility predicate that decides whether a tile must be
// refined. Camera matrix construction and projection math proper are
// not performed by this package: it only extracts frustum planes
// from a caller-supplied view-projection matrix and evaluates the
// screen-space/angular size heuristic against them.
package camera

import (
	"math"

	"github.com/paulmach/orb"

	"terrainsched/srs"
)

// Mat4 is a 4x4 matrix in row-major order: element [r*4+c] is row r,
// column c.
type Mat4 [16]float64

// Plane is the half-space {(x,y,z) : Normal·(x,y,z) + D >= 0}, with
// Normal pointing into the space the half-space keeps.
type Plane struct {
	Normal [3]float64
	D      float64
}

// Distance returns the signed distance from (x, y, z) to the plane.
// Positive means inside the half-space the plane bounds.
func (p Plane) Distance(x, y, z float64) float64 {
	return p.Normal[0]*x + p.Normal[1]*y + p.Normal[2]*z + p.D
}

// State is the camera state the scheduler is given on every
// update_camera call.
type State struct {
	Position       [3]float64
	ViewProjection Mat4
	ViewportWidth  uint32
	ViewportHeight uint32
	ClippingPlanes [6]Plane
}

// PlanesFromViewProjection extracts the six frustum clipping planes
// (left, right, bottom, top, near, far) from a view-projection matrix
// using the standard Gribb/Hartmann construction.
func PlanesFromViewProjection(m Mat4) [6]Plane {
	row := func(r int) [4]float64 {
		return [4]float64{m[r*4+0], m[r*4+1], m[r*4+2], m[r*4+3]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	add := func(a, b [4]float64) [4]float64 {
		return [4]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
	}
	sub := func(a, b [4]float64) [4]float64 {
		return [4]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	}
	normalize := func(v [4]float64) Plane {
		length := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		if length == 0 {
			length = 1
		}
		return Plane{Normal: [3]float64{v[0] / length, v[1] / length, v[2] / length}, D: v[3] / length}
	}

	return [6]Plane{
		normalize(add(r3, r0)), // left
		normalize(sub(r3, r0)), // right
		normalize(add(r3, r1)), // bottom
		normalize(sub(r3, r1)), // top
		normalize(add(r3, r2)), // near
		normalize(sub(r3, r2)), // far
	}
}

// PermissivePlanes returns six planes that never cull anything: every
// point lies inside all of them. Useful for driving the visibility
// predicate purely off screen-space error, e.g. in tests or tools that
// don't model a real frustum.
func PermissivePlanes() [6]Plane {
	huge := 1e12
	return [6]Plane{
		{Normal: [3]float64{1, 0, 0}, D: huge},
		{Normal: [3]float64{-1, 0, 0}, D: huge},
		{Normal: [3]float64{0, 1, 0}, D: huge},
		{Normal: [3]float64{0, -1, 0}, D: huge},
		{Normal: [3]float64{0, 0, 1}, D: huge},
		{Normal: [3]float64{0, 0, -1}, D: huge},
	}
}

// VisibilityConfig holds the tunables the refine predicate checks
// against.
type VisibilityConfig struct {
	// ScreenSpaceErrorThreshold is the angular-size threshold (in the
	// same units screenSpaceError returns) above which a tile must be
	// refined further.
	ScreenSpaceErrorThreshold float64
	// MinTerrainHeight and MaxTerrainHeight extrude a tile's 2D bounds
	// into the 3D box tested against the frustum planes.
	MinTerrainHeight float64
	MaxTerrainHeight float64
	// MaxZoom bounds how deep the scheduler will ever refine,
	// regardless of apparent size.
	MaxZoom uint8
}

// ShouldRefine reports whether the tile identified by id, with the
// given ground bounds, must be split into its four children to
// satisfy cam under cfg.
func ShouldRefine(id srs.TileID, bounds orb.Bound, cam State, cfg VisibilityConfig) bool {
	if id.Zoom >= cfg.MaxZoom {
		return false
	}
	if !intersectsFrustum(bounds, cfg.MinTerrainHeight, cfg.MaxTerrainHeight, cam.ClippingPlanes) {
		return false
	}
	return screenSpaceError(bounds, cam) > cfg.ScreenSpaceErrorThreshold
}

// intersectsFrustum tests the AABB formed by extruding bounds over
// [minHeight, maxHeight] against the six frustum planes by checking all
// eight corners of the box against each plane: if every corner is
// outside any single plane, the box is entirely outside the frustum.
func intersectsFrustum(bounds orb.Bound, minHeight, maxHeight float64, planes [6]Plane) bool {
	var corners [8][3]float64
	i := 0
	for _, x := range [2]float64{bounds.Min[0], bounds.Max[0]} {
		for _, y := range [2]float64{bounds.Min[1], bounds.Max[1]} {
			for _, z := range [2]float64{minHeight, maxHeight} {
				corners[i] = [3]float64{x, y, z}
				i++
			}
		}
	}

	for _, plane := range planes {
		allOutside := true
		for _, c := range corners {
			if plane.Distance(c[0], c[1], c[2]) >= 0 {
				allOutside = false
				break
			}
		}
		if allOutside {
			return false
		}
	}
	return true
}

// screenSpaceError approximates the angular size of bounds as seen
// from cam.Position: the ground width of the tile divided by its
// distance from the camera, scaled by viewport height. Larger values
// mean the tile looks bigger and should be refined further.
func screenSpaceError(bounds orb.Bound, cam State) float64 {
	centerX := (bounds.Min[0] + bounds.Max[0]) / 2
	centerY := (bounds.Min[1] + bounds.Max[1]) / 2

	dx := centerX - cam.Position[0]
	dy := centerY - cam.Position[1]
	dz := -cam.Position[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist < 1e-6 {
		dist = 1e-6
	}

	tileWidth := bounds.Max[0] - bounds.Min[0]
	angularSize := tileWidth / dist
	return angularSize * float64(cam.ViewportHeight)
}
