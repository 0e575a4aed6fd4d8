// Package entities holds the small value types the scheduler passes
// across its boundaries: tile bounds, tile status, payload side, node
// data, and ready tiles.
package entities

import (
	"github.com/paulmach/orb"

	"terrainsched/srs"
)

// Bounds is a tile's Web Mercator extent, in meters.
type Bounds = orb.Bound

// TileStatus is the lifecycle state of a single TileID within the
// scheduler's tree. It is always one of the named constants below,
// modeled as a tagged sum rather than a bare integer.
type TileStatus int

const (
	// Uninitialised is the status of a freshly created node that has
	// not yet been requested.
	Uninitialised TileStatus = iota
	// Unavailable is terminal until the node is removed by reduction
	// and its parent later refines again.
	Unavailable
	// InTransit means both load requests have been issued and neither
	// payload has arrived yet.
	InTransit
	// WaitingForSiblings means exactly one of the two payloads has
	// arrived and is buffered in the pairing buffer.
	WaitingForSiblings
	// OnGpu means both payloads arrived, were paired, and the result
	// was handed off to the GPU tile manager.
	OnGpu
)

func (s TileStatus) String() string {
	switch s {
	case Uninitialised:
		return "Uninitialised"
	case Unavailable:
		return "Unavailable"
	case InTransit:
		return "InTransit"
	case WaitingForSiblings:
		return "WaitingForSiblings"
	case OnGpu:
		return "OnGpu"
	default:
		return "Unknown"
	}
}

// Side identifies one of the two payload kinds a tile is made of.
type Side int

const (
	Height Side = iota
	Ortho
)

func (s Side) String() string {
	if s == Height {
		return "height"
	}
	return "ortho"
}

// NodeData is the payload carried by every quadtree node the scheduler
// maintains.
type NodeData struct {
	ID     srs.TileID
	Status TileStatus
}

// ReadyTile is a fully-formed, GPU-uploadable record. It is only ever
// constructed once both the height and ortho payloads for a TileID are
// present.
type ReadyTile struct {
	ID              srs.TileID
	Bounds          Bounds
	HeightMapBytes  []byte
	OrthophotoBytes []byte
}
