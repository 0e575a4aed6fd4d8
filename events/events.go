// Package events is the scheduler's typed, synchronous event bus: a
// generalization of a string-keyed pub/sub dispatcher to a small, fixed
// set of named output channels, each carrying a concrete event type
// instead of an interface{} payload. Delivery is in-order per sink and
// fully synchronous, matching the single-threaded cooperative model
// this module's scheduler requires: emitting an event simply calls
// every subscribed handler in registration order, on the calling
// goroutine.
package events

import (
	"github.com/google/uuid"

	"terrainsched/entities"
	"terrainsched/srs"
)

// TileRequested is emitted once per (id, side) transition into
// InTransit.
type TileRequested struct {
	EventID uuid.UUID
	TileID  srs.TileID
	Side    entities.Side
}

// TileReady is emitted on promotion to OnGpu.
type TileReady struct {
	EventID uuid.UUID
	Tile    entities.ReadyTile
}

// TileExpired is emitted on removal of an OnGpu node.
type TileExpired struct {
	EventID uuid.UUID
	TileID  srs.TileID
}

// CancelTileRequest is emitted when an InTransit/WaitingForSiblings
// node is reduced out.
type CancelTileRequest struct {
	EventID uuid.UUID
	TileID  srs.TileID
}

// Bus fans each event type out to its subscribed handlers, in
// registration order. A Bus is not safe for concurrent Subscribe/emit
// calls, matching the scheduler's single-threaded model; nothing in
// this package spawns a goroutine.
type Bus struct {
	onTileRequested      []func(TileRequested)
	onTileReady          []func(TileReady)
	onTileExpired        []func(TileExpired)
	onCancelTileRequest  []func(CancelTileRequest)
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnTileRequested subscribes handler to tileRequested events.
func (b *Bus) OnTileRequested(handler func(TileRequested)) {
	b.onTileRequested = append(b.onTileRequested, handler)
}

// OnTileReady subscribes handler to tileReady events.
func (b *Bus) OnTileReady(handler func(TileReady)) {
	b.onTileReady = append(b.onTileReady, handler)
}

// OnTileExpired subscribes handler to tileExpired events.
func (b *Bus) OnTileExpired(handler func(TileExpired)) {
	b.onTileExpired = append(b.onTileExpired, handler)
}

// OnCancelTileRequest subscribes handler to cancelTileRequest events.
func (b *Bus) OnCancelTileRequest(handler func(CancelTileRequest)) {
	b.onCancelTileRequest = append(b.onCancelTileRequest, handler)
}

// PublishTileRequested emits a tileRequested event for (id, side).
func (b *Bus) PublishTileRequested(id srs.TileID, side entities.Side) {
	e := TileRequested{EventID: uuid.New(), TileID: id, Side: side}
	for _, h := range b.onTileRequested {
		h(e)
	}
}

// PublishTileReady emits a tileReady event.
func (b *Bus) PublishTileReady(tile entities.ReadyTile) {
	e := TileReady{EventID: uuid.New(), Tile: tile}
	for _, h := range b.onTileReady {
		h(e)
	}
}

// PublishTileExpired emits a tileExpired event.
func (b *Bus) PublishTileExpired(id srs.TileID) {
	e := TileExpired{EventID: uuid.New(), TileID: id}
	for _, h := range b.onTileExpired {
		h(e)
	}
}

// PublishCancelTileRequest emits a cancelTileRequest event.
func (b *Bus) PublishCancelTileRequest(id srs.TileID) {
	e := CancelTileRequest{EventID: uuid.New(), TileID: id}
	for _, h := range b.onCancelTileRequest {
		h(e)
	}
}
