package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"terrainsched/entities"
	"terrainsched/srs"
)

func TestBusDeliversInOrderToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	var calls []string

	bus.OnTileRequested(func(e TileRequested) { calls = append(calls, "first:"+e.Side.String()) })
	bus.OnTileRequested(func(e TileRequested) { calls = append(calls, "second:"+e.Side.String()) })

	id := srs.TileID{Zoom: 1, X: 0, Y: 0}
	bus.PublishTileRequested(id, entities.Height)
	bus.PublishTileRequested(id, entities.Ortho)

	assert.Equal(t, []string{
		"first:height", "second:height",
		"first:ortho", "second:ortho",
	}, calls)
}

func TestBusTileReadyCarriesTheTile(t *testing.T) {
	bus := NewBus()
	var got entities.ReadyTile
	bus.OnTileReady(func(e TileReady) { got = e.Tile })

	tile := entities.ReadyTile{ID: srs.TileID{Zoom: 2, X: 1, Y: 1}, HeightMapBytes: []byte("h"), OrthophotoBytes: []byte("o")}
	bus.PublishTileReady(tile)

	assert.Equal(t, tile, got)
}

func TestBusWithNoSubscribersDoesNotPanic(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.PublishTileExpired(srs.TileID{})
		bus.PublishCancelTileRequest(srs.TileID{})
	})
}
