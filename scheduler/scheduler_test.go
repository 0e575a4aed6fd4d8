package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrainsched/camera"
	"terrainsched/events"
	"terrainsched/srs"
)

func newTestScheduler(t *testing.T, frontiers ...[]srs.TileID) (*Scheduler, *events.Bus, *recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := newRecorder(bus)

	call := 0
	opt := WithFrontierFunc(func(camera.State) []srs.TileID {
		require.Less(t, call, len(frontiers), "UpdateCamera called more times than frontiers were supplied")
		f := frontiers[call]
		call++
		return f
	})

	sched := New(bus, Config{Visibility: camera.VisibilityConfig{MaxZoom: 20, ScreenSpaceErrorThreshold: 1}}, opt)
	return sched, bus, rec
}

// recorder subscribes to every channel on a bus and keeps an
// order-preserving log of what it saw, in the same string shape
// regardless of event kind, so tests can assert on ordering cheaply.
type recorder struct {
	log []string
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.OnTileRequested(func(e events.TileRequested) {
		r.log = append(r.log, "requested:"+e.TileID.String()+":"+e.Side.String())
	})
	bus.OnTileReady(func(e events.TileReady) {
		r.log = append(r.log, "ready:"+e.Tile.ID.String())
	})
	bus.OnTileExpired(func(e events.TileExpired) {
		r.log = append(r.log, "expired:"+e.TileID.String())
	})
	bus.OnCancelTileRequest(func(e events.CancelTileRequest) {
		r.log = append(r.log, "cancel:"+e.TileID.String())
	})
	return r
}

func TestColdStartRequestsRootOnBothSides(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root})

	sched.UpdateCamera(camera.State{})

	assert.Equal(t, []string{
		"requested:0/0/0:height",
		"requested:0/0/0:ortho",
	}, rec.log)
	assert.Equal(t, 1, sched.NumberOfTilesInTransit())
	assert.NoError(t, sched.CheckConsistency())
}

func TestUpdateCameraIsIdempotent(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root}, []srs.TileID{root})

	sched.UpdateCamera(camera.State{})
	firstLen := len(rec.log)
	sched.UpdateCamera(camera.State{})

	assert.Equal(t, firstLen, len(rec.log), "repeating the same camera state must not emit new events")
	assert.Equal(t, 1, sched.NumberOfTilesInTransit())
}

func TestOrthoUnavailableAfterHeightArrivalSuppressesTileReady(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root})
	sched.UpdateCamera(camera.State{})

	sched.ReceiveHeightTile(root, []byte("h"))
	assert.Equal(t, 1, sched.NumberOfWaitingHeightTiles())

	sched.NotifyUnavailableOrtho(root)
	assert.Equal(t, 0, sched.NumberOfWaitingHeightTiles())
	assert.Equal(t, 0, sched.NumberOfWaitingOrthoTiles())

	for _, e := range rec.log {
		assert.NotContains(t, e, "ready:")
	}
	assert.NoError(t, sched.CheckConsistency())
}

func TestBothSidesArrivingProducesTileReadyAndGpuTile(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root})
	sched.UpdateCamera(camera.State{})

	sched.ReceiveOrthoTile(root, []byte("o"))
	sched.ReceiveHeightTile(root, []byte("h"))

	assert.Contains(t, rec.log, "ready:0/0/0")
	assert.Equal(t, 0, sched.NumberOfWaitingHeightTiles())
	assert.Equal(t, 0, sched.NumberOfWaitingOrthoTiles())

	gpu := sched.GpuTiles()
	_, onGpu := gpu[root]
	assert.True(t, onGpu)
	assert.NoError(t, sched.CheckConsistency())
}

func TestRefinementSplitsRootAndRequestsAllFourChildren(t *testing.T) {
	root := srs.Root()
	children := srs.Subtiles(root)
	sched, _, rec := newTestScheduler(t, children[:])

	sched.UpdateCamera(camera.State{})

	var want []string
	for _, c := range children {
		want = append(want, "requested:"+c.String()+":height", "requested:"+c.String()+":ortho")
	}
	assert.Equal(t, want, rec.log)
	assert.Equal(t, 4, sched.NumberOfTilesInTransit())
	assert.NoError(t, sched.CheckConsistency())
}

// TestCameraMoveExpiresOneBranchButKeepsTheOther builds a tree with two
// independently-refined branches, brings one tile in each to OnGpu,
// then moves the camera so one branch's refinement is abandoned while
// the other's is kept. It must expire exactly the abandoned branch's
// OnGpu tile, cancel its still-InTransit siblings, and leave the other
// branch's GPU tile untouched.
func TestCameraMoveExpiresOneBranchButKeepsTheOther(t *testing.T) {
	root := srs.Root()
	rootChildren := srs.Subtiles(root) // SW, SE, NW, NE
	sw, se, nw, ne := rootChildren[0], rootChildren[1], rootChildren[2], rootChildren[3]

	swGrandchildren := srs.Subtiles(sw)
	neGrandchildren := srs.Subtiles(ne)
	swSW := swGrandchildren[0]
	neNE := neGrandchildren[3]

	round1 := []srs.TileID{se, nw}
	round1 = append(round1, swGrandchildren[:]...)
	round1 = append(round1, neGrandchildren[:]...)

	round2 := []srs.TileID{se, nw}
	round2 = append(round2, swGrandchildren[:]...)
	round2 = append(round2, ne)

	sched, _, rec := newTestScheduler(t, round1, round2)

	sched.UpdateCamera(camera.State{})
	sched.ReceiveHeightTile(swSW, []byte("h"))
	sched.ReceiveOrthoTile(swSW, []byte("o"))
	sched.ReceiveHeightTile(neNE, []byte("h"))
	sched.ReceiveOrthoTile(neNE, []byte("o"))

	gpuBefore := sched.GpuTiles()
	_, swReady := gpuBefore[swSW]
	_, neReady := gpuBefore[neNE]
	require.True(t, swReady)
	require.True(t, neReady)

	preMoveLen := len(rec.log)
	sched.UpdateCamera(camera.State{})

	moveLog := rec.log[preMoveLen:]
	assert.Contains(t, moveLog, "expired:"+neNE.String())
	assert.NotContains(t, moveLog, "expired:"+swSW.String())
	for _, g := range neGrandchildren[:3] {
		assert.Contains(t, moveLog, "cancel:"+g.String())
	}

	gpuAfter := sched.GpuTiles()
	_, swStillGpu := gpuAfter[swSW]
	_, neStillGpu := gpuAfter[neNE]
	assert.True(t, swStillGpu)
	assert.False(t, neStillGpu)

	assert.NoError(t, sched.CheckConsistency())
}

func TestStalePayloadAfterBranchIsReducedIsDroppedSilently(t *testing.T) {
	root := srs.Root()
	rootChildren := srs.Subtiles(root)
	se, nw, ne := rootChildren[1], rootChildren[2], rootChildren[3]
	sw := rootChildren[0]

	neGrandchildren := srs.Subtiles(ne)
	neNE := neGrandchildren[3]

	round1 := []srs.TileID{se, nw, sw}
	round1 = append(round1, neGrandchildren[:]...)
	round2 := []srs.TileID{se, nw, sw, ne}

	sched, _, rec := newTestScheduler(t, round1, round2)

	sched.UpdateCamera(camera.State{})
	sched.UpdateCamera(camera.State{}) // collapses ne's grandchildren

	require.Contains(t, rec.log, "cancel:"+neNE.String())
	preLen := len(rec.log)

	assert.NotPanics(t, func() {
		sched.ReceiveHeightTile(neNE, []byte("late"))
	})
	assert.Equal(t, preLen, len(rec.log), "a stale arrival for a reduced-away tile must not emit anything")

	gpu := sched.GpuTiles()
	_, onGpu := gpu[neNE]
	assert.False(t, onGpu)
	assert.NoError(t, sched.CheckConsistency())
}

func TestDuplicateArrivalOnSameSideIsIgnored(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root})
	sched.UpdateCamera(camera.State{})

	sched.ReceiveHeightTile(root, []byte("h1"))
	sched.ReceiveHeightTile(root, []byte("h2")) // duplicate, same side, still waiting

	for _, e := range rec.log {
		assert.NotContains(t, e, "ready:")
	}
	assert.Equal(t, 1, sched.NumberOfWaitingHeightTiles())
}

func TestDisabledSchedulerIgnoresCameraUpdates(t *testing.T) {
	root := srs.Root()
	sched, _, rec := newTestScheduler(t, []srs.TileID{root})
	sched.SetEnabled(false)
	require.False(t, sched.Enabled())

	sched.UpdateCamera(camera.State{})

	assert.Empty(t, rec.log)
	assert.Equal(t, 0, sched.NumberOfTilesInTransit())
}

func TestCheckConsistencyPassesOnFreshScheduler(t *testing.T) {
	bus := events.NewBus()
	sched := New(bus, Config{Visibility: camera.VisibilityConfig{MaxZoom: 20, ScreenSpaceErrorThreshold: 1}})
	assert.NoError(t, sched.CheckConsistency())
}

func TestCheckConsistencyReportsGpuSetMismatch(t *testing.T) {
	bus := events.NewBus()
	sched := New(bus, Config{Visibility: camera.VisibilityConfig{MaxZoom: 20, ScreenSpaceErrorThreshold: 1}})

	// Poke an inconsistency directly: a GPU tile id with no corresponding
	// OnGpu node in the tree.
	sched.gpuTiles[srs.TileID{Zoom: 5, X: 1, Y: 1}] = struct{}{}
	err := sched.CheckConsistency()
	assert.Error(t, err)
	var consistencyErr *ConsistencyError
	assert.ErrorAs(t, err, &consistencyErr)
	assert.NotEmpty(t, consistencyErr.Violations)
}

func TestRealCameraDrivenFrontierRefinesRootWhenClose(t *testing.T) {
	bus := events.NewBus()
	rec := newRecorder(bus)

	rootBounds := srs.Bounds(srs.Root())
	children := srs.Subtiles(srs.Root())
	childBounds := srs.Bounds(children[0])

	cam := camera.State{
		Position:       [3]float64{0, 0, 1.5 * srs.EarthCircumference},
		ViewportWidth:  800,
		ViewportHeight: 1000,
		ClippingPlanes: camera.PermissivePlanes(),
	}

	rootWidth := rootBounds.Max[0] - rootBounds.Min[0]
	childWidth := childBounds.Max[0] - childBounds.Min[0]
	dist := cam.Position[2]
	rootSSE := (rootWidth / dist) * float64(cam.ViewportHeight)
	childSSE := (childWidth / dist) * float64(cam.ViewportHeight)

	cfg := Config{Visibility: camera.VisibilityConfig{
		MinTerrainHeight:          0,
		MaxTerrainHeight:          9000,
		MaxZoom:                   20,
		ScreenSpaceErrorThreshold: (rootSSE + childSSE) / 2,
	}}

	sched := New(bus, cfg)
	sched.UpdateCamera(cam)

	assert.Equal(t, 4, sched.NumberOfTilesInTransit())
	for _, c := range children {
		assert.Contains(t, rec.log, "requested:"+c.String()+":height")
	}
}
