// Package scheduler implements the tile scheduler state machine: it
// converts camera motion into tile fetch requests, pairs the arrival
// of height and ortho payloads per tile id, promotes fully-materialized
// tiles to a GPU-ready state, and expires tiles that fall out of view.
// It generalizes a status-tagged in-memory tile cache into a full
// per-tile lifecycle, and is grounded on
// original_source/alpine_renderer/tile_scheduler/BasicTreeTileScheduler.h,
// the C++ scheduler this package reimplements in Go.
package scheduler

import (
	"fmt"
	"strings"

	"terrainsched/camera"
	"terrainsched/entities"
	"terrainsched/events"
	"terrainsched/quadtree"
	"terrainsched/srs"
)

// Config bundles the scheduler's tunables.
type Config struct {
	Visibility camera.VisibilityConfig
}

// Scheduler owns the status tree, the pairing buffer, and the GPU tile
// set. It is single-threaded and cooperative: every exported method
// runs to completion before returning, and nothing here spawns a
// goroutine (spec.md §5).
type Scheduler struct {
	cfg Config
	bus *events.Bus

	root *quadtree.Node[entities.NodeData]

	heightBuf map[srs.TileID][]byte
	orthoBuf  map[srs.TileID][]byte
	gpuTiles  map[srs.TileID]struct{}

	enabled bool

	frontierFn func(camera.State) []srs.TileID

	staleArrivals     int
	duplicateArrivals int
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithFrontierFunc overrides how the desired frontier is computed from
// a camera state. Production code never needs this: the default uses
// camera.ShouldRefine over the real tile geometry. It exists so tests
// (and tools replaying recorded frontiers) can drive the scheduler
// with an exact, deterministic desired set per call.
func WithFrontierFunc(fn func(camera.State) []srs.TileID) Option {
	return func(s *Scheduler) { s.frontierFn = fn }
}

// New builds a Scheduler with a single root node (0,0,0) in
// Uninitialised status, an empty pairing buffer, and an empty GPU tile
// set. The scheduler starts enabled.
func New(bus *events.Bus, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		bus:       bus,
		root:      quadtree.NewLeaf(entities.NodeData{ID: srs.Root(), Status: entities.Uninitialised}),
		heightBuf: make(map[srs.TileID][]byte),
		orthoBuf:  make(map[srs.TileID][]byte),
		gpuTiles:  make(map[srs.TileID]struct{}),
		enabled:   true,
	}
	s.frontierFn = s.desiredFrontier
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEnabled toggles camera reactivity. While disabled, UpdateCamera is
// a no-op, but payload arrivals and unavailability notices keep being
// processed so in-flight tiles drain cleanly.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.enabled = enabled
}

// Enabled reports the current enabled state.
func (s *Scheduler) Enabled() bool {
	return s.enabled
}

// UpdateCamera recomputes the desired frontier for cam and reconciles
// the tree against it: refining toward newly desired tiles, promoting
// newly-desired leaves into InTransit (emitting tileRequested for both
// sides), and reducing away tiles that are no longer needed. It is
// idempotent: calling it twice in a row with the same camera emits no
// additional events the second time. A no-op while disabled.
func (s *Scheduler) UpdateCamera(cam camera.State) {
	if !s.enabled {
		return
	}

	frontier := s.frontierFn(cam)
	frontierSet := make(map[srs.TileID]struct{}, len(frontier))
	for _, id := range frontier {
		frontierSet[id] = struct{}{}
	}
	needed := ancestorClosure(frontier)

	quadtree.Refine(s.root,
		func(d entities.NodeData) bool {
			_, ok := needed[d.ID]
			return ok
		},
		func(d entities.NodeData) [4]entities.NodeData {
			subs := srs.Subtiles(d.ID)
			var children [4]entities.NodeData
			for i, sub := range subs {
				children[i] = entities.NodeData{ID: sub, Status: entities.Uninitialised}
			}
			return children
		},
	)

	s.promoteFrontierLeaves(s.root, frontierSet)

	quadtree.Reduce(s.root,
		func(d entities.NodeData) bool {
			if _, ancestor := needed[d.ID]; ancestor {
				// Still on the path to a desired tile: keep it.
				return false
			}
			_, desired := frontierSet[d.ID]
			return d.Status == entities.Unavailable || !desired
		},
		s.cleanupDroppedSubtree,
	)

	// Reduce can turn a just-refined interior node back into a leaf
	// (its children, desired one call ago, are not desired this time
	// while the node itself now is): that leaf is still Uninitialised
	// and was invisible to the pass above, since it still had children
	// when that pass ran. Promote it now so a single UpdateCamera call
	// always reaches a fixed point instead of leaving it to the next
	// call, which would break idempotence.
	s.promoteFrontierLeaves(s.root, frontierSet)
}

// promoteFrontierLeaves walks the tree and, for every leaf whose id is
// in the desired frontier and whose status is still Uninitialised,
// transitions it to InTransit and emits the pair of tileRequested
// events. Leaves already in any other status (already requested,
// buffered, ready, or unavailable) are left untouched, which is what
// makes repeated calls idempotent.
func (s *Scheduler) promoteFrontierLeaves(n *quadtree.Node[entities.NodeData], frontier map[srs.TileID]struct{}) {
	if n.HasChildren() {
		for i := 0; i < 4; i++ {
			s.promoteFrontierLeaves(n.Child(i), frontier)
		}
		return
	}
	if _, desired := frontier[n.Data.ID]; desired && n.Data.Status == entities.Uninitialised {
		n.Data.Status = entities.InTransit
		s.bus.PublishTileRequested(n.Data.ID, entities.Height)
		s.bus.PublishTileRequested(n.Data.ID, entities.Ortho)
	}
}

// cleanupDroppedSubtree is called once per immediate child Reduce has
// decided to drop. It walks the entire subtree rooted at that child
// (which, almost always, is just the child itself) and, for every node
// found, emits the appropriate cancellation/expiry event and evicts
// any buffered payload, so the GPU tile set and pairing buffer
// invariants hold even if a dropped branch still had deeper structure.
func (s *Scheduler) cleanupDroppedSubtree(n *quadtree.Node[entities.NodeData]) {
	n.Walk(func(node *quadtree.Node[entities.NodeData]) {
		id := node.Data.ID
		switch node.Data.Status {
		case entities.InTransit, entities.WaitingForSiblings:
			delete(s.heightBuf, id)
			delete(s.orthoBuf, id)
			s.bus.PublishCancelTileRequest(id)
		case entities.OnGpu:
			delete(s.gpuTiles, id)
			s.bus.PublishTileExpired(id)
		}
	})
}

// ReceiveHeightTile delivers a height payload for id. A payload for an
// id no longer in the tree is dropped silently.
func (s *Scheduler) ReceiveHeightTile(id srs.TileID, data []byte) {
	s.receivePayload(id, data, entities.Height)
}

// ReceiveOrthoTile delivers an ortho payload for id. A payload for an
// id no longer in the tree is dropped silently.
func (s *Scheduler) ReceiveOrthoTile(id srs.TileID, data []byte) {
	s.receivePayload(id, data, entities.Ortho)
}

func (s *Scheduler) receivePayload(id srs.TileID, data []byte, side entities.Side) {
	node := s.findNode(id)
	if node == nil || node.HasChildren() {
		s.staleArrivals++
		return
	}

	switch node.Data.Status {
	case entities.InTransit:
		s.bufferSet(side, id, data)
		node.Data.Status = entities.WaitingForSiblings

	case entities.WaitingForSiblings:
		if _, alreadyHaveThisSide := s.bufferGet(side, id); alreadyHaveThisSide {
			s.duplicateArrivals++
			return
		}
		counterpart, hasCounterpart := s.bufferGet(opposite(side), id)
		if !hasCounterpart {
			// Defensive: WaitingForSiblings should always mean the
			// counterpart side is buffered. Treat as a stale/duplicate
			// arrival rather than panicking.
			s.duplicateArrivals++
			return
		}
		s.bufferDelete(opposite(side), id)

		var heightBytes, orthoBytes []byte
		if side == entities.Height {
			heightBytes, orthoBytes = data, counterpart
		} else {
			heightBytes, orthoBytes = counterpart, data
		}

		tile := entities.ReadyTile{
			ID:              id,
			Bounds:          srs.Bounds(id),
			HeightMapBytes:  heightBytes,
			OrthophotoBytes: orthoBytes,
		}
		node.Data.Status = entities.OnGpu
		s.gpuTiles[id] = struct{}{}
		s.bus.PublishTileReady(tile)

	default:
		// Unavailable or OnGpu: a duplicate or late arrival. Dropped
		// silently per spec.md §7; never double-emits tileReady.
		s.duplicateArrivals++
	}
}

// NotifyUnavailableHeight records that the height service has no data
// for id.
func (s *Scheduler) NotifyUnavailableHeight(id srs.TileID) {
	s.notifyUnavailable(id)
}

// NotifyUnavailableOrtho records that the ortho service has no data
// for id.
func (s *Scheduler) NotifyUnavailableOrtho(id srs.TileID) {
	s.notifyUnavailable(id)
}

func (s *Scheduler) notifyUnavailable(id srs.TileID) {
	node := s.findNode(id)
	if node == nil || node.HasChildren() {
		return
	}
	switch node.Data.Status {
	case entities.InTransit, entities.WaitingForSiblings:
		delete(s.heightBuf, id)
		delete(s.orthoBuf, id)
		node.Data.Status = entities.Unavailable
	}
}

// findNode locates the tree node for id by descending from the root
// along id's ancestor path. It returns nil if id is not currently
// present (e.g. a stale response for an id that was since reduced
// out).
func (s *Scheduler) findNode(id srs.TileID) *quadtree.Node[entities.NodeData] {
	current := s.root
	for {
		if current.Data.ID == id {
			return current
		}
		if !current.HasChildren() {
			return nil
		}
		idx, ok := childIndexTowards(current.Data.ID, id)
		if !ok {
			return nil
		}
		current = current.Child(idx)
	}
}

// desiredFrontier is the default, camera-geometry-driven frontier
// computation: a stateless on-the-fly traversal starting at the root,
// refining wherever camera.ShouldRefine says to.
func (s *Scheduler) desiredFrontier(cam camera.State) []srs.TileID {
	predicate := func(id srs.TileID) bool {
		return camera.ShouldRefine(id, srs.Bounds(id), cam, s.cfg.Visibility)
	}
	refine := func(id srs.TileID) [4]srs.TileID {
		return srs.Subtiles(id)
	}
	return quadtree.OnTheFlyTraverse(srs.Root(), predicate, refine)
}

// NumberOfTilesInTransit returns the count of leaves currently in
// InTransit status.
func (s *Scheduler) NumberOfTilesInTransit() int {
	count := 0
	s.root.Walk(func(n *quadtree.Node[entities.NodeData]) {
		if !n.HasChildren() && n.Data.Status == entities.InTransit {
			count++
		}
	})
	return count
}

// NumberOfWaitingHeightTiles returns the number of height payloads
// currently buffered awaiting their ortho counterpart.
func (s *Scheduler) NumberOfWaitingHeightTiles() int {
	return len(s.heightBuf)
}

// NumberOfWaitingOrthoTiles returns the number of ortho payloads
// currently buffered awaiting their height counterpart.
func (s *Scheduler) NumberOfWaitingOrthoTiles() int {
	return len(s.orthoBuf)
}

// GpuTiles returns a snapshot of the TileIds the scheduler believes
// are currently on the GPU.
func (s *Scheduler) GpuTiles() map[srs.TileID]struct{} {
	out := make(map[srs.TileID]struct{}, len(s.gpuTiles))
	for id := range s.gpuTiles {
		out[id] = struct{}{}
	}
	return out
}

// ConsistencyError collects every invariant violation CheckConsistency
// found in a single pass, rather than stopping at the first.
type ConsistencyError struct {
	Violations []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("scheduler consistency check failed: %s", strings.Join(e.Violations, "; "))
}

// CheckConsistency re-validates three of the invariants spec.md §3/§8
// requires to hold between event boundaries: the OnGpu set in the tree matches
// GpuTiles() exactly, the pairing buffers never share a TileID, and
// every node with children has a structural-only status. It returns
// nil when everything holds.
func (s *Scheduler) CheckConsistency() error {
	var violations []string

	treeGpu := make(map[srs.TileID]struct{})
	s.root.Walk(func(n *quadtree.Node[entities.NodeData]) {
		if n.HasChildren() {
			if n.Data.Status != entities.Uninitialised && n.Data.Status != entities.OnGpu {
				violations = append(violations, fmt.Sprintf("internal node %s has leaf-only status %s", n.Data.ID, n.Data.Status))
			}
		}
		if n.Data.Status == entities.OnGpu {
			treeGpu[n.Data.ID] = struct{}{}
		}
	})

	for id := range treeGpu {
		if _, ok := s.gpuTiles[id]; !ok {
			violations = append(violations, fmt.Sprintf("%s is OnGpu in the tree but missing from the GPU tile set", id))
		}
	}
	for id := range s.gpuTiles {
		if _, ok := treeGpu[id]; !ok {
			violations = append(violations, fmt.Sprintf("%s is in the GPU tile set but not OnGpu in the tree", id))
		}
	}

	for id := range s.heightBuf {
		if _, ok := s.orthoBuf[id]; ok {
			violations = append(violations, fmt.Sprintf("%s is buffered on both the height and ortho side", id))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ConsistencyError{Violations: violations}
}

func (s *Scheduler) bufferSet(side entities.Side, id srs.TileID, data []byte) {
	if side == entities.Height {
		s.heightBuf[id] = data
	} else {
		s.orthoBuf[id] = data
	}
}

func (s *Scheduler) bufferGet(side entities.Side, id srs.TileID) ([]byte, bool) {
	if side == entities.Height {
		v, ok := s.heightBuf[id]
		return v, ok
	}
	v, ok := s.orthoBuf[id]
	return v, ok
}

func (s *Scheduler) bufferDelete(side entities.Side, id srs.TileID) {
	if side == entities.Height {
		delete(s.heightBuf, id)
	} else {
		delete(s.orthoBuf, id)
	}
}

func opposite(side entities.Side) entities.Side {
	if side == entities.Height {
		return entities.Ortho
	}
	return entities.Height
}

// ancestorClosure returns the set of every strict ancestor of every
// tile in frontier (excluding the frontier tiles themselves): the set
// of TileIds that must exist as internal nodes for the frontier to be
// reachable from the root.
func ancestorClosure(frontier []srs.TileID) map[srs.TileID]struct{} {
	needed := make(map[srs.TileID]struct{})
	for _, id := range frontier {
		cur := id
		for cur.Zoom > 0 {
			parent, ok := srs.Parent(cur)
			if !ok {
				break
			}
			needed[parent] = struct{}{}
			cur = parent
		}
	}
	return needed
}

// childIndexTowards returns which of parent's four children id
// descends through, and whether id actually descends from parent at
// all.
func childIndexTowards(parent, id srs.TileID) (int, bool) {
	if id.Zoom <= parent.Zoom {
		return 0, false
	}
	childZoom := parent.Zoom + 1
	shift := id.Zoom - childZoom
	ancestorX := id.X >> shift
	ancestorY := id.Y >> shift
	dx := int(ancestorX) - 2*int(parent.X)
	dy := int(ancestorY) - 2*int(parent.Y)
	if dx < 0 || dx > 1 || dy < 0 || dy > 1 {
		return 0, false
	}
	return dy*2 + dx, true
}
