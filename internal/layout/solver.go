package layout

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"sceneforge/internal/constraint"
	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// Options configures a Solver. Zero values fall back to defaults.
type Options struct {
	SamplingResolution     float64       // m, candidate grid pitch (default 0.1)
	MaxCandidatesPerObject int           // default 100
	Timeout                time.Duration // overall budget (default 30s)
	BufferDistance         float64       // m, relative-family buffer (default 0.1)
	RoomSize               []float64     // [L, W, H] (default 10x10x3)
	GravityEnabled         bool          // stability check for stacked objects
	Seed                   int64         // recorded in the solution for provenance
	// ScaleFor maps an object to its placement scale. Nil keeps the
	// downstream convention of uniform scaling by height.
	ScaleFor func(*types.Object) types.Vec3
}

func (o Options) withDefaults() Options {
	if o.SamplingResolution <= 0 {
		o.SamplingResolution = 0.1
	}
	if o.MaxCandidatesPerObject <= 0 {
		o.MaxCandidatesPerObject = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BufferDistance <= 0 {
		o.BufferDistance = constraint.DefaultBuffer
	}
	if len(o.RoomSize) != 3 {
		o.RoomSize = []float64{10, 10, 3}
	}
	if o.ScaleFor == nil {
		o.ScaleFor = func(obj *types.Object) types.Vec3 {
			return types.Vec3{X: obj.Size.Z, Y: obj.Size.Z, Z: obj.Size.Z}
		}
	}
	return o
}

// Solver performs depth-first constraint-satisfying placement. Solving is
// deterministic given (objects, constraints, seed): candidate generation
// and tie-breaking never consult unordered state.
type Solver struct {
	opts Options
}

// NewSolver creates a solver with the given options.
func NewSolver(opts Options) *Solver {
	return &Solver{opts: opts.withDefaults()}
}

// candidate is one tentative pose with its precomputed preference score.
type candidate struct {
	pos       types.Vec3
	yaw       float64
	softScore float64
	displace  float64
	index     int // generation order, final tie-break
}

// rejection reasons, tracked per object for conflict classification.
type rejectStats struct {
	collision  int
	boundary   int
	constraint int
	unstable   int
}

func (r rejectStats) dominant() types.ConflictType {
	// Deterministic precedence on ties.
	type rc struct {
		n int
		t types.ConflictType
	}
	all := []rc{
		{r.collision, types.ConflictCollision},
		{r.boundary, types.ConflictBoundary},
		{r.constraint, types.ConflictConstraint},
		{r.unstable, types.ConflictUnstable},
	}
	best := all[0]
	for _, c := range all[1:] {
		if c.n > best.n {
			best = c
		}
	}
	if best.n == 0 {
		return types.ConflictConstraint
	}
	return best.t
}

// frame is the DFS state for one object in the seed order.
type frame struct {
	objectID   string
	candidates []candidate
	next       int // next candidate index to try
	attempts   int
	rejects    rejectStats
	spaceSize  int
	bestScore  float64
	placed     *ObjectState
}

// Solve places every object subject to the constraint set. On success the
// returned trace is nil. On failure the solution carries the partial
// placement and the trace records the deepest failure.
func (s *Solver) Solve(ctx context.Context, objects []*types.Object, set *constraint.Set) (*types.LayoutSolution, *types.DFSTrace) {
	start := time.Now()
	opts := s.opts
	room := RoomBox(opts.RoomSize)
	clearance := set.Globals.CollisionClearance
	if clearance == 0 {
		clearance = 0.02
	}

	sol := &types.LayoutSolution{
		ObjectPlacements: make(map[string]*types.Placement),
		Results:          make(map[string]*types.PlacementResult),
		Seed:             opts.Seed,
	}

	// An empty object list is a successful, empty layout.
	if len(objects) == 0 {
		sol.Success = true
		sol.Metrics = types.SolutionMetrics{ConstraintSatisfaction: 1, SolveTime: time.Since(start).Seconds()}
		return sol, nil
	}

	byID := make(map[string]*types.Object, len(objects))
	for _, o := range objects {
		byID[o.ObjectID] = o
	}

	order := SeedOrder(objects, set)
	logging.SolverDebug("Seed order: %v", order)

	deadline := start.Add(opts.Timeout)
	frames := make([]*frame, len(order))
	placed := make(map[string]*ObjectState, len(order))

	depth := 0
	timedOut := false

	// Deepest failure wins the trace; the deepest successful prefix is kept
	// so a failed solve still reports a partial placement.
	var deepestFail *frame
	deepestDepth := -1
	tracebacks := 0
	bestPlaced := make(map[string]*ObjectState)
	attempts := make(map[string]int, len(order))
	collisions := make(map[string]int, len(order))

	for depth < len(order) {
		if time.Now().After(deadline) || ctx.Err() != nil {
			timedOut = true
			break
		}

		if frames[depth] == nil {
			frames[depth] = s.newFrame(order[depth], byID[order[depth]], set, placed, room, clearance)
		}
		f := frames[depth]
		obj := byID[f.objectID]

		st, ok := s.tryNext(f, obj, set, placed, room, clearance)
		if ok {
			f.placed = st
			placed[f.objectID] = st
			depth++
			if len(placed) > len(bestPlaced) {
				bestPlaced = make(map[string]*ObjectState, len(placed))
				for id, ps := range placed {
					bestPlaced[id] = ps
				}
			}
			continue
		}

		// Exhausted. Record, then backtrack.
		if depth > deepestDepth {
			deepestDepth = depth
			cp := *f
			deepestFail = &cp
		}
		if depth == 0 {
			break
		}
		attempts[f.objectID] += f.attempts
		collisions[f.objectID] += f.rejects.collision
		frames[depth] = nil
		depth--
		tracebacks++
		prev := frames[depth]
		delete(placed, prev.objectID)
		prev.placed = nil
	}

	for _, f := range frames {
		if f != nil {
			attempts[f.objectID] += f.attempts
			collisions[f.objectID] += f.rejects.collision
		}
	}

	solveTime := time.Since(start).Seconds()

	if depth == len(order) {
		for id, st := range placed {
			obj := byID[id]
			s.record(sol, obj, st, set, placed, attempts[id], collisions[id])
		}
		sol.Success = true
		sol.Metrics = s.metrics(solveTime, objects, set, placed, room)
		logging.Solver("Solved layout for %d objects in %.3fs", len(objects), solveTime)
		return sol, nil
	}

	// Partial: keep the deepest successful prefix, not the unwound state.
	for id, st := range bestPlaced {
		s.record(sol, byID[id], st, set, bestPlaced, attempts[id], collisions[id])
	}
	sol.Success = false
	sol.Metrics = s.metrics(solveTime, objects, set, bestPlaced, room)

	trace := s.buildTrace(order, depth, deepestFail, deepestDepth, timedOut, tracebacks, set, solveTime)
	sol.ErrorMessage = trace.Summary
	sol.Collisions = s.collisionRecords(bestPlaced, clearance)
	logging.Solver("Layout failed at object %s (%s) after %.3fs", trace.FailedObjectID, trace.ConflictType, solveTime)
	return sol, trace
}

// newFrame generates and orders the candidate list for an object given the
// already-placed states.
func (s *Solver) newFrame(id string, obj *types.Object, set *constraint.Set, placed map[string]*ObjectState, room AABB, clearance float64) *frame {
	opts := s.opts
	f := &frame{objectID: id}

	binding := bindingConstraints(id, set, placed)

	region := regionFromRoom(room, obj.Size)
	bound := false
	for _, bc := range binding {
		other := placed[bc.otherID]
		if bc.asSource {
			region = region.Intersect(FeasibleRegion(bc.c, other, obj.Size, room, opts.BufferDistance))
			bound = true
		} else if constraint.IsSymmetric(bc.c.Relation) {
			region = region.Intersect(FeasibleRegion(bc.c, other, obj.Size, room, opts.BufferDistance))
			bound = true
		}
	}

	if !bound {
		// No constraint binds this object to a placed one: sample a local
		// grid near its initial pose.
		p := obj.InitialPose.Position
		r := Region{
			MinX: p.X - 1, MaxX: p.X + 1,
			MinY: p.Y - 1, MaxY: p.Y + 1,
			MinZ: obj.GroundHeight(), MaxZ: obj.GroundHeight(),
		}
		region = regionFromRoom(room, obj.Size).Intersect(r)
	}

	f.spaceSize = region.Size(opts.SamplingResolution)
	positions := region.SampleGrid(opts.SamplingResolution, opts.MaxCandidatesPerObject)

	// The initial pose, snapped to ground height, leads the candidate set
	// for unbound objects so they stay where extraction put them.
	init := obj.InitialPose.Position
	if !bound {
		seed := types.Vec3{X: init.X, Y: init.Y, Z: obj.GroundHeight()}
		positions = append([]types.Vec3{seed}, positions...)
	}

	faceTarget := faceToTarget(id, set, placed)
	cands := make([]candidate, 0, len(positions))
	for i, pos := range positions {
		yaw := obj.InitialPose.Rotation.Z
		if faceTarget != nil {
			yaw = yawTowards(pos, faceTarget.Position)
		}
		c := candidate{pos: pos, yaw: yaw, index: i}
		c.displace = pos.Sub(init).Length()
		c.softScore = s.softScore(obj, pos, yaw, set, placed)
		cands = append(cands, c)
	}

	// Preference order: best soft score, then least displacement, then
	// generation order.
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].softScore != cands[b].softScore {
			return cands[a].softScore > cands[b].softScore
		}
		if cands[a].displace != cands[b].displace {
			return cands[a].displace < cands[b].displace
		}
		return cands[a].index < cands[b].index
	})
	f.candidates = cands
	return f
}

// tryNext advances the frame to the first acceptable candidate, returning
// the resulting state.
func (s *Solver) tryNext(f *frame, obj *types.Object, set *constraint.Set, placed map[string]*ObjectState, room AABB, clearance float64) (*ObjectState, bool) {
	for f.next < len(f.candidates) {
		cand := f.candidates[f.next]
		f.next++
		f.attempts++
		if cand.softScore > f.bestScore {
			f.bestScore = cand.softScore
		}

		st := &ObjectState{
			ObjectID: obj.ObjectID,
			Position: cand.pos,
			Rotation: types.Vec3{X: obj.InitialPose.Rotation.X, Y: obj.InitialPose.Rotation.Y, Z: cand.yaw},
			Size:     obj.Size,
		}

		if reason, ok := s.accept(st, obj, set, placed, room, clearance); !ok {
			switch reason {
			case types.ConflictCollision:
				f.rejects.collision++
			case types.ConflictBoundary:
				f.rejects.boundary++
			case types.ConflictUnstable:
				f.rejects.unstable++
			default:
				f.rejects.constraint++
			}
			continue
		}
		return st, true
	}
	return nil, false
}

// accept runs the acceptance test: hard constraints, AABB collisions with
// clearance, room boundary, the ground-support rule, and the optional
// stability check.
func (s *Solver) accept(st *ObjectState, obj *types.Object, set *constraint.Set, placed map[string]*ObjectState, room AABB, clearance float64) (types.ConflictType, bool) {
	box := st.Box()

	if !room.ContainsBox(box) {
		return types.ConflictBoundary, false
	}

	// Ground-support rule: z = half-height unless an active on/above
	// constraint lifts the object.
	if !hasVerticalLift(st.ObjectID, set) {
		if math.Abs(st.Position.Z-obj.GroundHeight()) > 1e-6 {
			return types.ConflictConstraint, false
		}
	}

	for _, bc := range bindingConstraints(st.ObjectID, set, placed) {
		if !bc.c.Hard() {
			continue
		}
		other := placed[bc.otherID]
		var res CheckResult
		if bc.asSource {
			res = Check(bc.c, st, other, s.opts.BufferDistance)
		} else {
			res = Check(bc.c, other, st, s.opts.BufferDistance)
		}
		if !res.Satisfied {
			return types.ConflictConstraint, false
		}
	}

	for _, other := range placed {
		// Stacking contact is not a collision: the on-relation pair touches
		// by definition, and Check already validates the contact tolerance.
		if stackedPair(st.ObjectID, other.ObjectID, set) {
			continue
		}
		if CollideWithClearance(box, other.Box(), clearance) {
			return types.ConflictCollision, false
		}
	}

	if s.opts.GravityEnabled && hasVerticalLift(st.ObjectID, set) {
		if stabilityScore(st, set, placed) <= 0 {
			return types.ConflictUnstable, false
		}
	}

	return "", true
}

// softScore computes the weighted soft-constraint satisfaction for a
// candidate pose, in [0, 1]; 1 when no soft constraint binds.
func (s *Solver) softScore(obj *types.Object, pos types.Vec3, yaw float64, set *constraint.Set, placed map[string]*ObjectState) float64 {
	st := &ObjectState{
		ObjectID: obj.ObjectID,
		Position: pos,
		Rotation: types.Vec3{X: obj.InitialPose.Rotation.X, Y: obj.InitialPose.Rotation.Y, Z: yaw},
		Size:     obj.Size,
	}
	var total, hit float64
	for _, bc := range bindingConstraints(obj.ObjectID, set, placed) {
		if bc.c.Hard() {
			continue
		}
		w := bc.c.Weight
		if w == 0 {
			w = 1
		}
		total += w
		other := placed[bc.otherID]
		var res CheckResult
		if bc.asSource {
			res = Check(bc.c, st, other, s.opts.BufferDistance)
		} else {
			res = Check(bc.c, other, st, s.opts.BufferDistance)
		}
		if res.Satisfied {
			hit += w
		}
	}
	if total == 0 {
		return 1
	}
	return hit / total
}

// record fills the solution entry for one placed object.
func (s *Solver) record(sol *types.LayoutSolution, obj *types.Object, st *ObjectState, set *constraint.Set, placed map[string]*ObjectState, attempts, collisions int) {
	scale := s.opts.ScaleFor(obj)
	sol.ObjectPlacements[obj.ObjectID] = &types.Placement{
		Position: st.Position,
		Rotation: st.Rotation,
		Scale:    scale,
	}
	stab := 1.0
	if s.opts.GravityEnabled && hasVerticalLift(obj.ObjectID, set) {
		stab = stabilityScore(st, set, placed)
	}
	sol.Results[obj.ObjectID] = &types.PlacementResult{
		ObjectID:        obj.ObjectID,
		Placement:       *sol.ObjectPlacements[obj.ObjectID],
		Successful:      true,
		ConstraintScore: s.satisfactionFor(obj.ObjectID, set, placed),
		StabilityScore:  stab,
		CollisionCount:  collisions,
		Attempts:        attempts,
	}
}

// satisfactionFor computes the fraction of constraints naming the object
// that hold at the final placement.
func (s *Solver) satisfactionFor(id string, set *constraint.Set, placed map[string]*ObjectState) float64 {
	cs := set.ForObject(id)
	if len(cs) == 0 {
		return 1
	}
	var hit int
	var total int
	for _, c := range cs {
		src, sok := placed[c.Source]
		tgt, tok := placed[c.Target]
		if !sok || !tok {
			continue
		}
		total++
		if Check(c, src, tgt, s.opts.BufferDistance).Satisfied {
			hit++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hit) / float64(total)
}

func (s *Solver) metrics(solveTime float64, objects []*types.Object, set *constraint.Set, placed map[string]*ObjectState, room AABB) types.SolutionMetrics {
	var hit, total int
	for _, c := range set.Relations {
		src, sok := placed[c.Source]
		tgt, tok := placed[c.Target]
		if !sok || !tok {
			total++
			continue
		}
		total++
		if Check(c, src, tgt, s.opts.BufferDistance).Satisfied {
			hit++
		}
	}
	sat := 1.0
	if total > 0 {
		sat = float64(hit) / float64(total)
	}

	floor := (room.Max.X - room.Min.X) * (room.Max.Y - room.Min.Y)
	var used float64
	for _, st := range placed {
		used += st.Size.X * st.Size.Y
	}
	eff := 0.0
	if floor > 0 {
		eff = math.Min(used/floor, 1)
	}
	return types.SolutionMetrics{
		SolveTime:              solveTime,
		ConstraintSatisfaction: sat,
		SpatialEfficiency:      eff,
	}
}

func (s *Solver) buildTrace(order []string, depth int, deepest *frame, deepestDepth int, timedOut bool, tracebacks int, set *constraint.Set, solveTime float64) *types.DFSTrace {
	f := deepest
	if f == nil {
		// Timed out before any frame exhausted.
		f = &frame{objectID: order[depth]}
		deepestDepth = depth
	}

	conflict := f.rejects.dominant()
	if timedOut {
		conflict = types.ConflictTimeout
	}
	if len(f.candidates) == 0 && f.spaceSize == 0 && !timedOut {
		conflict = types.ConflictConstraint
	}

	var active []string
	for _, c := range set.ForObject(f.objectID) {
		active = append(active, fmt.Sprintf("%s(%s, %s)", c.Relation, c.Source, c.Target))
	}

	trace := &types.DFSTrace{
		FailedObjectID:     f.objectID,
		PlacedObjects:      append([]string{}, order[:deepestDepth]...),
		ConflictType:       conflict,
		ActiveConstraints:  active,
		CandidatesTried:    f.attempts,
		SearchSpaceSize:    f.spaceSize,
		BestCandidateScore: f.bestScore,
		TracebackDepth:     tracebacks,
		TimeAtFailure:      solveTime,
	}
	trace.Summary = fmt.Sprintf(
		"placement of %q failed after %d candidates (%s); %d objects placed, %d backtracks",
		f.objectID, f.attempts, conflict, deepestDepth, tracebacks)
	switch conflict {
	case types.ConflictCollision:
		trace.Suggestions = append(trace.Suggestions,
			"reduce object sizes or enlarge the room",
			"remove adjacency constraints crowding the failed object")
	case types.ConflictBoundary:
		trace.Suggestions = append(trace.Suggestions,
			"enlarge the room or move the anchor object away from a wall")
	case types.ConflictConstraint:
		trace.Suggestions = append(trace.Suggestions,
			"relax or remove one constraint naming the failed object")
	case types.ConflictUnstable:
		trace.Suggestions = append(trace.Suggestions,
			"enlarge the supporting surface or disable gravity")
	case types.ConflictTimeout:
		trace.Suggestions = append(trace.Suggestions,
			"increase the solver timeout or coarsen sampling_resolution")
	}
	return trace
}

// collisionRecords lists residual AABB overlaps among placed objects; for
// an accepted placement set this is normally empty, but partial layouts
// report whatever remains.
func (s *Solver) collisionRecords(placed map[string]*ObjectState, clearance float64) []types.CollisionRecord {
	ids := make([]string, 0, len(placed))
	for id := range placed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []types.CollisionRecord
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := placed[ids[i]].Box(), placed[ids[j]].Box()
			if d := a.PenetrationDepth(b); d > 0 {
				out = append(out, types.CollisionRecord{ObjectA: ids[i], ObjectB: ids[j], Depth: d})
			}
		}
	}
	return out
}

// =============================================================================
// CONSTRAINT BINDING
// =============================================================================

// boundConstraint couples a constraint to the placed object on its other
// end, remembering which role the object being placed occupies.
type boundConstraint struct {
	c        *constraint.SpatialConstraint
	otherID  string
	asSource bool
}

// bindingConstraints returns the constraints connecting id to an
// already-placed object, in set input order.
func bindingConstraints(id string, set *constraint.Set, placed map[string]*ObjectState) []boundConstraint {
	var out []boundConstraint
	for _, c := range set.Relations {
		if c.Source == id {
			if _, ok := placed[c.Target]; ok {
				out = append(out, boundConstraint{c: c, otherID: c.Target, asSource: true})
			}
		} else if c.Target == id {
			if _, ok := placed[c.Source]; ok {
				out = append(out, boundConstraint{c: c, otherID: c.Source, asSource: false})
			}
		}
	}
	return out
}

// faceToTarget returns the placed state the object must face, if a face_to
// constraint binds it.
func faceToTarget(id string, set *constraint.Set, placed map[string]*ObjectState) *ObjectState {
	for _, c := range set.Relations {
		if c.Relation == constraint.FaceTo && c.Source == id {
			if st, ok := placed[c.Target]; ok {
				return st
			}
		}
	}
	return nil
}

// stackedPair reports whether an on constraint connects the two objects in
// either role.
func stackedPair(a, b string, set *constraint.Set) bool {
	for _, c := range set.Relations {
		if c.Relation != constraint.On {
			continue
		}
		if (c.Source == a && c.Target == b) || (c.Source == b && c.Target == a) {
			return true
		}
	}
	return false
}

// hasVerticalLift reports whether an on/above constraint (object as source)
// exempts the object from the ground-support rule.
func hasVerticalLift(id string, set *constraint.Set) bool {
	for _, c := range set.Relations {
		if c.Source == id && (c.Relation == constraint.On || c.Relation == constraint.Above) {
			return true
		}
	}
	return false
}

// stabilityScore projects the object's center of mass onto its supporting
// surface; the score is the margin to the support boundary normalized by
// the support half-extent, clamped to [0, 1]. Zero means the center falls
// outside the support polygon.
func stabilityScore(st *ObjectState, set *constraint.Set, placed map[string]*ObjectState) float64 {
	for _, c := range set.Relations {
		if c.Source != st.ObjectID || c.Relation != constraint.On {
			continue
		}
		support, ok := placed[c.Target]
		if !ok {
			continue
		}
		sb := support.Box()
		mx := math.Min(st.Position.X-sb.Min.X, sb.Max.X-st.Position.X)
		my := math.Min(st.Position.Y-sb.Min.Y, sb.Max.Y-st.Position.Y)
		if mx < 0 || my < 0 {
			return 0
		}
		hx := (sb.Max.X - sb.Min.X) / 2
		hy := (sb.Max.Y - sb.Min.Y) / 2
		return math.Min(math.Min(mx/hx, my/hy), 1)
	}
	return 1
}
