// Package faultstate implements the three independent fault state machines
// the simulator drives: per-link up/down, per-node up/down, and the global
// partition. Each machine only advances at its own scheduled transition
// event; none of them ever peek at wall-clock time or any randomness
// outside the single Stream the driver hands them.
package faultstate

import (
	"time"

	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/rng"
)

// Config carries the mean/bound parameters that drive the fault-state
// machines. A zero MeanTimeBetween* disables that machine entirely — no
// transitions of that kind are ever scheduled.
type Config struct {
	MeanTimeBetweenLinkFailures      time.Duration
	MeanLinkRecoveryTime             time.Duration
	MeanTimeBetweenPartitionFailures time.Duration
	MeanPartitionRecoveryTime        time.Duration
	MeanTimeBetweenNodeFailures      time.Duration
	MeanNodeRecoveryTime             time.Duration
}

// Engine owns the live link/node/partition state and schedules their
// transitions on the shared event queue.
type Engine struct {
	cfg   Config
	nodes []model.NodeID

	linkUp         map[eventqueue.LinkID]bool
	linkGeneration map[eventqueue.LinkID]uint64

	nodeUp         map[model.NodeID]bool
	nodeGeneration map[model.NodeID]uint64

	partitionActive     bool
	partitionGroups     [][]model.NodeID
	partitionGeneration uint64
}

// quorum returns ⌈N/2⌉ for N nodes.
func quorum(n int) int { return (n + 1) / 2 }

// NewEngine creates an Engine for the given set of node ids, all starting
// Up, all links starting Up, and no active partition.
func NewEngine(cfg Config, nodes []model.NodeID) *Engine {
	e := &Engine{
		cfg:            cfg,
		nodes:          append([]model.NodeID(nil), nodes...),
		linkUp:         make(map[eventqueue.LinkID]bool),
		linkGeneration: make(map[eventqueue.LinkID]uint64),
		nodeUp:         make(map[model.NodeID]bool),
		nodeGeneration: make(map[model.NodeID]uint64),
	}
	for _, n := range nodes {
		e.nodeUp[n] = true
	}
	for _, l := range e.allLinks() {
		e.linkUp[l] = true
	}
	return e
}

func (e *Engine) allLinks() []eventqueue.LinkID {
	links := make([]eventqueue.LinkID, 0, len(e.nodes)*(len(e.nodes)-1)/2)
	for i := 0; i < len(e.nodes); i++ {
		for j := i + 1; j < len(e.nodes); j++ {
			links = append(links, normalizeLink(e.nodes[i], e.nodes[j]))
		}
	}
	return links
}

func normalizeLink(a, b model.NodeID) eventqueue.LinkID {
	if a > b {
		a, b = b, a
	}
	return eventqueue.LinkID{A: a, B: b}
}

// IsNodeUp reports whether id is currently Up.
func (e *Engine) IsNodeUp(id model.NodeID) bool { return e.nodeUp[id] }

// NodeGeneration returns the current generation counter for id, used by the
// node runtime to detect stale Deliver events against a since-recovered
// node.
func (e *Engine) NodeGeneration(id model.NodeID) uint64 { return e.nodeGeneration[id] }

// DownCount returns the number of currently Down nodes.
func (e *Engine) DownCount() int {
	n := 0
	for _, up := range e.nodeUp {
		if !up {
			n++
		}
	}
	return n
}

// IsLinkUp reports whether the link between a and b is currently Up.
func (e *Engine) IsLinkUp(a, b model.NodeID) bool {
	return e.linkUp[normalizeLink(a, b)]
}

// LinkGeneration returns the current generation counter for l (which must
// already be normalized, A<=B), for the same staleness-chaining purpose as
// NodeGeneration.
func (e *Engine) LinkGeneration(l eventqueue.LinkID) uint64 { return e.linkGeneration[l] }

// PartitionGeneration returns the current generation counter for the global
// partition machine.
func (e *Engine) PartitionGeneration() uint64 { return e.partitionGeneration }

// IsPartitioned reports whether a and b currently lie in different active
// partition groups.
func (e *Engine) IsPartitioned(a, b model.NodeID) bool {
	if !e.partitionActive {
		return false
	}
	ga, foundA := e.groupOf(a)
	gb, foundB := e.groupOf(b)
	if !foundA || !foundB {
		return false
	}
	return ga != gb
}

func (e *Engine) groupOf(id model.NodeID) (int, bool) {
	for gi, g := range e.partitionGroups {
		for _, n := range g {
			if n == id {
				return gi, true
			}
		}
	}
	return -1, false
}

// Init schedules the first transition of every enabled fault-state machine.
// Must be called exactly once, before the driver's main loop starts
// popping events.
func (e *Engine) Init(now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	for _, l := range e.allLinks() {
		e.scheduleLinkDown(l, now, s, q)
	}
	for _, n := range e.nodes {
		e.scheduleNodeDownProposal(n, now, s, q)
	}
	e.schedulePartitionActivation(now, s, q)
}

func (e *Engine) scheduleLinkDown(l eventqueue.LinkID, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	if e.cfg.MeanTimeBetweenLinkFailures <= 0 {
		return
	}
	delay := s.Exponential(int64(e.cfg.MeanTimeBetweenLinkFailures))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindLinkTransition,
		Generation: e.linkGeneration[l],
		Payload:    eventqueue.LinkTransitionPayload{LinkID: l, NewUp: false},
	})
}

func (e *Engine) scheduleLinkUp(l eventqueue.LinkID, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	delay := s.Exponential(int64(e.cfg.MeanLinkRecoveryTime))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindLinkTransition,
		Generation: e.linkGeneration[l],
		Payload:    eventqueue.LinkTransitionPayload{LinkID: l, NewUp: true},
	})
}

// HandleLinkTransition applies a popped LinkTransition event, updating
// state and scheduling the machine's next transition. Returns false if the
// event was stale (generation mismatch) and was discarded.
func (e *Engine) HandleLinkTransition(ev *eventqueue.Event, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) bool {
	p := ev.Payload.(eventqueue.LinkTransitionPayload)
	if ev.Generation != e.linkGeneration[p.LinkID] {
		return false
	}
	e.linkGeneration[p.LinkID]++
	e.linkUp[p.LinkID] = p.NewUp
	if p.NewUp {
		e.scheduleLinkDown(p.LinkID, now, s, q)
	} else {
		e.scheduleLinkUp(p.LinkID, now, s, q)
	}
	return true
}

func (e *Engine) scheduleNodeDownProposal(n model.NodeID, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	if e.cfg.MeanTimeBetweenNodeFailures <= 0 {
		return
	}
	delay := s.Exponential(int64(e.cfg.MeanTimeBetweenNodeFailures))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindNodeTransition,
		Generation: e.nodeGeneration[n],
		Payload:    eventqueue.NodeTransitionPayload{NodeID: n, NewUp: false},
	})
}

func (e *Engine) scheduleNodeUp(n model.NodeID, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	delay := s.Exponential(int64(e.cfg.MeanNodeRecoveryTime))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindNodeTransition,
		Generation: e.nodeGeneration[n],
		Payload:    eventqueue.NodeTransitionPayload{NodeID: n, NewUp: true},
	})
}

// admitNodeDown enforces quorum safety at fire-time: a Down proposal is
// only admitted if doing so keeps the count of Down nodes strictly below
// ⌈N/2⌉. Checking here — rather than at sample-time — means an unrelated
// config change (e.g. a different tick_interval) never perturbs which
// proposals get admitted for a given seed.
func (e *Engine) admitNodeDown() bool {
	return e.DownCount()+1 < quorum(len(e.nodes))
}

// HandleNodeTransition applies a popped NodeTransition event. For a Down
// proposal that cannot be admitted without violating quorum safety, the
// proposal becomes a no-op and a fresh failure time is resampled instead —
// the RNG still draws exactly once per resample, in the same position it
// would have for an admitted transition, so the trajectory stays stable.
// recovered reports whether a node transitioned Up->the caller (node
// runtime) must invoke the user re-initializer.
func (e *Engine) HandleNodeTransition(ev *eventqueue.Event, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) (applied bool, recovered bool) {
	p := ev.Payload.(eventqueue.NodeTransitionPayload)
	if ev.Generation != e.nodeGeneration[p.NodeID] {
		return false, false
	}

	if !p.NewUp {
		if !e.admitNodeDown() {
			// Not admitted: resample a fresh failure time instead of
			// transitioning. No state change, no generation bump — this is
			// the same pending slot, not a new one.
			e.scheduleNodeDownProposal(p.NodeID, now, s, q)
			return false, false
		}
		e.nodeGeneration[p.NodeID]++
		e.nodeUp[p.NodeID] = false
		e.scheduleNodeUp(p.NodeID, now, s, q)
		return true, false
	}

	e.nodeGeneration[p.NodeID]++
	e.nodeUp[p.NodeID] = true
	e.scheduleNodeDownProposal(p.NodeID, now, s, q)
	return true, true
}

func (e *Engine) schedulePartitionActivation(now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	if e.cfg.MeanTimeBetweenPartitionFailures <= 0 {
		return
	}
	delay := s.Exponential(int64(e.cfg.MeanTimeBetweenPartitionFailures))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindPartitionTransition,
		Generation: e.partitionGeneration,
		Payload:    eventqueue.PartitionTransitionPayload{Active: true},
	})
}

func (e *Engine) schedulePartitionHeal(now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) {
	delay := s.Exponential(int64(e.cfg.MeanPartitionRecoveryTime))
	q.Push(&eventqueue.Event{
		Time:       now.Add(time.Duration(delay)),
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindPartitionTransition,
		Generation: e.partitionGeneration,
		Payload:    eventqueue.PartitionTransitionPayload{Active: false},
	})
}

// HandlePartitionTransition applies a popped PartitionTransition event.
func (e *Engine) HandlePartitionTransition(ev *eventqueue.Event, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) bool {
	p := ev.Payload.(eventqueue.PartitionTransitionPayload)
	if ev.Generation != e.partitionGeneration {
		return false
	}
	e.partitionGeneration++

	if p.Active {
		if p.Groups != nil {
			e.applyForcedPartition(p)
			e.schedulePartitionHeal(now, s, q)
			return true
		}
		ids := make([]int, len(e.nodes))
		for i, n := range e.nodes {
			ids[i] = int(n)
		}
		groups := s.UniformPartition(ids)
		e.partitionGroups = make([][]model.NodeID, len(groups))
		for i, g := range groups {
			ng := make([]model.NodeID, len(g))
			for j, id := range g {
				ng[j] = model.NodeID(id)
			}
			e.partitionGroups[i] = ng
		}
		e.partitionActive = true
		e.schedulePartitionHeal(now, s, q)
		return true
	}

	e.partitionActive = false
	e.partitionGroups = nil
	e.schedulePartitionActivation(now, s, q)
	return true
}

// ForceLinkTransition pushes a scripted, non-random transition directly,
// for authoring literal test scenarios (e.g. "link 0-1 down at t=2s"). It
// participates in the same generation-counter lazy-cancellation
// scheme as sampled transitions but never draws from the RNG. Equivalent to
// ForceLinkTransitionAt with the link's current generation.
func (e *Engine) ForceLinkTransition(l eventqueue.LinkID, at model.VirtualTime, up bool, q *eventqueue.Queue) {
	e.ForceLinkTransitionAt(l, at, up, e.linkGeneration[l], q)
}

// ForceLinkTransitionAt pushes a scripted link transition carrying an
// explicit generation. Callers scripting more than one forced transition
// against the same link (e.g. down then up) use this to stamp each
// transition with the generation it will carry once the ones before it in
// the schedule have applied, since all forced transitions are queued ahead
// of the run and so cannot read the engine's generation as it will stand at
// the time they fire.
func (e *Engine) ForceLinkTransitionAt(l eventqueue.LinkID, at model.VirtualTime, up bool, generation uint64, q *eventqueue.Queue) {
	q.Push(&eventqueue.Event{
		Time:       at,
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindLinkTransition,
		Generation: generation,
		Payload:    eventqueue.LinkTransitionPayload{LinkID: l, NewUp: up},
	})
}

// ForceNodeTransition pushes a scripted node up/down transition, stamped
// with the node's current generation. Equivalent to ForceNodeTransitionAt
// with the node's current generation.
func (e *Engine) ForceNodeTransition(n model.NodeID, at model.VirtualTime, up bool, q *eventqueue.Queue) {
	e.ForceNodeTransitionAt(n, at, up, e.nodeGeneration[n], q)
}

// ForceNodeTransitionAt pushes a scripted node transition carrying an
// explicit generation; see ForceLinkTransitionAt for why chained forced
// transitions against the same entity need this.
func (e *Engine) ForceNodeTransitionAt(n model.NodeID, at model.VirtualTime, up bool, generation uint64, q *eventqueue.Queue) {
	q.Push(&eventqueue.Event{
		Time:       at,
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindNodeTransition,
		Generation: generation,
		Payload:    eventqueue.NodeTransitionPayload{NodeID: n, NewUp: up},
	})
}

// ForcePartitionTransition pushes a scripted partition activation/heal. For
// activation, groups gives the explicit partition of node ids. Equivalent to
// ForcePartitionTransitionAt with the partition machine's current
// generation.
func (e *Engine) ForcePartitionTransition(at model.VirtualTime, active bool, groups [][]model.NodeID, q *eventqueue.Queue) {
	e.ForcePartitionTransitionAt(at, active, groups, e.partitionGeneration, q)
}

// ForcePartitionTransitionAt pushes a scripted partition transition carrying
// an explicit generation; see ForceLinkTransitionAt for why chained forced
// transitions against the same entity need this.
func (e *Engine) ForcePartitionTransitionAt(at model.VirtualTime, active bool, groups [][]model.NodeID, generation uint64, q *eventqueue.Queue) {
	q.Push(&eventqueue.Event{
		Time:       at,
		Seq:        q.NextSeq(),
		Kind:       eventqueue.KindPartitionTransition,
		Generation: generation,
		Payload:    eventqueue.PartitionTransitionPayload{Active: active, Groups: groups},
	})
}

// applyForcedPartition is used by HandlePartitionTransition when the
// payload carries explicit Groups (a forced transition) rather than
// sampling them.
func (e *Engine) applyForcedPartition(p eventqueue.PartitionTransitionPayload) {
	e.partitionActive = p.Active
	e.partitionGroups = p.Groups
}
