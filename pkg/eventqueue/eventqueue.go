// Package eventqueue implements the simulator's min-heap of pending events,
// ordered by (virtual time, sequence number) so that equal-time events fire
// in a stable, deterministic order.
package eventqueue

import (
	"container/heap"

	"github.com/jihwankim/glitch/pkg/model"
)

// Kind tags the variant of an Event.
type Kind int

const (
	KindTick Kind = iota
	KindDeliver
	KindLinkTransition
	KindNodeTransition
	KindPartitionTransition
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "Tick"
	case KindDeliver:
		return "Deliver"
	case KindLinkTransition:
		return "LinkTransition"
	case KindNodeTransition:
		return "NodeTransition"
	case KindPartitionTransition:
		return "PartitionTransition"
	default:
		return "Unknown"
	}
}

// Event is one entry in the queue. Payload is a Kind-specific struct
// (DeliverPayload, LinkTransitionPayload, ...) stashed as interface{} so the
// queue package stays independent of the fault-state and transport types
// that build those payloads.
type Event struct {
	Time model.VirtualTime
	Seq  uint64
	Kind Kind
	// Generation ties this event to the entity state it was scheduled
	// against, for lazy cancellation: if the entity's generation counter has
	// advanced past Generation by the time this event is popped, the event
	// is stale and must be discarded without side effects.
	Generation uint64
	Payload    interface{}
}

// DeliverPayload carries a message in flight to its destination.
type DeliverPayload struct {
	Message model.Message
}

// LinkTransitionPayload names the link and its new state.
type LinkTransitionPayload struct {
	LinkID  LinkID
	NewUp   bool
	UntilOK bool // true if NewUp is false and the transition carries an until time (informational)
}

// LinkID identifies an unordered pair of nodes.
type LinkID struct {
	A, B model.NodeID
}

// NodeTransitionPayload names the node and its new state.
type NodeTransitionPayload struct {
	NodeID model.NodeID
	NewUp  bool
}

// PartitionTransitionPayload carries the new partition state.
type PartitionTransitionPayload struct {
	Active bool
	Groups [][]model.NodeID
}

// Queue is a min-heap of *Event ordered by (Time, Seq).
type Queue struct {
	h   eventHeap
	seq uint64
}

// New returns an empty, ready-to-use Queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// NextSeq returns the next monotonically increasing sequence number and
// advances the counter. Callers push events in the traversal order they
// want ties broken in (e.g. ascending NodeID during TickAll), assigning Seq
// via this method immediately before each Push.
func (q *Queue) NextSeq() uint64 {
	s := q.seq
	q.seq++
	return s
}

// Push inserts ev into the queue.
func (q *Queue) Push(ev *Event) {
	heap.Push(&q.h, ev)
}

// Pop removes and returns the earliest (Time, Seq) event. ok is false if the
// queue is empty.
func (q *Queue) Pop() (ev *Event, ok bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Event), true
}

// PeekTime returns the time of the earliest pending event without removing
// it. ok is false if the queue is empty.
func (q *Queue) PeekTime() (t model.VirtualTime, ok bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].Time, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return q.h.Len() }

// eventHeap implements container/heap.Interface over *Event, ordered by
// (Time, Seq), the tiebreak the driver relies on for deterministic replay.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
