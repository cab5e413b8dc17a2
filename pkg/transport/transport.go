// Package transport decides, for each message a node or client sends, what
// actually happens to it in flight: dropped, delayed by some amount,
// delivered once, or duplicated into a second independently-delivered
// copy. It never inspects message payloads — only the source/destination
// endpoints and the live fault state.
package transport

import (
	"time"

	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/faultstate"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/rng"
)

// Config carries the latency bounds and duplication rate the Policy
// samples from.
type Config struct {
	MinLatency           time.Duration
	MaxLatency           time.Duration
	DuplicateProbability float64
}

// Policy applies Config against live fault state to decide the fate of
// each in-flight message.
type Policy struct {
	cfg   Config
	state *faultstate.Engine
}

// NewPolicy builds a Policy reading link/node/partition state from state.
func NewPolicy(cfg Config, state *faultstate.Engine) *Policy {
	return &Policy{cfg: cfg, state: state}
}

// Outcome is the result of applying the policy to one message send.
type Outcome struct {
	// Dropped is true if the message must never be delivered.
	Dropped bool
	// DeliverAt lists one virtual-time offset per copy to deliver — one
	// entry normally, two if the duplication draw fired. Offsets are
	// relative to "now", the time Decide was called.
	DeliverAt []time.Duration
}

// Decide samples the fate of one message being sent at the current virtual
// time. Endpoint liveness (source/destination node Up, link Up, not
// partitioned) is resolved by the caller before calling Decide — Decide
// itself only needs to know whether the route is currently viable, passed
// in as routeUp, so it draws from the RNG stream in a fixed order
// regardless of topology: route check first (not a draw), then the
// uniform delay draw, then the duplication Bernoulli draw, then — only if
// the duplicate fires — a second delay draw. The Bernoulli draw consumes
// no value when DuplicateProbability is 0 or 1. A message's first delay is
// drawn before its duplication decision, so DuplicateProbability does not
// affect that delay, though it does shift the draws of later messages.
func (p *Policy) Decide(routeUp bool, s *rng.Stream) Outcome {
	if !routeUp {
		return Outcome{Dropped: true}
	}

	delay := time.Duration(s.UniformDuration(int64(p.cfg.MinLatency), int64(p.cfg.MaxLatency)))
	duplicate := s.Bernoulli(p.cfg.DuplicateProbability)

	out := Outcome{DeliverAt: []time.Duration{delay}}
	if duplicate {
		// The duplicate copy gets its own independent delay draw so the two
		// copies don't always arrive simultaneously.
		out.DeliverAt = append(out.DeliverAt, time.Duration(s.UniformDuration(int64(p.cfg.MinLatency), int64(p.cfg.MaxLatency))))
	}
	return out
}

// RouteUp reports whether a message from src to dst can currently be
// delivered at all: both endpoints Up (client endpoints are always
// considered Up — the simulator never crashes clients), the connecting
// link Up, and the two endpoints not separated by an active partition.
// Only node-to-node sends consult link/partition state; any message
// touching a client endpoint only checks the client side is always up and
// the node side is Up. A node sending to itself bypasses the link and
// partition checks entirely — there is no link to itself, and a node is
// never partitioned from itself — but still respects node-down.
func RouteUp(state *faultstate.Engine, src, dst model.Endpoint) bool {
	if src.Kind == model.EndpointNode && !state.IsNodeUp(src.Node) {
		return false
	}
	if dst.Kind == model.EndpointNode && !state.IsNodeUp(dst.Node) {
		return false
	}
	if src.Kind == model.EndpointNode && dst.Kind == model.EndpointNode && src.Node != dst.Node {
		if !state.IsLinkUp(src.Node, dst.Node) {
			return false
		}
		if state.IsPartitioned(src.Node, dst.Node) {
			return false
		}
	}
	return true
}

// Send applies the policy to msg being sent at now and pushes the
// resulting Deliver event(s) onto q, returning the number of copies
// actually scheduled (0 if dropped).
func Send(policy *Policy, state *faultstate.Engine, msg model.Message, now model.VirtualTime, s *rng.Stream, q *eventqueue.Queue) int {
	up := RouteUp(state, msg.Source(), msg.Destination())
	outcome := policy.Decide(up, s)
	if outcome.Dropped {
		return 0
	}
	dst := msg.Destination()
	var gen uint64
	if dst.Kind == model.EndpointNode {
		// Tying the Deliver event's generation to the destination node's
		// current generation means a message already in flight to a node
		// that crashes and recovers before the message arrives is
		// discarded as stale rather than delivered into the fresh
		// instance's state.
		gen = state.NodeGeneration(dst.Node)
	}
	for _, d := range outcome.DeliverAt {
		q.Push(&eventqueue.Event{
			Time:       now.Add(d),
			Seq:        q.NextSeq(),
			Kind:       eventqueue.KindDeliver,
			Generation: gen,
			Payload:    eventqueue.DeliverPayload{Message: msg},
		})
	}
	return len(outcome.DeliverAt)
}
