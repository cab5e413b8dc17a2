package noderuntime_test

import (
	"testing"

	"github.com/jihwankim/glitch/pkg/echoproto"
	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/faultstate"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/noderuntime"
	"github.com/jihwankim/glitch/pkg/rng"
)

// tickCounter wraps an echoproto.Node and counts how often Tick is called.
type tickCounter struct {
	*echoproto.Node
	ticks int
}

func (c *tickCounter) Tick(now model.VirtualTime) []model.Message {
	c.ticks++
	return c.Node.Tick(now)
}

func TestTickAllOnlyTicksUpNodes(t *testing.T) {
	ids := []model.NodeID{0, 1}
	// The engine knows a third node so that quorum safety (fewer than
	// ceil(3/2) = 2 nodes Down) admits node 1's crash.
	state := faultstate.NewEngine(faultstate.Config{}, []model.NodeID{0, 1, 2})
	n0 := &tickCounter{Node: echoproto.NewNode(0)}
	n1 := &tickCounter{Node: echoproto.NewNode(1)}
	nodes := map[model.NodeID]model.DeterministicNode{
		0: n0,
		1: n1,
	}
	clients := map[model.ClientID]model.Client{
		0: echoproto.NewClient(0, ids),
	}
	rt := noderuntime.New(nodes, clients, state)

	q := eventqueue.New()
	state.ForceNodeTransition(1, 0, false, q)
	ev, _ := q.Pop()
	state.HandleNodeTransition(ev, 0, rng.New(1), q)

	// Client pings both nodes every tick; only node 0 is Up so only it can
	// reply, but TickAll must not panic or touch node 1's Tick at all.
	msgs := rt.TickAll(0)
	if len(msgs) == 0 {
		t.Fatal("expected the client's Tick to produce Ping messages")
	}
	if n0.ticks != 1 {
		t.Fatalf("Up node 0 ticked %d times, want 1", n0.ticks)
	}
	if n1.ticks != 0 {
		t.Fatalf("Down node 1 ticked %d times, want 0", n1.ticks)
	}
}

func TestDeliverDropsStaleGeneration(t *testing.T) {
	ids := []model.NodeID{0}
	state := faultstate.NewEngine(faultstate.Config{}, ids)
	nodes := map[model.NodeID]model.DeterministicNode{0: echoproto.NewNode(0)}
	rt := noderuntime.New(nodes, map[model.ClientID]model.Client{}, state)

	msg := echoproto.Ping{From: model.ClientEndpoint(0), To: model.NodeEndpoint(0), Seq: 1}
	ev := &eventqueue.Event{
		Time:       1,
		Kind:       eventqueue.KindDeliver,
		Generation: 42, // node 0 is still at generation 0
		Payload:    eventqueue.DeliverPayload{Message: msg},
	}
	out := rt.Deliver(ev, 1)
	if out != nil {
		t.Fatalf("Deliver with mismatched generation returned %v, want nil", out)
	}
}

func TestDeliverToDownNodeIsNoop(t *testing.T) {
	// Three nodes, so quorum safety (fewer than ceil(3/2) = 2 Down) admits
	// node 0's crash; with one node no crash is ever admitted.
	ids := []model.NodeID{0, 1, 2}
	state := faultstate.NewEngine(faultstate.Config{}, ids)
	nodes := map[model.NodeID]model.DeterministicNode{0: echoproto.NewNode(0)}
	rt := noderuntime.New(nodes, map[model.ClientID]model.Client{}, state)

	q := eventqueue.New()
	state.ForceNodeTransition(0, 0, false, q)
	ev, _ := q.Pop()
	state.HandleNodeTransition(ev, 0, rng.New(1), q)

	msg := echoproto.Ping{From: model.ClientEndpoint(0), To: model.NodeEndpoint(0), Seq: 1}
	deliverEv := &eventqueue.Event{
		Time:       1,
		Kind:       eventqueue.KindDeliver,
		Generation: state.NodeGeneration(0),
		Payload:    eventqueue.DeliverPayload{Message: msg},
	}
	if out := rt.Deliver(deliverEv, 1); out != nil {
		t.Fatalf("Deliver to a Down node returned %v, want nil", out)
	}
}

func TestDeliverToUpNodeDispatches(t *testing.T) {
	ids := []model.NodeID{0}
	state := faultstate.NewEngine(faultstate.Config{}, ids)
	nodes := map[model.NodeID]model.DeterministicNode{0: echoproto.NewNode(0)}
	rt := noderuntime.New(nodes, map[model.ClientID]model.Client{}, state)

	msg := echoproto.Ping{From: model.ClientEndpoint(0), To: model.NodeEndpoint(0), Seq: 1}
	ev := &eventqueue.Event{
		Time:       1,
		Kind:       eventqueue.KindDeliver,
		Generation: state.NodeGeneration(0),
		Payload:    eventqueue.DeliverPayload{Message: msg},
	}
	out := rt.Deliver(ev, 1)
	if len(out) != 1 {
		t.Fatalf("Deliver(Ping) produced %d messages, want 1 Pong", len(out))
	}
	if _, ok := out[0].(echoproto.Pong); !ok {
		t.Fatalf("Deliver(Ping) produced %T, want echoproto.Pong", out[0])
	}
}

func TestHandleNodeTransitionReinitializes(t *testing.T) {
	ids := []model.NodeID{0}
	state := faultstate.NewEngine(faultstate.Config{}, ids)
	node := echoproto.NewNode(0)
	nodes := map[model.NodeID]model.DeterministicNode{0: node}
	rt := noderuntime.New(nodes, map[model.ClientID]model.Client{}, state)

	node.ProcessMessage(echoproto.Ping{From: model.ClientEndpoint(0), To: model.NodeEndpoint(0), Seq: 1}, 0)
	if node.Snapshot().(echoproto.NodeState).ProcessedPings != 1 {
		t.Fatal("setup: expected one processed ping before crash")
	}

	rt.HandleNodeTransition(0, true)
	if node.Snapshot().(echoproto.NodeState).ProcessedPings != 0 {
		t.Fatal("HandleNodeTransition(recovered=true) should call Reinitialize")
	}
}
