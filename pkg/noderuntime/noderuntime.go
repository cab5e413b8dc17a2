// Package noderuntime dispatches Deliver and Tick events to user-supplied
// DeterministicNode and Client implementations, and applies the side
// effects of a node crash or recovery.
package noderuntime

import (
	"slices"

	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/faultstate"
	"github.com/jihwankim/glitch/pkg/model"
)

// Runtime owns the live node/client instances and routes events to them.
type Runtime struct {
	nodes   map[model.NodeID]model.DeterministicNode
	clients map[model.ClientID]model.Client
	state   *faultstate.Engine
}

// New builds a Runtime over the given nodes and clients.
func New(nodes map[model.NodeID]model.DeterministicNode, clients map[model.ClientID]model.Client, state *faultstate.Engine) *Runtime {
	return &Runtime{nodes: nodes, clients: clients, state: state}
}

// Deliver applies a popped Deliver event's generation check and, if live,
// dispatches the message to its destination. Outgoing messages the
// destination produces in response are returned for the caller (the
// driver) to hand to the transport layer.
func (r *Runtime) Deliver(ev *eventqueue.Event, now model.VirtualTime) []model.Message {
	p := ev.Payload.(eventqueue.DeliverPayload)
	dst := p.Message.Destination()

	if dst.Kind == model.EndpointNode {
		if ev.Generation != r.state.NodeGeneration(dst.Node) {
			return nil // stale: node has since crashed/recovered
		}
		if !r.state.IsNodeUp(dst.Node) {
			return nil
		}
		node, ok := r.nodes[dst.Node]
		if !ok {
			return nil
		}
		return node.ProcessMessage(p.Message, now)
	}

	client, ok := r.clients[dst.Client]
	if !ok {
		return nil
	}
	return client.ProcessMessage(p.Message, now)
}

// TickAll calls Tick on every currently-Up node (in ascending NodeID order)
// and then every client (in ascending ClientID order), returning the
// outgoing messages in that same order. The caller assigns each resulting
// Deliver event a Seq via eventqueue.Queue.NextSeq in this traversal order,
// which is what makes same-tick message ordering deterministic.
func (r *Runtime) TickAll(now model.VirtualTime) []model.Message {
	var out []model.Message

	ids := make([]model.NodeID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !r.state.IsNodeUp(id) {
			continue
		}
		out = append(out, r.nodes[id].Tick(now)...)
	}

	cids := make([]model.ClientID, 0, len(r.clients))
	for id := range r.clients {
		cids = append(cids, id)
	}
	slices.Sort(cids)
	for _, id := range cids {
		out = append(out, r.clients[id].Tick(now)...)
	}

	return out
}

// HandleNodeTransition applies the side effect of a node having just
// transitioned, as reported by faultstate.Engine.HandleNodeTransition:
// recovered nodes get Reinitialize called before they accept any further
// events.
func (r *Runtime) HandleNodeTransition(id model.NodeID, recovered bool) {
	if !recovered {
		return
	}
	if node, ok := r.nodes[id]; ok {
		node.Reinitialize()
	}
}

// Snapshot builds a read-only model.Snapshot of every node and client for
// the invariant checker and finish condition.
func (r *Runtime) Snapshot(seed int64, now model.VirtualTime) model.Snapshot {
	snap := model.Snapshot{
		Seed:    seed,
		Now:     now,
		Nodes:   make(map[model.NodeID]model.NodeView, len(r.nodes)),
		Clients: make(map[model.ClientID]model.ClientView, len(r.clients)),
	}
	for id, n := range r.nodes {
		snap.Nodes[id] = model.NodeView{
			ID:    id,
			Up:    r.state.IsNodeUp(id),
			State: n.Snapshot(),
		}
	}
	for id, c := range r.clients {
		snap.Clients[id] = model.ClientView{
			ID:         id,
			State:      c.Snapshot(),
			IsFinished: c.IsFinished(),
		}
	}
	return snap
}
