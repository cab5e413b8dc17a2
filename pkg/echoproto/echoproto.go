// Package echoproto is a minimal ping/pong protocol used as a runnable
// example and as a test fixture for the simulator core: one client pings
// every node on each tick until every node has acknowledged at least once,
// a node counts how many pings it has processed, and an invariant checker
// verifies no client ever claims to be finished without having heard back
// from every node it is supposed to be waiting on.
package echoproto

import (
	"fmt"

	"github.com/jihwankim/glitch/pkg/model"
)

// Ping is sent from a client to a node.
type Ping struct {
	From model.Endpoint
	To   model.Endpoint
	Seq  int
}

func (m Ping) Source() model.Endpoint      { return m.From }
func (m Ping) Destination() model.Endpoint { return m.To }

// Pong is sent from a node back to the client that pinged it.
type Pong struct {
	From model.Endpoint
	To   model.Endpoint
	Seq  int
}

func (m Pong) Source() model.Endpoint      { return m.From }
func (m Pong) Destination() model.Endpoint { return m.To }

// NodeState is the read-only view a Node exposes through Snapshot.
type NodeState struct {
	ProcessedPings int
}

// Node replies to every Ping with a Pong and counts how many pings it has
// processed since its last crash.
type Node struct {
	id             model.NodeID
	processedPings int
}

// NewNode builds a Node with the given id.
func NewNode(id model.NodeID) *Node { return &Node{id: id} }

func (n *Node) ID() model.NodeID { return n.id }

func (n *Node) ProcessMessage(msg model.Message, now model.VirtualTime) []model.Message {
	ping, ok := msg.(Ping)
	if !ok {
		return nil
	}
	n.processedPings++
	return []model.Message{Pong{
		From: model.NodeEndpoint(n.id),
		To:   ping.From,
		Seq:  ping.Seq,
	}}
}

func (n *Node) Tick(now model.VirtualTime) []model.Message { return nil }

// Reinitialize simulates a cold restart: the processed-ping counter is
// lost, matching a protocol that keeps no durable state across a crash.
func (n *Node) Reinitialize() { n.processedPings = 0 }

func (n *Node) Snapshot() interface{} {
	return NodeState{ProcessedPings: n.processedPings}
}

// ClientState is the read-only view a Client exposes through Snapshot.
type ClientState struct {
	AckedNodes int
	TotalNodes int
}

// Client pings every target node on every tick until each has acked at
// least once, then stops sending and reports itself finished.
type Client struct {
	id      model.ClientID
	targets []model.NodeID
	acked   map[model.NodeID]bool
	seq     int
}

// NewClient builds a Client that pings every node in targets.
func NewClient(id model.ClientID, targets []model.NodeID) *Client {
	return &Client{id: id, targets: targets, acked: make(map[model.NodeID]bool)}
}

func (c *Client) ID() model.ClientID { return c.id }

func (c *Client) ProcessMessage(msg model.Message, now model.VirtualTime) []model.Message {
	pong, ok := msg.(Pong)
	if !ok {
		return nil
	}
	c.acked[pong.From.Node] = true
	return nil
}

func (c *Client) Tick(now model.VirtualTime) []model.Message {
	var out []model.Message
	for _, t := range c.targets {
		if c.acked[t] {
			continue
		}
		c.seq++
		out = append(out, Ping{
			From: model.ClientEndpoint(c.id),
			To:   model.NodeEndpoint(t),
			Seq:  c.seq,
		})
	}
	return out
}

func (c *Client) Snapshot() interface{} {
	return ClientState{AckedNodes: len(c.acked), TotalNodes: len(c.targets)}
}

func (c *Client) IsFinished() bool {
	return len(c.acked) == len(c.targets)
}

// Invariant is an InvariantChecker that fails if any client's Snapshot
// reports itself finished (per IsFinished, mirrored in ClientState) while
// having acked fewer nodes than it targets — catching a protocol bug
// where IsFinished and the acked-count bookkeeping drift apart.
var Invariant model.InvariantCheckerFunc = func(snap model.Snapshot) error {
	for id, cv := range snap.Clients {
		st, ok := cv.State.(ClientState)
		if !ok {
			continue
		}
		if cv.IsFinished && st.AckedNodes < st.TotalNodes {
			return &invariantError{clientID: id, acked: st.AckedNodes, total: st.TotalNodes}
		}
	}
	return nil
}

type invariantError struct {
	clientID     model.ClientID
	acked, total int
}

func (e *invariantError) Error() string {
	return fmt.Sprintf("client %d reports finished with %d/%d nodes acked", e.clientID, e.acked, e.total)
}
