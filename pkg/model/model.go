// Package model defines the types and interfaces the simulator core shares
// with user-supplied protocol code. Nothing in this package performs I/O or
// randomness; it is the vocabulary the rest of the core is built on.
package model

import (
	"strconv"
	"time"
)

// NodeID is a dense, opaque identifier for a server node, 0..N-1.
type NodeID int

// ClientID is a dense, opaque identifier for a client, disjoint from NodeID.
type ClientID int

// VirtualTime is simulation-internal monotonic time. Arithmetic on it is
// exact integer nanosecond arithmetic, never float — it is a named
// time.Duration measured since simulation start.
type VirtualTime time.Duration

// Add returns t advanced by d.
func (t VirtualTime) Add(d time.Duration) VirtualTime {
	return t + VirtualTime(d)
}

// Before reports whether t is strictly earlier than u.
func (t VirtualTime) Before(u VirtualTime) bool { return t < u }

// Sub returns t-u as a time.Duration.
func (t VirtualTime) Sub(u VirtualTime) time.Duration {
	return time.Duration(t - u)
}

func (t VirtualTime) String() string {
	return time.Duration(t).String()
}

// EndpointKind distinguishes a node endpoint from a client endpoint.
type EndpointKind int

const (
	EndpointNode EndpointKind = iota
	EndpointClient
)

// Endpoint identifies a message's source or destination: either a NodeID or
// a ClientID, tagged by Kind.
type Endpoint struct {
	Kind     EndpointKind
	Node     NodeID
	Client   ClientID
}

// NodeEndpoint builds an Endpoint referring to a server node.
func NodeEndpoint(id NodeID) Endpoint { return Endpoint{Kind: EndpointNode, Node: id} }

// ClientEndpoint builds an Endpoint referring to a client.
func ClientEndpoint(id ClientID) Endpoint { return Endpoint{Kind: EndpointClient, Client: id} }

func (e Endpoint) String() string {
	if e.Kind == EndpointClient {
		return "client:" + strconv.Itoa(int(e.Client))
	}
	return "node:" + strconv.Itoa(int(e.Node))
}

// Message is the abstract, user-owned protocol message. The simulator never
// inspects payloads — only Source/Destination to route delivery. Messages
// must be value-copyable since duplication requires handing out a second,
// independently deliverable copy.
type Message interface {
	Source() Endpoint
	Destination() Endpoint
}

// DeterministicNode is the capability set a user-supplied server node must
// implement. All methods are called synchronously from the driver's single
// goroutine and must return promptly — no blocking I/O, no goroutines that
// outlive the call.
type DeterministicNode interface {
	ID() NodeID
	// ProcessMessage handles one inbound message and returns any messages
	// the node wishes to send in response.
	ProcessMessage(msg Message, now VirtualTime) []Message
	// Tick is called once per global tick for every currently-Up node.
	Tick(now VirtualTime) []Message
	// Reinitialize rebuilds the node's in-memory state after a crash. What
	// survives a crash (if anything) is entirely up to the implementation.
	Reinitialize()
	// Snapshot returns a read-only view of the node's state for the
	// invariant checker. Implementations must not alias live mutable state.
	Snapshot() interface{}
}

// Client is the capability set a user-supplied workload driver must
// implement. It has the same shape as DeterministicNode, plus IsFinished,
// and is never crashed, recovered, or partitioned by the simulator.
type Client interface {
	ID() ClientID
	ProcessMessage(msg Message, now VirtualTime) []Message
	Tick(now VirtualTime) []Message
	Snapshot() interface{}
	// IsFinished reports whether this client considers its workload done.
	// The ready-made AllClientsFinished condition requires every client to
	// report true before a run can succeed.
	IsFinished() bool
}

// Snapshot is the read-only system view handed to an InvariantChecker.
type Snapshot struct {
	Seed    int64
	Now     VirtualTime
	Nodes   map[NodeID]NodeView
	Clients map[ClientID]ClientView
}

// NodeView is a read-only view of one node at Snapshot time.
type NodeView struct {
	ID    NodeID
	Up    bool
	State interface{}
}

// ClientView is a read-only view of one client at Snapshot time.
type ClientView struct {
	ID         ClientID
	State      interface{}
	IsFinished bool
}

// InvariantChecker is a user-supplied predicate that must hold at every
// checkpoint. A non-nil return aborts the run with InvariantViolation.
type InvariantChecker interface {
	Check(snap Snapshot) error
}

// InvariantCheckerFunc adapts a plain function to InvariantChecker.
type InvariantCheckerFunc func(snap Snapshot) error

func (f InvariantCheckerFunc) Check(snap Snapshot) error { return f(snap) }

// FinishCondition reports whether the simulated workload is complete.
type FinishCondition interface {
	Finished(snap Snapshot) bool
}

// FinishConditionFunc adapts a plain function to FinishCondition.
type FinishConditionFunc func(snap Snapshot) bool

func (f FinishConditionFunc) Finished(snap Snapshot) bool { return f(snap) }

// AllClientsFinished is a ready-made FinishCondition satisfied once every
// client reports IsFinished() == true; it is never satisfied when there are
// no clients. Most protocols can use this directly instead of writing
// their own.
var AllClientsFinished FinishConditionFunc = func(snap Snapshot) bool {
	if len(snap.Clients) == 0 {
		return false
	}
	for _, c := range snap.Clients {
		if !c.IsFinished {
			return false
		}
	}
	return true
}
