package faultstate_test

import (
	"testing"
	"time"

	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/faultstate"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/rng"
)

func nodeIDs(n int) []model.NodeID {
	ids := make([]model.NodeID, n)
	for i := range ids {
		ids[i] = model.NodeID(i)
	}
	return ids
}

func TestAllUpWithNoFaultsConfigured(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(5))
	for i := 0; i < 5; i++ {
		if !e.IsNodeUp(model.NodeID(i)) {
			t.Fatalf("node %d should start Up", i)
		}
	}
	if !e.IsLinkUp(0, 1) {
		t.Fatal("link 0-1 should start Up")
	}
	if e.IsPartitioned(0, 1) {
		t.Fatal("no partition should be active initially")
	}
}

func TestInitWithZeroMeansSchedulesNothing(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(3))
	q := eventqueue.New()
	s := rng.New(1)
	e.Init(0, s, q)
	if q.Len() != 0 {
		t.Fatalf("Init with all-zero means scheduled %d events, want 0", q.Len())
	}
}

func TestNodeCrashAndRecoveryBumpsGeneration(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(3))
	q := eventqueue.New()

	before := e.NodeGeneration(0)
	e.ForceNodeTransition(0, 10, false, q)
	ev, _ := q.Pop()
	applied, recovered := e.HandleNodeTransition(ev, 10, rng.New(1), q)
	if !applied || recovered {
		t.Fatalf("applied=%v recovered=%v, want applied=true recovered=false", applied, recovered)
	}
	if e.IsNodeUp(0) {
		t.Fatal("node 0 should be Down after crash transition")
	}
	if e.NodeGeneration(0) != before+1 {
		t.Fatalf("generation = %d, want %d", e.NodeGeneration(0), before+1)
	}

	e.ForceNodeTransition(0, 20, true, q)
	ev2, _ := q.Pop()
	applied, recovered = e.HandleNodeTransition(ev2, 20, rng.New(1), q)
	if !applied || !recovered {
		t.Fatalf("applied=%v recovered=%v, want both true", applied, recovered)
	}
	if !e.IsNodeUp(0) {
		t.Fatal("node 0 should be Up after recovery transition")
	}
}

func TestStaleEventDiscarded(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(3))
	q := eventqueue.New()

	stale := &eventqueue.Event{
		Time:       5,
		Kind:       eventqueue.KindNodeTransition,
		Generation: 999, // doesn't match the engine's generation 0
		Payload:    eventqueue.NodeTransitionPayload{NodeID: 0, NewUp: false},
	}
	applied, recovered := e.HandleNodeTransition(stale, 5, rng.New(1), q)
	if applied || recovered {
		t.Fatal("stale event should not be applied")
	}
	if !e.IsNodeUp(0) {
		t.Fatal("node 0 should remain Up after a stale Down event")
	}
}

func TestQuorumSafetyNeverDownsMajority(t *testing.T) {
	// 5 nodes: quorum bound is ceil(5/2) = 3, so at most 2 may ever be Down
	// at once. Drive many proposed Down transitions through the engine
	// directly (bypassing the mean-time sampling) and confirm the bound
	// holds no matter how many proposals arrive.
	e := faultstate.NewEngine(faultstate.Config{MeanNodeRecoveryTime: time.Hour}, nodeIDs(5))
	q := eventqueue.New()
	s := rng.New(3)

	for round := 0; round < 50; round++ {
		for n := 0; n < 5; n++ {
			gen := e.NodeGeneration(model.NodeID(n))
			ev := &eventqueue.Event{
				Time:       model.VirtualTime(round),
				Kind:       eventqueue.KindNodeTransition,
				Generation: gen,
				Payload:    eventqueue.NodeTransitionPayload{NodeID: model.NodeID(n), NewUp: false},
			}
			e.HandleNodeTransition(ev, model.VirtualTime(round), s, q)
			if e.DownCount() >= 3 {
				t.Fatalf("round %d: DownCount() = %d, must stay below quorum 3", round, e.DownCount())
			}
		}
	}
}

func TestPartitionIsolatesGroups(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(4))
	q := eventqueue.New()

	e.ForcePartitionTransition(5, true, [][]model.NodeID{{0, 1}, {2, 3}}, q)
	ev, _ := q.Pop()
	if !e.HandlePartitionTransition(ev, 5, rng.New(1), q) {
		t.Fatal("forced partition activation should apply")
	}

	if e.IsPartitioned(0, 1) {
		t.Fatal("0 and 1 are in the same group, should not be partitioned")
	}
	if !e.IsPartitioned(0, 2) {
		t.Fatal("0 and 2 are in different groups, should be partitioned")
	}

	e.ForcePartitionTransition(10, false, nil, q)
	ev2, _ := q.Pop()
	if !e.HandlePartitionTransition(ev2, 10, rng.New(1), q) {
		t.Fatal("forced partition heal should apply")
	}
	if e.IsPartitioned(0, 2) {
		t.Fatal("partition should be healed")
	}
}

func TestLinkTransitionTogglesState(t *testing.T) {
	e := faultstate.NewEngine(faultstate.Config{}, nodeIDs(2))
	q := eventqueue.New()

	l := eventqueue.LinkID{A: 0, B: 1}
	e.ForceLinkTransition(l, 5, false, q)
	ev, _ := q.Pop()
	if !e.HandleLinkTransition(ev, 5, rng.New(1), q) {
		t.Fatal("forced link-down transition should apply")
	}
	if e.IsLinkUp(0, 1) {
		t.Fatal("link 0-1 should be Down")
	}
}
