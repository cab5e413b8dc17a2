// Package simulator drives the virtual-time event loop: it pops events in
// (time, sequence) order, dispatches them to fault-state machines or
// node/client runtime code, and stops the run on success, an invariant
// violation, a liveness timeout, or a user panic.
package simulator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jihwankim/glitch/pkg/config"
	"github.com/jihwankim/glitch/pkg/eventqueue"
	"github.com/jihwankim/glitch/pkg/faultstate"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/noderuntime"
	"github.com/jihwankim/glitch/pkg/reporting"
	"github.com/jihwankim/glitch/pkg/rng"
	"github.com/jihwankim/glitch/pkg/transport"
)

// ErrorKind classifies why a run stopped short of success.
type ErrorKind string

const (
	KindInvariantViolation   ErrorKind = "invariant_violation"
	KindLivenessTimeout      ErrorKind = "liveness_timeout"
	KindConfigurationInvalid ErrorKind = "configuration_invalid"
	KindUserPanic            ErrorKind = "user_panic"
)

// RunError is the structured error a failed Run returns. At is the virtual
// time the failure was detected, zero for failures detected before the
// event loop starts (e.g. configuration errors).
type RunError struct {
	Kind    ErrorKind
	Message string
	At      model.VirtualTime
}

func (e *RunError) Error() string {
	if e.Kind == KindConfigurationInvalid {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.At, e.Message)
}

// RunState is the internal, observability-only lifecycle state of a run,
// reported to a ProgressReporter but never consulted for control flow.
type RunState string

const (
	StateInitializing RunState = "initializing"
	StateRunning      RunState = "running"
	StateSucceeded    RunState = "succeeded"
	StateFailed       RunState = "failed"
	StateAborted      RunState = "aborted"
)

// Driver owns one simulation run's live state: the event queue, the
// fault-state machines, the node/client runtime, and the single RNG
// stream they all draw from.
type Driver struct {
	cfg    config.Config
	runID  string
	stream *rng.Stream
	queue  *eventqueue.Queue
	state  *faultstate.Engine
	policy *transport.Policy
	rt     *noderuntime.Runtime
	abort  *abortController

	invariantCheckers []model.InvariantChecker
	finish            model.FinishCondition

	faultEvents []reporting.FaultEvent
	eventsSeen  uint64
	now         model.VirtualTime // time of the last processed event
	runState    RunState
	logger      *reporting.Logger
	progress    *reporting.ProgressReporter

	// forcedNodeGen/forcedLinkGen/forcedPartitionGen track the generation
	// scheduleForced expects the next forced transition against a given
	// entity to carry, so that a chain of forced transitions against the
	// same node/link/partition (e.g. "down at t=0, up at t=300ms") each get
	// stamped with the generation they will actually hold once every
	// forced transition before them in the list has applied.
	forcedNodeGen      map[model.NodeID]uint64
	forcedLinkGen      map[eventqueue.LinkID]uint64
	forcedPartitionGen uint64
	forcedPartitionSet bool
}

// New builds a Driver for one run. runID identifies this run in report
// filenames and log lines only — it plays no role in the simulated behavior.
func New(
	cfg config.Config,
	runID string,
	nodes map[model.NodeID]model.DeterministicNode,
	clients map[model.ClientID]model.Client,
	checkers []model.InvariantChecker,
	finish model.FinishCondition,
) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &RunError{Kind: KindConfigurationInvalid, Message: err.Error()}
	}
	if len(nodes) != cfg.Simulation.NodeCount {
		return nil, &RunError{Kind: KindConfigurationInvalid, Message: fmt.Sprintf("expected %d nodes, got %d", cfg.Simulation.NodeCount, len(nodes))}
	}
	if len(clients) != cfg.Simulation.ClientCount {
		return nil, &RunError{Kind: KindConfigurationInvalid, Message: fmt.Sprintf("expected %d clients, got %d", cfg.Simulation.ClientCount, len(clients))}
	}

	nodeIDs := make([]model.NodeID, 0, len(nodes))
	for id := range nodes {
		nodeIDs = append(nodeIDs, id)
	}
	// Map iteration order is random; the fault-state engine draws from the
	// RNG in node order, so the ids must be in a fixed (ascending) order.
	slices.Sort(nodeIDs)

	fsCfg := faultstate.Config{
		MeanTimeBetweenLinkFailures:      cfg.Faults.MeanTimeBetweenLinkFailures,
		MeanLinkRecoveryTime:             cfg.Faults.MeanLinkRecoveryTime,
		MeanTimeBetweenPartitionFailures: cfg.Faults.MeanTimeBetweenPartitionFailures,
		MeanPartitionRecoveryTime:        cfg.Faults.MeanPartitionRecoveryTime,
		MeanTimeBetweenNodeFailures:      cfg.Faults.MeanTimeBetweenNodeFailures,
		MeanNodeRecoveryTime:             cfg.Faults.MeanNodeRecoveryTime,
	}
	state := faultstate.NewEngine(fsCfg, nodeIDs)

	stream := rng.New(cfg.Simulation.Seed)
	policy := transport.NewPolicy(transport.Config{
		MinLatency:           cfg.Network.MinLatency,
		MaxLatency:           cfg.Network.MaxLatency,
		DuplicateProbability: cfg.Network.DuplicateProbability,
	}, state)
	rt := noderuntime.New(nodes, clients, state)

	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  reporting.LogLevel(cfg.Logging.Level),
		Format: reporting.LogFormat(cfg.Logging.Format),
	}).WithRun(runID, cfg.Simulation.Seed)

	return &Driver{
		cfg:               cfg,
		runID:             runID,
		stream:            stream,
		queue:             eventqueue.New(),
		state:             state,
		policy:            policy,
		rt:                rt,
		abort:             newAbortController(),
		invariantCheckers: checkers,
		finish:            finish,
		runState:          StateInitializing,
		logger:            logger,
		forcedNodeGen:     make(map[model.NodeID]uint64),
		forcedLinkGen:     make(map[eventqueue.LinkID]uint64),
	}, nil
}

// transitionState moves the run to a new lifecycle state and logs the
// transition at Debug level. This is purely observability: runState is
// never read back to gate control flow.
func (d *Driver) transitionState(to RunState) {
	d.logger.Debug("run state transition", "from", string(d.runState), "to", string(to))
	if d.progress != nil {
		d.progress.ReportStateTransition(string(d.runState), string(to))
	}
	d.runState = to
}

// Abort requests early termination of a running or about-to-run Driver.
func (d *Driver) Abort(reason string) { d.abort.Stop(reason) }

// SetProgressReporter attaches a live-progress sink: every run-state
// transition and recorded fault event is pushed to it as the run
// progresses, in addition to the RunReport Run ultimately returns. Nil by
// default — a Driver works fine without one.
func (d *Driver) SetProgressReporter(pr *reporting.ProgressReporter) { d.progress = pr }

// Run executes the event loop to completion (success, invariant violation,
// liveness timeout, user panic, or ctx cancellation) and returns a report.
// A non-nil error is always a *RunError except for a user panic caught
// mid-run, which is wrapped the same way.
func (d *Driver) Run(ctx context.Context) (report *reporting.RunReport, err error) {
	started := time.Now()
	d.abort.watch(ctx)
	d.transitionState(StateRunning)

	d.state.Init(0, d.stream, d.queue)
	for _, ft := range d.cfg.Faults.ForcedTransitions {
		d.scheduleForced(ft)
	}
	d.queue.Push(&eventqueue.Event{Time: 0, Seq: d.queue.NextSeq(), Kind: eventqueue.KindTick})

	var runErr *RunError
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = &RunError{Kind: KindUserPanic, Message: fmt.Sprintf("%v", r), At: d.now}
			}
		}()
		runErr = d.loop()
	}()

	switch {
	case runErr == nil:
		d.transitionState(StateSucceeded)
	case d.abort.IsStopped() && runErr.Kind == KindLivenessTimeout:
		d.transitionState(StateAborted)
	default:
		d.transitionState(StateFailed)
	}

	report = d.buildReport(started, runErr)
	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

func (d *Driver) loop() *RunError {
	maxTime := model.VirtualTime(d.cfg.Simulation.MaxSimTime)

	for {
		select {
		case <-d.abort.StopChannel():
			return &RunError{Kind: KindLivenessTimeout, Message: "run aborted: " + d.abort.Reason()}
		default:
		}

		ev, ok := d.queue.Pop()
		if !ok {
			return &RunError{Kind: KindLivenessTimeout, Message: "event queue exhausted before finish condition was met"}
		}
		if ev.Time > maxTime {
			return &RunError{Kind: KindLivenessTimeout, Message: "max_sim_time exceeded", At: maxTime}
		}
		d.eventsSeen++
		d.now = ev.Time

		switch ev.Kind {
		case eventqueue.KindTick:
			if rerr := d.handleTick(ev); rerr != nil {
				return rerr
			}
		case eventqueue.KindDeliver:
			outs := d.rt.Deliver(ev, ev.Time)
			d.sendAll(outs, ev.Time)
		case eventqueue.KindLinkTransition:
			if d.state.HandleLinkTransition(ev, ev.Time, d.stream, d.queue) {
				d.recordFault(ev.Time, "link", ev.Payload)
			}
		case eventqueue.KindNodeTransition:
			applied, recovered := d.state.HandleNodeTransition(ev, ev.Time, d.stream, d.queue)
			if applied {
				d.recordFault(ev.Time, "node", ev.Payload)
				p := ev.Payload.(eventqueue.NodeTransitionPayload)
				d.rt.HandleNodeTransition(p.NodeID, recovered)
			}
		case eventqueue.KindPartitionTransition:
			if d.state.HandlePartitionTransition(ev, ev.Time, d.stream, d.queue) {
				d.recordFault(ev.Time, "partition", ev.Payload)
			}
		}

		if ev.Kind != eventqueue.KindTick {
			continue
		}
		if rerr := d.checkInvariants(ev.Time); rerr != nil {
			return rerr
		}
		if d.finish != nil && d.finish.Finished(d.rt.Snapshot(d.cfg.Simulation.Seed, ev.Time)) {
			return nil
		}
	}
}

func (d *Driver) handleTick(ev *eventqueue.Event) *RunError {
	outs := d.rt.TickAll(ev.Time)
	d.sendAll(outs, ev.Time)
	d.scheduleNextTick(ev.Time)
	return nil
}

func (d *Driver) sendAll(msgs []model.Message, now model.VirtualTime) {
	for _, m := range msgs {
		transport.Send(d.policy, d.state, m, now, d.stream, d.queue)
	}
}

func (d *Driver) scheduleNextTick(now model.VirtualTime) {
	d.queue.Push(&eventqueue.Event{
		Time: now.Add(d.cfg.Simulation.TickInterval),
		Seq:  d.queue.NextSeq(),
		Kind: eventqueue.KindTick,
	})
}

func (d *Driver) checkInvariants(now model.VirtualTime) *RunError {
	if len(d.invariantCheckers) == 0 {
		return nil
	}
	snap := d.rt.Snapshot(d.cfg.Simulation.Seed, now)
	for _, c := range d.invariantCheckers {
		if err := c.Check(snap); err != nil {
			return &RunError{Kind: KindInvariantViolation, Message: err.Error(), At: now}
		}
	}
	return nil
}

func (d *Driver) recordFault(at model.VirtualTime, kind string, payload interface{}) {
	fe := reporting.FaultEvent{
		At:          at.String(),
		Kind:        kind,
		Description: fmt.Sprintf("%+v", payload),
	}
	d.faultEvents = append(d.faultEvents, fe)
	if d.progress != nil {
		d.progress.ReportFaultEvent(fe)
	}
}

// scheduleForced pushes one scripted fault transition. Forced transitions
// are all queued ahead of the run, before the engine has processed any of
// them, so a chain of transitions against the same entity (e.g. a node
// forced down and later forced back up) cannot read the engine's live
// generation counter for the later ones — it hasn't advanced yet. Instead
// this tracks, per entity, the generation the next forced transition
// against it is expected to carry once every prior one in the list (for
// that same entity) has applied, seeded from the engine's generation the
// first time that entity is touched.
func (d *Driver) scheduleForced(ft config.ForcedTransition) {
	at := model.VirtualTime(ft.At)
	switch ft.Kind {
	case "link":
		l := eventqueue.LinkID{A: model.NodeID(ft.NodeA), B: model.NodeID(ft.NodeB)}
		if l.A > l.B {
			l.A, l.B = l.B, l.A
		}
		gen, seen := d.forcedLinkGen[l]
		if !seen {
			gen = d.state.LinkGeneration(l)
		}
		d.state.ForceLinkTransitionAt(l, at, ft.Up, gen, d.queue)
		d.forcedLinkGen[l] = gen + 1
	case "node":
		n := model.NodeID(ft.Node)
		gen, seen := d.forcedNodeGen[n]
		if !seen {
			gen = d.state.NodeGeneration(n)
		}
		d.state.ForceNodeTransitionAt(n, at, ft.Up, gen, d.queue)
		d.forcedNodeGen[n] = gen + 1
	case "partition":
		var groups [][]model.NodeID
		for _, g := range ft.Groups {
			ng := make([]model.NodeID, len(g))
			for i, id := range g {
				ng[i] = model.NodeID(id)
			}
			groups = append(groups, ng)
		}
		gen := d.forcedPartitionGen
		if !d.forcedPartitionSet {
			gen = d.state.PartitionGeneration()
			d.forcedPartitionSet = true
		}
		d.state.ForcePartitionTransitionAt(at, ft.Up, groups, gen, d.queue)
		d.forcedPartitionGen = gen + 1
	}
}

func (d *Driver) buildReport(started time.Time, runErr *RunError) *reporting.RunReport {
	now := d.now

	r := &reporting.RunReport{
		RunID:            d.runID,
		Seed:             d.cfg.Simulation.Seed,
		StartedAt:        started,
		EndedAt:          time.Now(),
		WallClock:        time.Since(started).String(),
		FinalVirtualTime: now.String(),
		EventsProcessed:  d.eventsSeen,
		NodeCount:        d.cfg.Simulation.NodeCount,
		ClientCount:      d.cfg.Simulation.ClientCount,
		FaultEvents:      d.faultEvents,
	}

	switch {
	case runErr == nil:
		r.Status = reporting.StatusSucceeded
	case runErr.Kind == KindInvariantViolation:
		r.Status = reporting.StatusInvariantViolation
		r.Message = runErr.Message
		r.InvariantViolations = []string{runErr.Message}
		r.FinalVirtualTime = runErr.At.String()
	case runErr.Kind == KindLivenessTimeout:
		r.Status = reporting.StatusLivenessTimeout
		r.Message = runErr.Message
	case runErr.Kind == KindConfigurationInvalid:
		r.Status = reporting.StatusConfigurationInvalid
		r.Message = runErr.Message
	case runErr.Kind == KindUserPanic:
		r.Status = reporting.StatusUserPanic
		r.Message = runErr.Message
		r.FinalVirtualTime = runErr.At.String()
	}

	return r
}
