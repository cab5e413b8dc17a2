package reporting

import "time"

// RunReport is the complete record of one simulation run, written to disk
// once the run finishes (whether it succeeded, hit an invariant violation,
// or timed out).
type RunReport struct {
	// Run identity and reproduction.
	RunID     string    `json:"run_id"`
	Seed      int64     `json:"seed"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	WallClock string    `json:"wall_clock"`

	// Result.
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`

	// Virtual-time accounting.
	FinalVirtualTime string `json:"final_virtual_time"`
	EventsProcessed  uint64 `json:"events_processed"`

	// Topology summary.
	NodeCount   int `json:"node_count"`
	ClientCount int `json:"client_count"`

	// Fault activity observed during the run.
	FaultEvents []FaultEvent `json:"fault_events,omitempty"`

	// Invariant violations, if Status == StatusInvariantViolation. Usually
	// length 1 — the run stops at the first violation — but the field is
	// a slice in case a caller accumulates from multiple checkpoints
	// before stopping.
	InvariantViolations []string `json:"invariant_violations,omitempty"`
}

// RunStatus is the terminal outcome of a simulation run.
type RunStatus string

const (
	StatusSucceeded           RunStatus = "succeeded"
	StatusInvariantViolation  RunStatus = "invariant_violation"
	StatusLivenessTimeout     RunStatus = "liveness_timeout"
	StatusConfigurationInvalid RunStatus = "configuration_invalid"
	StatusUserPanic           RunStatus = "user_panic"
)

// FaultEvent records one observed link/node/partition transition for the
// report's audit trail.
type FaultEvent struct {
	At          string `json:"at"` // virtual time, formatted
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// RunSummary is the lightweight index entry Storage.ListReports returns,
// built from each full report it loads.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Seed      int64     `json:"seed"`
	StartedAt time.Time `json:"started_at"`
	Status    RunStatus `json:"status"`
	Filepath  string    `json:"filepath"`
}
