package reporting

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutputFormat represents the progress output format.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// LiveRunState is a snapshot of a run in progress, for periodic progress
// reporting while the driver's main loop is still running.
type LiveRunState struct {
	RunID           string `json:"run_id"`
	State           string `json:"state"`
	VirtualTime     string `json:"virtual_time"`
	EventsSoFar     uint64 `json:"events_so_far"`
	NodesUp         int    `json:"nodes_up"`
	NodesDown       int    `json:"nodes_down"`
	PartitionActive bool   `json:"partition_active"`
}

// ProgressReporter reports run progress as the simulation advances.
type ProgressReporter struct {
	format OutputFormat
	logger *Logger
}

// NewProgressReporter creates a progress reporter.
func NewProgressReporter(format OutputFormat, logger *Logger) *ProgressReporter {
	return &ProgressReporter{format: format, logger: logger}
}

// ReportState reports the current run state.
func (pr *ProgressReporter) ReportState(state LiveRunState) {
	if pr.format == FormatJSON {
		pr.reportJSON(state)
		return
	}
	pr.reportText(state)
}

// ReportStateTransition reports a run lifecycle transition.
func (pr *ProgressReporter) ReportStateTransition(from, to string) {
	if pr.format == FormatJSON {
		data, _ := json.Marshal(map[string]interface{}{
			"event":      "state_transition",
			"from_state": from,
			"to_state":   to,
			"timestamp":  time.Now(),
		})
		fmt.Println(string(data))
		return
	}
	fmt.Printf("[STATE] %s -> %s\n", from, to)
}

// ReportFaultEvent reports one observed fault-state transition.
func (pr *ProgressReporter) ReportFaultEvent(fe FaultEvent) {
	if pr.format == FormatJSON {
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "fault_event",
			"fault":     fe,
			"timestamp": time.Now(),
		})
		fmt.Println(string(data))
		return
	}
	fmt.Printf("[FAULT] %s %s: %s\n", fe.At, fe.Kind, fe.Description)
}

// ReportRunCompleted reports a run's terminal status.
func (pr *ProgressReporter) ReportRunCompleted(report *RunReport) {
	if pr.format == FormatJSON {
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "run_completed",
			"report":    report,
			"timestamp": time.Now(),
		})
		fmt.Println(string(data))
		return
	}
	pr.printTextSummary(report)
}

func (pr *ProgressReporter) reportText(state LiveRunState) {
	fmt.Printf("[%s] %s | t=%s | events=%d | up=%d down=%d | partition=%v\n",
		time.Now().Format("15:04:05"),
		state.State,
		state.VirtualTime,
		state.EventsSoFar,
		state.NodesUp,
		state.NodesDown,
		state.PartitionActive,
	)
}

func (pr *ProgressReporter) reportJSON(state LiveRunState) {
	data, err := json.Marshal(state)
	if err != nil {
		pr.logger.Error("failed to marshal state", "error", err)
		return
	}
	fmt.Println(string(data))
}

func (pr *ProgressReporter) printTextSummary(report *RunReport) {
	fmt.Printf("\n[RUN SUMMARY] %s\n", report.Status)
	fmt.Printf("  Run ID:           %s\n", report.RunID)
	fmt.Printf("  Seed:             %d\n", report.Seed)
	fmt.Printf("  Final virtual time: %s\n", report.FinalVirtualTime)
	fmt.Printf("  Events processed: %d\n", report.EventsProcessed)
	if report.Message != "" {
		fmt.Printf("  Message:          %s\n", report.Message)
	}
	fmt.Println()
}
