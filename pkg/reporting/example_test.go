package reporting_test

import (
	"fmt"
	"os"
	"time"

	"github.com/jihwankim/glitch/pkg/reporting"
)

// Example demonstrates saving, listing, and formatting a run report.
func Example() {
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  reporting.LogLevelInfo,
		Format: reporting.LogFormatConsole,
		Output: os.Stdout,
	})

	logger.Info("simulation run starting")
	logger.Info("fault observed", "kind", "node_down", "node", 1)

	storage, err := reporting.NewStorage("./run-reports", 10, logger)
	if err != nil {
		fmt.Printf("Failed to create storage: %v\n", err)
		return
	}
	defer os.RemoveAll("./run-reports")

	report := &reporting.RunReport{
		RunID:            "run-12345",
		Seed:             42,
		StartedAt:        time.Now().Add(-2 * time.Second),
		EndedAt:          time.Now(),
		WallClock:        "2s",
		Status:           reporting.StatusSucceeded,
		FinalVirtualTime: "30s",
		EventsProcessed:  4821,
		NodeCount:        3,
		ClientCount:      1,
		FaultEvents: []reporting.FaultEvent{
			{At: "1.2s", Kind: "node_down", Description: "node 1 crashed"},
			{At: "4.5s", Kind: "node_up", Description: "node 1 recovered"},
		},
	}

	path, err := storage.SaveReport(report)
	if err != nil {
		fmt.Printf("Failed to save report: %v\n", err)
		return
	}

	fmt.Printf("Report saved successfully\n")

	summaries, err := storage.ListReports()
	if err != nil {
		fmt.Printf("Failed to list reports: %v\n", err)
		return
	}

	fmt.Printf("Found %d report(s)\n", len(summaries))
	for _, summary := range summaries {
		fmt.Printf("  %s: %s\n", summary.RunID, summary.Status)
	}

	loadedReport, err := storage.LoadReport(path)
	if err != nil {
		fmt.Printf("Failed to load report: %v\n", err)
		return
	}
	fmt.Printf("Loaded report for run: %s\n", loadedReport.RunID)

	formatter := reporting.NewFormatter(logger)

	textPath := "./run-reports/report.txt"
	if err := formatter.GenerateReport(report, reporting.ReportFormatText, textPath); err != nil {
		fmt.Printf("Failed to generate text report: %v\n", err)
		return
	}
	fmt.Printf("Text report generated\n")

	htmlPath := "./run-reports/report.html"
	if err := formatter.GenerateReport(report, reporting.ReportFormatHTML, htmlPath); err != nil {
		fmt.Printf("Failed to generate HTML report: %v\n", err)
		return
	}
	fmt.Printf("HTML report generated\n")

	// Output will vary due to timestamps, so we don't include it.
}
