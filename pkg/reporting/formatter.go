package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReportFormat represents the report output format.
type ReportFormat string

const (
	ReportFormatHTML ReportFormat = "html"
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
)

// Formatter generates formatted reports from a RunReport.
type Formatter struct {
	logger *Logger
}

// NewFormatter creates a report formatter.
func NewFormatter(logger *Logger) *Formatter {
	return &Formatter{logger: logger}
}

// GenerateReport writes report in the given format to outputPath.
func (f *Formatter) GenerateReport(report *RunReport, format ReportFormat, outputPath string) error {
	switch format {
	case ReportFormatHTML:
		return f.generateHTMLReport(report, outputPath)
	case ReportFormatText:
		return f.generateTextReport(report, outputPath)
	case ReportFormatJSON:
		return fmt.Errorf("JSON format is automatically saved by storage")
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func (f *Formatter) generateHTMLReport(report *RunReport, outputPath string) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"statusClass": func(s RunStatus) string {
			if s == StatusSucceeded {
				return "pass"
			}
			return "fail"
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}

	f.logger.Info("HTML report generated", "path", outputPath)
	return nil
}

func (f *Formatter) generateTextReport(report *RunReport, outputPath string) error {
	var buf bytes.Buffer

	buf.WriteString(strings.Repeat("=", 80) + "\n")
	buf.WriteString("   GLITCH RUN REPORT\n")
	buf.WriteString(strings.Repeat("=", 80) + "\n\n")

	buf.WriteString("RUN SUMMARY\n")
	buf.WriteString(strings.Repeat("-", 80) + "\n")
	buf.WriteString(fmt.Sprintf("Status:            %s\n", report.Status))
	buf.WriteString(fmt.Sprintf("Run ID:            %s\n", report.RunID))
	buf.WriteString(fmt.Sprintf("Seed:              %d\n", report.Seed))
	buf.WriteString(fmt.Sprintf("Started:           %s\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("Ended:             %s\n", report.EndedAt.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("Wall clock:        %s\n", report.WallClock))
	buf.WriteString(fmt.Sprintf("Final virtual time: %s\n", report.FinalVirtualTime))
	buf.WriteString(fmt.Sprintf("Events processed:  %d\n", report.EventsProcessed))
	buf.WriteString(fmt.Sprintf("Nodes/Clients:     %d/%d\n", report.NodeCount, report.ClientCount))
	if report.Message != "" {
		buf.WriteString(fmt.Sprintf("Message:           %s\n", report.Message))
	}
	buf.WriteString("\n")

	if len(report.FaultEvents) > 0 {
		buf.WriteString("FAULT ACTIVITY\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, fe := range report.FaultEvents {
			buf.WriteString(fmt.Sprintf("%d. [%s] %s: %s\n", i+1, fe.At, fe.Kind, fe.Description))
		}
		buf.WriteString("\n")
	}

	if len(report.InvariantViolations) > 0 {
		buf.WriteString("INVARIANT VIOLATIONS\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, v := range report.InvariantViolations {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, v))
		}
		buf.WriteString("\n")
	}

	buf.WriteString(strings.Repeat("=", 80) + "\n")
	buf.WriteString(fmt.Sprintf("Generated: %s\n", time.Now().Format("2006-01-02 15:04:05")))
	buf.WriteString(strings.Repeat("=", 80) + "\n")

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}

	f.logger.Info("text report generated", "path", outputPath)
	return nil
}

// GetReportPath builds the canonical path for a report in a given format.
func GetReportPath(report *RunReport, format ReportFormat, outputDir string) string {
	timestamp := report.StartedAt.Format("20060102-150405")
	filename := fmt.Sprintf("run-%s-%s.%s", timestamp, report.RunID, string(format))
	return filepath.Join(outputDir, filename)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Glitch Run Report - {{.RunID}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; color: #222; }
        h1, h2 { border-bottom: 2px solid #3498db; padding-bottom: 8px; }
        .status { display: inline-block; padding: 4px 12px; border-radius: 4px; font-weight: bold; color: white; }
        .status.pass { background-color: #27ae60; }
        .status.fail { background-color: #e74c3c; }
        table { width: 100%; border-collapse: collapse; margin: 16px 0; }
        th, td { padding: 8px 12px; text-align: left; border-bottom: 1px solid #ddd; }
        th { background-color: #3498db; color: white; }
    </style>
</head>
<body>
    <h1>Glitch Run Report <span class="status {{statusClass .Status}}">{{.Status}}</span></h1>
    <p>Run ID: {{.RunID}} · Seed: {{.Seed}}</p>
    <p>Started: {{formatTime .StartedAt}} · Ended: {{formatTime .EndedAt}} · Wall clock: {{.WallClock}}</p>
    <p>Final virtual time: {{.FinalVirtualTime}} · Events processed: {{.EventsProcessed}}</p>
    {{if .Message}}<p>{{.Message}}</p>{{end}}

    {{if .FaultEvents}}
    <h2>Fault Activity</h2>
    <table>
        <thead><tr><th>At</th><th>Kind</th><th>Description</th></tr></thead>
        <tbody>
        {{range .FaultEvents}}
        <tr><td>{{.At}}</td><td>{{.Kind}}</td><td>{{.Description}}</td></tr>
        {{end}}
        </tbody>
    </table>
    {{end}}

    {{if .InvariantViolations}}
    <h2>Invariant Violations</h2>
    <ul>
    {{range .InvariantViolations}}
        <li>{{.}}</li>
    {{end}}
    </ul>
    {{end}}
</body>
</html>
`
