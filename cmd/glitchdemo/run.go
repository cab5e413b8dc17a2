package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jihwankim/glitch/pkg/config"
	"github.com/jihwankim/glitch/pkg/echoproto"
	"github.com/jihwankim/glitch/pkg/model"
	"github.com/jihwankim/glitch/pkg/reporting"
	"github.com/jihwankim/glitch/pkg/simulator"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run the echo protocol once and print a report",
	RunE:  runGlitchDemo,
}

func init() {
	runCmd.Flags().Int64("seed", 0, "override simulation.seed from the config file")
	runCmd.Flags().String("format", "text", "progress output format (text, json)")
}

func runGlitchDemo(cmd *cobra.Command, args []string) error {
	seedOverride, _ := cmd.Flags().GetInt64("seed")
	outputFormat, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if seedOverride != 0 {
		cfg.Simulation.Seed = seedOverride
	}

	logLevel := reporting.LogLevelInfo
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(cfg.Logging.Format),
		Output: os.Stdout,
	})

	logger.Info("glitchdemo starting", "seed", cfg.Simulation.Seed, "nodes", cfg.Simulation.NodeCount)

	nodes := make(map[model.NodeID]model.DeterministicNode, cfg.Simulation.NodeCount)
	nodeIDs := make([]model.NodeID, cfg.Simulation.NodeCount)
	for i := 0; i < cfg.Simulation.NodeCount; i++ {
		id := model.NodeID(i)
		nodes[id] = echoproto.NewNode(id)
		nodeIDs[i] = id
	}

	clients := make(map[model.ClientID]model.Client, cfg.Simulation.ClientCount)
	for i := 0; i < cfg.Simulation.ClientCount; i++ {
		id := model.ClientID(i)
		clients[id] = echoproto.NewClient(id, nodeIDs)
	}

	driver, err := simulator.New(*cfg, fmt.Sprintf("demo-%d", cfg.Simulation.Seed), nodes, clients,
		[]model.InvariantChecker{echoproto.Invariant}, model.AllClientsFinished)
	if err != nil {
		return fmt.Errorf("failed to build simulator: %w", err)
	}

	progress := reporting.NewProgressReporter(reporting.OutputFormat(outputFormat), logger)
	if verbose {
		// State transitions and fault events stream live only in verbose
		// mode — a quiet run just prints the final summary.
		driver.SetProgressReporter(progress)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, runErr := driver.Run(ctx)

	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if _, saveErr := storage.SaveReport(report); saveErr != nil {
		logger.Warn("failed to save report", "error", saveErr)
	}

	progress.ReportRunCompleted(report)

	if runErr != nil {
		return fmt.Errorf("run did not succeed: %w", runErr)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
