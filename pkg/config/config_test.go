package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jihwankim/glitch/pkg/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() failed Validate(): %v", err)
	}
}

func TestValidateRejectsZeroNodeCount(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.NodeCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for node_count=0")
	}
}

func TestValidateRejectsNegativeClientCount(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.ClientCount = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative client_count")
	}
}

func TestValidateRejectsNonPositiveTickInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.TickInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for tick_interval=0")
	}
}

func TestValidateRejectsMaxLatencyBelowMin(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.MinLatency = 50 * time.Millisecond
	cfg.Network.MaxLatency = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_latency < min_latency")
	}
}

func TestValidateRejectsOutOfRangeDuplicateProbability(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.DuplicateProbability = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate_probability > 1")
	}
}

func TestValidateRejectsEmptyOutputDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reporting.OutputDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty output_dir")
	}
}

func TestValidateRejectsUnknownForcedTransitionKind(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Faults.ForcedTransitions = []config.ForcedTransition{{Kind: "meteor"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown forced-transition kind")
	}
}

func TestValidateAcceptsAllForcedTransitionKinds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Faults.ForcedTransitions = []config.ForcedTransition{
		{Kind: "link", NodeA: 0, NodeB: 1, Up: false},
		{Kind: "node", Node: 0, Up: false},
		{Kind: "partition", Up: true, Groups: [][]int{{0}, {1}}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid forced transitions, got: %v", err)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) returned error: %v", err)
	}
	if cfg.Simulation.NodeCount != config.DefaultConfig().Simulation.NodeCount {
		t.Fatal("Load(missing) did not return the default configuration")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glitch.yaml")
	cfg := config.DefaultConfig()
	cfg.Simulation.Seed = 12345
	cfg.Simulation.NodeCount = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Simulation.Seed != 12345 || loaded.Simulation.NodeCount != 7 {
		t.Fatalf("round-tripped config = %+v, want Seed=12345 NodeCount=7", loaded.Simulation)
	}
}
