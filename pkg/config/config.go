// Package config loads and validates a simulation run's configuration from
// YAML, the way the rest of this codebase's ambient stack is configured.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for one simulation run.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Network    NetworkConfig    `yaml:"network"`
	Faults     FaultsConfig     `yaml:"faults"`
	Logging    LoggingConfig    `yaml:"logging"`
	Reporting  ReportingConfig  `yaml:"reporting"`
}

// SimulationConfig controls the basic shape of the run.
type SimulationConfig struct {
	// Seed is the sole source of randomness for the whole run. Two runs
	// with the same Seed and the same rest-of-Config produce bit-identical
	// event traces.
	Seed int64 `yaml:"seed"`
	// NodeCount is the number of server nodes, numbered 0..NodeCount-1.
	NodeCount int `yaml:"node_count"`
	// ClientCount is the number of workload clients, numbered 0..ClientCount-1.
	ClientCount int `yaml:"client_count"`
	// TickInterval is the spacing between global Tick events.
	TickInterval time.Duration `yaml:"tick_interval"`
	// MaxSimTime bounds how far virtual time may advance before the run is
	// declared a liveness timeout if the finish condition hasn't fired.
	MaxSimTime time.Duration `yaml:"max_sim_time"`
}

// NetworkConfig controls message transport behavior.
type NetworkConfig struct {
	MinLatency           time.Duration `yaml:"min_latency"`
	MaxLatency           time.Duration `yaml:"max_latency"`
	DuplicateProbability float64       `yaml:"duplicate_probability"`
}

// FaultsConfig controls the link/node/partition fault-state machines. A
// zero MeanTimeBetween* for a given fault kind disables it entirely; a zero
// recovery mean makes that fault recover as soon as it fires.
type FaultsConfig struct {
	MeanTimeBetweenLinkFailures      time.Duration `yaml:"mean_time_between_link_failures"`
	MeanLinkRecoveryTime             time.Duration `yaml:"mean_link_recovery_time"`
	MeanTimeBetweenPartitionFailures time.Duration `yaml:"mean_time_between_partition_failures"`
	MeanPartitionRecoveryTime        time.Duration `yaml:"mean_partition_recovery_time"`
	MeanTimeBetweenNodeFailures      time.Duration `yaml:"mean_time_between_node_failures"`
	MeanNodeRecoveryTime             time.Duration `yaml:"mean_node_recovery_time"`
	// ForcedTransitions scripts literal, non-random state changes on top of
	// (or instead of) the sampled fault-state machines. Processed in the
	// order given; each still participates in generation-counter lazy
	// cancellation against whatever the sampled machine has scheduled.
	ForcedTransitions []ForcedTransition `yaml:"forced_transitions"`
}

// ForcedTransition is one scripted, non-random fault-state change.
type ForcedTransition struct {
	At   time.Duration `yaml:"at"`
	Kind string        `yaml:"kind"` // "link", "node", or "partition"
	Up   bool          `yaml:"up"`

	// Used when Kind == "link".
	NodeA int `yaml:"node_a"`
	NodeB int `yaml:"node_b"`

	// Used when Kind == "node".
	Node int `yaml:"node"`

	// Used when Kind == "partition" and Up == true (an activation);
	// Groups gives the explicit node-id partition.
	Groups [][]int `yaml:"groups"`
}

// LoggingConfig controls the zerolog sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ReportingConfig controls where and how many run reports are kept.
type ReportingConfig struct {
	OutputDir string   `yaml:"output_dir"`
	KeepLastN int      `yaml:"keep_last_n"`
	Formats   []string `yaml:"formats"`
}

// DefaultConfig returns a small, single-node-failure-free configuration
// suitable as a starting point for hand-authored YAML.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:         1,
			NodeCount:    3,
			ClientCount:  1,
			TickInterval: 100 * time.Millisecond,
			MaxSimTime:   30 * time.Second,
		},
		Network: NetworkConfig{
			MinLatency:           5 * time.Millisecond,
			MaxLatency:           50 * time.Millisecond,
			DuplicateProbability: 0,
		},
		Faults: FaultsConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
			Formats:   []string{"json"},
		},
	}
}

// Load reads and parses a YAML config file. If path does not exist, the
// default configuration is returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "glitch.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internally-consistent, runnable
// values. It does not check that ForcedTransitions reference valid node
// ids, and simulator.New does not check them either.
func (c *Config) Validate() error {
	if c.Simulation.NodeCount < 1 {
		return fmt.Errorf("simulation.node_count must be at least 1")
	}
	if c.Simulation.ClientCount < 0 {
		return fmt.Errorf("simulation.client_count must be non-negative")
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive")
	}
	if c.Simulation.MaxSimTime <= 0 {
		return fmt.Errorf("simulation.max_sim_time must be positive")
	}
	if c.Network.MinLatency < 0 || c.Network.MaxLatency < c.Network.MinLatency {
		return fmt.Errorf("network.max_latency must be >= network.min_latency >= 0")
	}
	if c.Network.DuplicateProbability < 0 || c.Network.DuplicateProbability > 1 {
		return fmt.Errorf("network.duplicate_probability must be in [0, 1]")
	}
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	for i, ft := range c.Faults.ForcedTransitions {
		switch ft.Kind {
		case "link", "node", "partition":
		default:
			return fmt.Errorf("faults.forced_transitions[%d]: unknown kind %q", i, ft.Kind)
		}
	}
	return nil
}
