// Package config provides configuration loading and access for the traffic engine.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Vehicle    VehicleConfig    `yaml:"vehicle"`
	Lock       LockConfig       `yaml:"lock"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Placement  PlacementConfig  `yaml:"placement"`
	Collision  CollisionConfig  `yaml:"collision"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds tick scheduling parameters.
type SimulationConfig struct {
	TargetFPS          int     `yaml:"target_fps"`
	MaxDelta           float64 `yaml:"max_delta"`
	PerfReportInterval float64 `yaml:"perf_report_interval"`
}

// VehicleConfig holds vehicle body and kinematics parameters.
type VehicleConfig struct {
	BodyLength     float64 `yaml:"body_length"`
	BodyWidth      float64 `yaml:"body_width"`
	ZOffset        float64 `yaml:"z_offset"`
	LinearMaxSpeed float64 `yaml:"linear_max_speed"`
	CurveMaxSpeed  float64 `yaml:"curve_max_speed"`
	Acceleration   float64 `yaml:"acceleration"`
	Deceleration   float64 `yaml:"deceleration"`
}

// GrantStrategy selects how a merge node picks the next lock grantee.
type GrantStrategy int

const (
	// GrantFIFO grants the earliest pending request.
	GrantFIFO GrantStrategy = iota
	// GrantBranchFIFO prefers waiters entering through deadlock-zone entry
	// edges, FIFO within each class.
	GrantBranchFIFO
)

// ParseGrantStrategy maps a config string to a GrantStrategy.
func ParseGrantStrategy(s string) (GrantStrategy, error) {
	switch strings.ToLower(s) {
	case "fifo":
		return GrantFIFO, nil
	case "branch_fifo":
		return GrantBranchFIFO, nil
	default:
		return 0, fmt.Errorf("unknown lock grant strategy %q", s)
	}
}

// LockConfig holds merge-lock protocol parameters.
type LockConfig struct {
	WaitDistanceFromMergingStr   float64 `yaml:"wait_distance_from_merging_str"`
	WaitDistanceFromMergingCurve float64 `yaml:"wait_distance_from_merging_curve"`
	CurveTailLength              float64 `yaml:"curve_tail_length"`
	GrantStrategy                string  `yaml:"grant_strategy"`
	RecheckTicks                 int     `yaml:"recheck_ticks"`
}

// TransferMode selects how a vehicle's next edge is chosen when its path
// buffer is empty.
type TransferMode int

const (
	// TransferLoop follows each vehicle's precomputed loop sequence.
	TransferLoop TransferMode = iota
	// TransferRandom picks uniformly among the current edge's next edges.
	TransferRandom
)

// ParseTransferMode maps a config string to a TransferMode.
func ParseTransferMode(s string) (TransferMode, error) {
	switch strings.ToLower(s) {
	case "loop":
		return TransferLoop, nil
	case "random":
		return TransferRandom, nil
	default:
		return 0, fmt.Errorf("unknown transfer mode %q", s)
	}
}

// TransferConfig holds next-edge selection parameters.
type TransferConfig struct {
	Mode          string `yaml:"mode"`
	MaxPathLength int    `yaml:"max_path_length"`
}

// PlacementConfig holds auto-placement parameters.
type PlacementConfig struct {
	EdgeMinLength  float64 `yaml:"edge_min_length"`
	VehicleSpacing float64 `yaml:"vehicle_spacing"`
	NodeMargin     float64 `yaml:"node_margin"`
}

// CollisionConfig holds collision pipeline parameters.
type CollisionConfig struct {
	// ShortEdgeLookthrough is the max length of a linear edge whose next
	// edges are also scanned during the next-path check.
	ShortEdgeLookthrough float64 `yaml:"short_edge_lookthrough"`
	// RoughDistance gates the SAT check on front-point distance.
	RoughDistance float64 `yaml:"rough_distance"`
}

// ZoneConfig describes one sensor zone of a preset.
type ZoneConfig struct {
	LeftLength  float64 `yaml:"left_length"`
	RightLength float64 `yaml:"right_length"`
	SideWidth   float64 `yaml:"side_width"`
	Dec         float64 `yaml:"dec"`
	MinSpeed    float64 `yaml:"min_speed"`
}

// PresetConfig describes one sensor preset. Zones are ordered outer to inner:
// approach, brake, stop.
type PresetConfig struct {
	Name  string       `yaml:"name"`
	Zones []ZoneConfig `yaml:"zones"`
}

// SensorsConfig holds the sensor preset table.
type SensorsConfig struct {
	Presets []PresetConfig `yaml:"presets"`
}

// TelemetryConfig holds perf collection parameters.
type TelemetryConfig struct {
	PerfWindow    int `yaml:"perf_window"`
	TransitBuffer int `yaml:"transit_buffer"`
}

// DerivedConfig holds values computed after loading.
type DerivedConfig struct {
	GrantStrategy GrantStrategy
	TransferMode  TransferMode
	TickDelta     float64 // 1/TargetFPS
	PresetIndex   map[string]int
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if
// path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteYAML saves the configuration to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// computeDerived calculates values derived from the loaded config.
func (c *Config) computeDerived() error {
	strategy, err := ParseGrantStrategy(c.Lock.GrantStrategy)
	if err != nil {
		return err
	}
	mode, err := ParseTransferMode(c.Transfer.Mode)
	if err != nil {
		return err
	}
	c.Derived.GrantStrategy = strategy
	c.Derived.TransferMode = mode
	if c.Simulation.TargetFPS > 0 {
		c.Derived.TickDelta = 1.0 / float64(c.Simulation.TargetFPS)
	}
	c.Derived.PresetIndex = make(map[string]int, len(c.Sensors.Presets))
	for i, p := range c.Sensors.Presets {
		c.Derived.PresetIndex[p.Name] = i
	}
	return nil
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Simulation.TargetFPS <= 0 {
		return fmt.Errorf("simulation.target_fps must be positive, got %d", c.Simulation.TargetFPS)
	}
	if c.Vehicle.BodyLength <= 0 {
		return fmt.Errorf("vehicle.body_length must be positive, got %g", c.Vehicle.BodyLength)
	}
	if c.Transfer.MaxPathLength < 2 {
		return fmt.Errorf("transfer.max_path_length must be at least 2, got %d", c.Transfer.MaxPathLength)
	}
	if len(c.Sensors.Presets) == 0 {
		return fmt.Errorf("sensors.presets must not be empty")
	}
	for _, p := range c.Sensors.Presets {
		if len(p.Zones) != 3 {
			return fmt.Errorf("sensor preset %q must define exactly 3 zones, got %d", p.Name, len(p.Zones))
		}
	}
	for _, name := range []string{"linear", "curve_left", "curve_right"} {
		if _, ok := c.Derived.PresetIndex[name]; !ok {
			return fmt.Errorf("sensor preset %q missing", name)
		}
	}
	return nil
}
