// Package config resolves xchecker's effective settings from defaults,
// an optional file, and CLI overrides, each value carrying a source tag.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EffortlessMetrics/xchecker/internal/atomicio"
	"github.com/EffortlessMetrics/xchecker/internal/logging"
)

// Source identifies where an effective config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceCLI     Source = "cli"
)

// RunnerMode selects how the Runner spawns the backend process.
type RunnerMode string

const (
	RunnerAuto   RunnerMode = "auto"
	RunnerNative RunnerMode = "native"
	RunnerWSL    RunnerMode = "wsl"
)

// Config holds xchecker's resolved settings (spec.md §3).
type Config struct {
	RunnerMode           RunnerMode `yaml:"runner_mode"`
	RunnerDistro         string     `yaml:"runner_distro"`
	PhaseTimeoutSeconds  int        `yaml:"phase_timeout_seconds"`
	PacketMaxBytes       int        `yaml:"packet_max_bytes"`
	PacketMaxLines       int        `yaml:"packet_max_lines"`
	StdoutCapBytes       int        `yaml:"stdout_cap_bytes"`
	StderrCapBytes       int        `yaml:"stderr_cap_bytes"`
	LockTTLSeconds       int        `yaml:"lock_ttl_seconds"`
	ExtraSecretPatterns  []string   `yaml:"extra_secret_patterns"`
	IgnoreSecretPatterns []string   `yaml:"ignore_secret_patterns"`
	ApplyFixups          bool       `yaml:"apply_fixups"`
	AllowLinks           bool       `yaml:"allow_links"`
	StrictLock           bool       `yaml:"strict_lock"`
	Force                bool       `yaml:"force"`
	DebugPacket          bool       `yaml:"debug_packet"`

	Logging LoggingConfig `yaml:"logging"`

	// sources records, per field name, how the effective value was set.
	// Not serialized; populated as layers are applied.
	sources map[string]Source `yaml:"-"`
}

// DefaultConfig returns xchecker's built-in defaults (spec.md §3).
func DefaultConfig() *Config {
	c := &Config{
		RunnerMode:          RunnerAuto,
		PhaseTimeoutSeconds: 600,
		PacketMaxBytes:      65536,
		PacketMaxLines:      1200,
		StdoutCapBytes:      2 * 1024 * 1024,
		StderrCapBytes:      256 * 1024,
		LockTTLSeconds:      900,
		Logging: LoggingConfig{
			Level: "info",
		},
		sources: make(map[string]Source),
	}
	for _, f := range []string{
		"runner_mode", "phase_timeout_seconds", "packet_max_bytes",
		"packet_max_lines", "stdout_cap_bytes", "stderr_cap_bytes",
		"lock_ttl_seconds", "apply_fixups", "allow_links", "strict_lock",
		"force", "debug_packet",
	} {
		c.sources[f] = SourceDefault
	}
	return c
}

// Load resolves defaults ⊕ file ⊕ env. CLI overrides are applied separately
// by the caller via ApplyCLI, after argument parsing (an external
// collaborator per spec.md §1).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Debug("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.markFileSources(data)
	cfg.applyEnvOverrides()
	return cfg, nil
}

// markFileSources marks every key present in the raw YAML document as
// file-sourced, so Save/status can report accurate provenance.
func (c *Config) markFileSources(data []byte) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	if c.sources == nil {
		c.sources = make(map[string]Source)
	}
	for k := range raw {
		c.sources[k] = SourceFile
	}
}

// ApplyCLI overrides a single field and records it as CLI-sourced. Callers
// pass the already-parsed value; xchecker does not parse CLI args itself.
func (c *Config) ApplyCLI(field string, apply func(*Config)) {
	apply(c)
	if c.sources == nil {
		c.sources = make(map[string]Source)
	}
	c.sources[field] = SourceCLI
}

// Source returns the provenance of a field, or SourceDefault if unknown.
func (c *Config) Source(field string) Source {
	if c.sources == nil {
		return SourceDefault
	}
	if s, ok := c.sources[field]; ok {
		return s
	}
	return SourceDefault
}

// Save persists the config atomically via the atomic writer (spec.md §4.2) —
// an upgrade over a bare os.WriteFile since Config lives in shared state.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return atomicio.Write(path, data, 0o644)
}

// applyEnvOverrides applies XCHECKER_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	mark := func(field string) {
		if c.sources == nil {
			c.sources = make(map[string]Source)
		}
		c.sources[field] = SourceEnv
	}
	if v := os.Getenv("XCHECKER_RUNNER_MODE"); v != "" {
		c.RunnerMode = RunnerMode(v)
		mark("runner_mode")
	}
	if v := os.Getenv("XCHECKER_RUNNER_DISTRO"); v != "" {
		c.RunnerDistro = v
		mark("runner_distro")
	}
	if v := os.Getenv("XCHECKER_PHASE_TIMEOUT_SECONDS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.PhaseTimeoutSeconds = n
			mark("phase_timeout_seconds")
		}
	}
	if v := os.Getenv("XCHECKER_APPLY_FIXUPS"); v != "" {
		c.ApplyFixups = v == "1" || v == "true"
		mark("apply_fixups")
	}
	if v := os.Getenv("XCHECKER_STRICT_LOCK"); v != "" {
		c.StrictLock = v == "1" || v == "true"
		mark("strict_lock")
	}
	if v := os.Getenv("XCHECKER_DEBUG_PACKET"); v != "" {
		c.DebugPacket = v == "1" || v == "true"
		mark("debug_packet")
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive: %s", s)
	}
	return n, nil
}

// PhaseTimeout returns the configured phase timeout as a duration,
// enforcing the 5-second floor from spec.md §3.
func (c *Config) PhaseTimeout() time.Duration {
	secs := c.PhaseTimeoutSeconds
	if secs < 5 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

// LockTTL returns the configured lock staleness TTL as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Validate checks the effective configuration for obviously invalid values.
func (c *Config) Validate() error {
	switch c.RunnerMode {
	case RunnerAuto, RunnerNative, RunnerWSL:
	default:
		return fmt.Errorf("invalid runner_mode: %s", c.RunnerMode)
	}
	if c.PhaseTimeoutSeconds < 5 {
		return fmt.Errorf("phase_timeout_seconds must be >= 5, got %d", c.PhaseTimeoutSeconds)
	}
	if c.PacketMaxBytes <= 0 {
		return fmt.Errorf("packet_max_bytes must be positive, got %d", c.PacketMaxBytes)
	}
	if c.PacketMaxLines <= 0 {
		return fmt.Errorf("packet_max_lines must be positive, got %d", c.PacketMaxLines)
	}
	return nil
}
