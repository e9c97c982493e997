// Package config holds the explicit configuration record threaded into the
// flow engine and its collaborators at construction. There is no module-level
// state: callers load a Config once and pass it down.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vendora/internal/insight"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "1h".
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the root configuration for the orchestrator process.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Flow      FlowConfig      `yaml:"flow"`
	Model     ModelConfig     `yaml:"model"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FlowConfig tunes the flow engine and the validation gate.
type FlowConfig struct {
	MaxRevisions    int      `yaml:"max_revisions"`
	QueryTimeout    Duration `yaml:"query_timeout"`
	MaxActiveTasks  int      `yaml:"max_active_tasks"`
	MaxRowsInPrompt int      `yaml:"max_rows_in_prompt"`

	// MinAxisScore is the floor every validation axis must clear for approval.
	MinAxisScore float64 `yaml:"min_axis_score"`

	// Thresholds maps complexity to the minimum aggregate quality score.
	Thresholds map[insight.Complexity]float64 `yaml:"thresholds"`

	// TaskRetention is how long terminal tasks stay visible for observability
	// before the janitor sweeps them.
	TaskRetention Duration `yaml:"task_retention"`
}

// ModelConfig tunes the model client façade.
type ModelConfig struct {
	Provider    string   `yaml:"provider"` // "gemini"; the CLI always builds the Gemini completer
	ModelName   string   `yaml:"model_name"`
	APIKey      string   `yaml:"api_key"` // VENDORA_GEMINI_API_KEY overrides
	CallTimeout Duration `yaml:"call_timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`
}

// WarehouseConfig tunes the warehouse client façade.
type WarehouseConfig struct {
	DSN         string   `yaml:"dsn"` // VENDORA_WAREHOUSE_DSN overrides
	CallTimeout Duration `yaml:"call_timeout"`
	MaxRows     int      `yaml:"max_rows"`
	MaxBytes    int      `yaml:"max_bytes"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	Capacity int      `yaml:"capacity"`
	TTL      Duration `yaml:"ttl"`

	// ContextKeys whitelists context entries that participate in
	// fingerprinting. Empty maximises cache reuse.
	ContextKeys []string `yaml:"context_keys"`
}

// LoggingConfig tunes the logging subsystem.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the contract defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vendora",
		Version: "1.0.0",

		Flow: FlowConfig{
			MaxRevisions:    2,
			QueryTimeout:    Duration(30 * time.Second),
			MaxActiveTasks:  256,
			MaxRowsInPrompt: 200,
			MinAxisScore:    0.60,
			Thresholds: map[insight.Complexity]float64{
				insight.ComplexitySimple:   0.80,
				insight.ComplexityStandard: 0.85,
				insight.ComplexityComplex:  0.90,
				insight.ComplexityCritical: 0.95,
			},
			TaskRetention: Duration(15 * time.Minute),
		},

		Model: ModelConfig{
			Provider:    "gemini",
			ModelName:   "gemini-2.0-flash",
			CallTimeout: Duration(12 * time.Second),
			MaxAttempts: 3,
			BackoffBase: Duration(500 * time.Millisecond),
			BackoffMax:  Duration(5 * time.Second),
		},

		Warehouse: WarehouseConfig{
			DSN:         "file:vendora.db?mode=ro",
			CallTimeout: Duration(15 * time.Second),
			MaxRows:     10000,
			MaxBytes:    4 << 20,
		},

		Cache: CacheConfig{
			Capacity: 1024,
			TTL:      Duration(time.Hour),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides for secrets. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if key := os.Getenv("VENDORA_GEMINI_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}
	if dsn := os.Getenv("VENDORA_WAREHOUSE_DSN"); dsn != "" {
		cfg.Warehouse.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate range-checks every tunable.
func (c *Config) Validate() error {
	if c.Flow.MaxRevisions < 0 {
		return fmt.Errorf("flow.max_revisions must be >= 0, got %d", c.Flow.MaxRevisions)
	}
	if c.Flow.QueryTimeout.Std() < time.Second || c.Flow.QueryTimeout.Std() > 120*time.Second {
		return fmt.Errorf("flow.query_timeout must be in [1s, 120s], got %s", c.Flow.QueryTimeout)
	}
	if c.Flow.MaxActiveTasks <= 0 {
		return fmt.Errorf("flow.max_active_tasks must be > 0, got %d", c.Flow.MaxActiveTasks)
	}
	if c.Flow.MaxRowsInPrompt <= 0 {
		return fmt.Errorf("flow.max_rows_in_prompt must be > 0, got %d", c.Flow.MaxRowsInPrompt)
	}
	if c.Flow.MinAxisScore < 0 || c.Flow.MinAxisScore > 1 {
		return fmt.Errorf("flow.min_axis_score must be in [0,1], got %f", c.Flow.MinAxisScore)
	}
	for _, complexity := range []insight.Complexity{
		insight.ComplexitySimple, insight.ComplexityStandard,
		insight.ComplexityComplex, insight.ComplexityCritical,
	} {
		threshold, ok := c.Flow.Thresholds[complexity]
		if !ok {
			return fmt.Errorf("flow.thresholds missing entry for %q", complexity)
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("flow.thresholds[%s] must be in [0,1], got %f", complexity, threshold)
		}
	}
	if c.Model.MaxAttempts <= 0 {
		return fmt.Errorf("model.max_attempts must be > 0, got %d", c.Model.MaxAttempts)
	}
	if c.Model.CallTimeout <= 0 {
		return fmt.Errorf("model.call_timeout must be > 0, got %s", c.Model.CallTimeout)
	}
	if c.Warehouse.CallTimeout <= 0 {
		return fmt.Errorf("warehouse.call_timeout must be > 0, got %s", c.Warehouse.CallTimeout)
	}
	if c.Warehouse.MaxRows <= 0 || c.Warehouse.MaxBytes <= 0 {
		return fmt.Errorf("warehouse row/byte caps must be > 0")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0, got %s", c.Cache.TTL)
	}
	return nil
}

// Threshold returns the approval threshold for a complexity class, falling
// back to the standard threshold for anything unknown.
func (f FlowConfig) Threshold(c insight.Complexity) float64 {
	if t, ok := f.Thresholds[c]; ok {
		return t
	}
	return f.Thresholds[insight.ComplexityStandard]
}
