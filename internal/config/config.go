package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"synthctl/domain/core"
	"synthctl/domain/estimate"
	"synthctl/domain/panel"
	"synthctl/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Estimation EstimationConfig
	Panel      PanelConfig
	Database   DatabaseConfig
	Server     ServerConfig
}

// EstimationConfig holds the knobs consumed by the estimation core
type EstimationConfig struct {
	Precision     float64 // grid step, must satisfy 0 < precision < 1
	ComputeCI     bool
	FittingMode   estimate.FittingMode
	Permutations  int
	MaxExpansions int
	Scheme        string // "block" or "iid"
}

// PanelConfig holds the treated/donor universe and the outcome
// selection for a single run. Nothing here is a module-level constant:
// the core is runnable against any treated/donor set.
type PanelConfig struct {
	FilePath        string
	TreatmentDate   time.Time
	TreatedEntities []core.EntityCode // the two treated units
	Outcome         core.OutcomeKey
	OutcomeClass    panel.OutcomeClass
	PrePeriods      int // T0
}

// DatabaseConfig holds result store settings (optional)
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates
// the estimation surface.
func Load() (*Config, error) {
	cfg := &Config{
		Estimation: EstimationConfig{
			Precision:     getEnvFloatOrDefault("PRECISION", 0.01),
			ComputeCI:     getEnvBoolOrDefault("COMPUTE_CI", true),
			FittingMode:   estimate.FittingMode(getEnvOrDefault("FITTING_MODE", string(estimate.ModeSimplex))),
			Permutations:  getEnvIntOrDefault("PERMUTATIONS", 1000),
			MaxExpansions: getEnvIntOrDefault("MAX_EXPANSIONS", 25),
			Scheme:        getEnvOrDefault("PERMUTATION_SCHEME", "block"),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	panelCfg, err := loadPanelConfig()
	if err != nil {
		return nil, err
	}
	cfg.Panel = *panelCfg

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPanelConfig() (*PanelConfig, error) {
	cfg := &PanelConfig{
		FilePath:   getEnvOrDefault("PANEL_FILE", ""),
		Outcome:    core.OutcomeKey(getEnvOrDefault("OUTCOME", "")),
		PrePeriods: getEnvIntOrDefault("PRE_PERIODS", 0),
	}

	if raw := os.Getenv("TREATMENT_DATE"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, errors.ConfigInvalidf("TREATMENT_DATE %q is not a valid date (want YYYY-MM-DD)", raw)
		}
		cfg.TreatmentDate = d
	}

	for _, code := range strings.Split(getEnvOrDefault("TREATED_ENTITIES", ""), ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			cfg.TreatedEntities = append(cfg.TreatedEntities, core.EntityCode(code))
		}
	}

	switch getEnvOrDefault("OUTCOME_CLASS", "long_history") {
	case "short_history":
		cfg.OutcomeClass = panel.ClassShortHistory
	case "long_history":
		cfg.OutcomeClass = panel.ClassLongHistory
	default:
		return nil, errors.ConfigInvalidf("OUTCOME_CLASS %q is not one of short_history, long_history", os.Getenv("OUTCOME_CLASS"))
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if p := cfg.Estimation.Precision; p <= 0 || p >= 1 {
		return errors.ConfigInvalidf("PRECISION must be in (0,1), got %g", p)
	}
	if !cfg.Estimation.FittingMode.Valid() {
		return errors.ConfigInvalidf("FITTING_MODE %q is not one of simplex, nonneg, affine", cfg.Estimation.FittingMode)
	}
	if s := cfg.Estimation.Scheme; s != "block" && s != "iid" {
		return errors.ConfigInvalidf("PERMUTATION_SCHEME %q is not one of block, iid", s)
	}
	if cfg.Estimation.Permutations <= 0 {
		return errors.ConfigInvalidf("PERMUTATIONS must be positive, got %d", cfg.Estimation.Permutations)
	}
	if cfg.Estimation.MaxExpansions <= 0 {
		return errors.ConfigInvalidf("MAX_EXPANSIONS must be positive, got %d", cfg.Estimation.MaxExpansions)
	}
	return nil
}

// ValidatePanelRun checks the fields a full panel-file run needs. The
// HTTP surface takes matrices directly and skips these.
func (c *Config) ValidatePanelRun() error {
	if c.Panel.FilePath == "" {
		return errors.ConfigInvalid("PANEL_FILE is required")
	}
	if c.Panel.TreatmentDate.IsZero() {
		return errors.ConfigInvalid("TREATMENT_DATE is required")
	}
	if len(c.Panel.TreatedEntities) != 2 {
		return errors.ConfigInvalidf("TREATED_ENTITIES must name exactly two entities, got %d", len(c.Panel.TreatedEntities))
	}
	if c.Panel.Outcome == "" {
		return errors.ConfigInvalid("OUTCOME is required")
	}
	if c.Panel.PrePeriods <= 0 {
		return errors.ConfigInvalid("PRE_PERIODS must be a positive period count")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
