package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Database    string
	Sets        []string
	Days        int
	StepDays    int
	Seed        int64
	IncludeFoil bool
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Database:    "pricedash.duckdb",
		Sets:        append([]string(nil), DefaultSets...),
		Days:        365,
		StepDays:    7,
		Seed:        1993,
		IncludeFoil: true,
		Timeout:     time.Minute,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "PRICEDASH_SEED_DATABASE", &cfg.Database); err != nil {
		return Config{}, err
	}
	if raw, ok := lookup("PRICEDASH_SEED_SETS"); ok && strings.TrimSpace(raw) != "" {
		cfg.Sets = splitList(raw)
	}
	if err := applyInt(lookup, "PRICEDASH_SEED_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "PRICEDASH_SEED_STEP_DAYS", &cfg.StepDays); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "PRICEDASH_SEED_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "PRICEDASH_SEED_INCLUDE_FOIL", &cfg.IncludeFoil); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "PRICEDASH_SEED_TIMEOUT", &cfg.Timeout); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Database) == "" {
		return Config{}, fmt.Errorf("PRICEDASH_SEED_DATABASE is required")
	}
	if len(cfg.Sets) == 0 {
		return Config{}, fmt.Errorf("PRICEDASH_SEED_SETS must name at least one set")
	}
	if cfg.Days < 0 {
		return Config{}, fmt.Errorf("PRICEDASH_SEED_DAYS must be >= 0")
	}
	if cfg.StepDays <= 0 {
		return Config{}, fmt.Errorf("PRICEDASH_SEED_STEP_DAYS must be > 0")
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("PRICEDASH_SEED_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
