package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Campaigns   int
	Publishers  int
	Events      int
	RowsPerFile int
	Seed        int64
}

func DefaultConfig() Config {
	return Config{
		Campaigns:   MaxCampaigns,
		Publishers:  MaxPublishers,
		Events:      500_000,
		RowsPerFile: 250_000,
		Seed:        42,
	}
}

// LoadConfigFromEnv reads the QUERYBRIDGE_DEMO_* sizing knobs. Counts above
// the catalogue sizes are clamped.
func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	cfg := DefaultConfig()
	ints := []struct {
		key string
		dst *int
	}{
		{"QUERYBRIDGE_DEMO_CAMPAIGNS", &cfg.Campaigns},
		{"QUERYBRIDGE_DEMO_PUBLISHERS", &cfg.Publishers},
		{"QUERYBRIDGE_DEMO_EVENTS", &cfg.Events},
		{"QUERYBRIDGE_DEMO_ROWS_PER_FILE", &cfg.RowsPerFile},
	}
	for _, field := range ints {
		raw, ok := lookup(field.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", field.key, err)
		}
		if v <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0", field.key)
		}
		*field.dst = v
	}
	if raw, ok := lookup("QUERYBRIDGE_DEMO_SEED"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid QUERYBRIDGE_DEMO_SEED: %w", err)
		}
		cfg.Seed = v
	}
	cfg.Campaigns = min(cfg.Campaigns, MaxCampaigns)
	cfg.Publishers = min(cfg.Publishers, MaxPublishers)
	return cfg, nil
}
