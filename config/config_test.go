package config

import (
	"strings"
	"testing"
)

func validTestConfig() *Config {
	cfg := LoadConfig()
	cfg.Symbol = "EURUSD"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero_risk",
			mutate: func(c *Config) { c.RiskBps = 0 },
			want:   "risk bps",
		},
		{
			name:   "negative_stop_multiple",
			mutate: func(c *Config) { c.StopATRMultiple = -1 },
			want:   "stop ATR multiple",
		},
		{
			name:   "zero_hard_limit",
			mutate: func(c *Config) { c.HardPositionLimit = 0 },
			want:   "hard position limit",
		},
		{
			name:   "zero_lot_unit",
			mutate: func(c *Config) { c.LotUnitSize = 0 },
			want:   "lot unit size",
		},
		{
			name:   "negative_commission",
			mutate: func(c *Config) { c.CommissionRateBps = -0.1 },
			want:   "commission rate",
		},
		{
			name:   "fast_not_shorter_than_slow",
			mutate: func(c *Config) { c.FastEMAPeriod = 20; c.SlowEMAPeriod = 20 },
			want:   "fast EMA period",
		},
		{
			name:   "empty_symbol",
			mutate: func(c *Config) { c.Symbol = "" },
			want:   "symbol",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
