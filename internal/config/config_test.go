package config

import (
	"strings"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaults()
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default configuration failed validation: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name: "rate limit enabled with zero rps",
			mutate: func(c *Config) {
				c.Server.RateLimit.Enabled = true
				c.Server.RateLimit.RequestsPerSec = 0
			},
			wantErr: "invalid rate limit",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.ETL.BatchSize = 0 },
			wantErr: "invalid ETL batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultDetectors(t *testing.T) {
	cfg := GetDefaults()
	if len(cfg.Extractor.Detectors) != 1 || cfg.Extractor.Detectors[0] != "all" {
		t.Errorf("default detectors = %v, want [all]", cfg.Extractor.Detectors)
	}
	if !cfg.Extractor.Enabled {
		t.Error("extractor should be enabled by default")
	}
}
