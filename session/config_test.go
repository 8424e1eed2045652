package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/datashelf/cache"
	"github.com/tailored-agentic-units/datashelf/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.IdleTimeout.Duration != 2*time.Hour {
		t.Errorf("got idle timeout %s, want 2h", cfg.IdleTimeout)
	}
}

func TestConfig_Merge(t *testing.T) {
	tests := []struct {
		name   string
		source session.Config
		want   time.Duration
	}{
		{"zero keeps default", session.Config{}, 2 * time.Hour},
		{"override", session.Config{IdleTimeout: cache.Duration{Duration: 15 * time.Minute}}, 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := session.DefaultConfig()
			cfg.Merge(&tt.source)

			if cfg.IdleTimeout.Duration != tt.want {
				t.Errorf("got %s, want %s", cfg.IdleTimeout, tt.want)
			}
		})
	}
}

func TestConfig_Decode(t *testing.T) {
	var fromJSON session.Config
	if err := json.Unmarshal([]byte(`{"idle_timeout":"90m"}`), &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if fromJSON.IdleTimeout.Duration != 90*time.Minute {
		t.Errorf("json: got %s, want 1h30m0s", fromJSON.IdleTimeout)
	}

	var fromYAML session.Config
	if err := yaml.Unmarshal([]byte("idle_timeout: 45s\n"), &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if fromYAML.IdleTimeout.Duration != 45*time.Second {
		t.Errorf("yaml: got %s, want 45s", fromYAML.IdleTimeout)
	}

	var bad session.Config
	if err := json.Unmarshal([]byte(`{"idle_timeout":"soon"}`), &bad); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestNew_RejectsNegativeTimeout(t *testing.T) {
	cfg := session.Config{IdleTimeout: cache.Duration{Duration: -time.Second}}

	if _, err := session.New(&cfg); err == nil {
		t.Error("expected error for negative idle timeout")
	}
}
