// =============================================================================
// CONFIG VALIDATION TESTS
// =============================================================================

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Default()
	cfg.NodeID = -1
	cfg.ListenAddr = "no-port"
	cfg.Sequencer.Topic = ""
	cfg.Sequencer.MaxWriteAttempts = -5
	cfg.Registry.DefaultCompatibility = "SIDEWAYS"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Errors) != 6 {
		t.Errorf("expected all 6 problems reported together, got %d: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(verr.Error(), "node_id") {
		t.Errorf("error text should name the bad field: %s", verr.Error())
	}
}

func TestValidateDataDirParentMissing(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "missing", "deeper")
	if err := cfg.Validate(); err == nil {
		t.Error("unreachable data_dir parent should fail validation")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
node_id: 7
listen_addr: ":9999"
sequencer:
  max_write_attempts: 10
  retry_backoff: 5ms
registry:
  default_compatibility: FULL
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NodeID != 7 || cfg.ListenAddr != ":9999" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Sequencer.MaxWriteAttempts != 10 || cfg.Sequencer.RetryBackoff != 5*time.Millisecond {
		t.Errorf("sequencer overrides not applied: %+v", cfg.Sequencer)
	}
	// Untouched fields keep their defaults.
	if cfg.Sequencer.Topic != "__registry" || cfg.DataDir != "data" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}
