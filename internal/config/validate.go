package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// CONFIG VALIDATION
// =============================================================================
//
// FAIL-FAST: bad config should kill the process at startup with a clear,
// complete report - not surface as a mystery error on the first write.
//
// PATTERN: ACCUMULATE ERRORS
// All problems are collected and returned together so the operator fixes
// everything in one pass instead of playing whack-a-mole.
//
// =============================================================================

// ValidationError holds one or more configuration validation failures.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
// Formats all validation errors as a numbered list for readability.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks the configuration for common mistakes.
// Returns nil if valid, or a *ValidationError with all problems found.
func (c Config) Validate() error {
	var errs []string

	if c.NodeID < 0 {
		errs = append(errs, fmt.Sprintf("node_id: must be >= 0, got %d", c.NodeID))
	}

	if c.ListenAddr == "" {
		errs = append(errs, "listen_addr: must not be empty")
	} else if err := validateAddress(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Sprintf("listen_addr: invalid %q: %v", c.ListenAddr, err))
	}

	// DataDir: where the partition log lives
	if c.DataDir == "" {
		errs = append(errs, "data_dir: must not be empty")
	} else {
		errs = append(errs, validateDataDir(c.DataDir)...)
	}

	errs = append(errs, c.Sequencer.validate()...)

	switch strings.ToUpper(c.Registry.DefaultCompatibility) {
	case "NONE", "BACKWARD", "FORWARD", "FULL":
	default:
		errs = append(errs, fmt.Sprintf(
			"registry.default_compatibility: must be one of NONE, BACKWARD, FORWARD, FULL; got %q",
			c.Registry.DefaultCompatibility))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: must be json or text; got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (c SequencerConfig) validate() []string {
	var errs []string

	if c.Topic == "" {
		errs = append(errs, "sequencer.topic: must not be empty")
	}
	if c.Partition < 0 {
		errs = append(errs, fmt.Sprintf("sequencer.partition: must be >= 0, got %d", c.Partition))
	}
	if c.MaxWriteAttempts < 0 {
		errs = append(errs, fmt.Sprintf("sequencer.max_write_attempts: must be >= 0 (0 = unbounded), got %d", c.MaxWriteAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Sprintf("sequencer.retry_backoff: must be >= 0, got %v", c.RetryBackoff))
	}
	if c.FetchChunk < 0 {
		errs = append(errs, fmt.Sprintf("sequencer.fetch_chunk: must be >= 0, got %d", c.FetchChunk))
	}
	return errs
}

// validateDataDir checks that the data directory is usable.
func validateDataDir(dir string) []string {
	var errs []string

	absDir, err := filepath.Abs(dir)
	if err != nil {
		errs = append(errs, fmt.Sprintf("data_dir: cannot resolve path %q: %v", dir, err))
		return errs
	}

	info, err := os.Stat(absDir)
	if err == nil {
		if !info.IsDir() {
			errs = append(errs, fmt.Sprintf("data_dir: %q exists but is not a directory", absDir))
		}
		return errs
	}

	if !os.IsNotExist(err) {
		errs = append(errs, fmt.Sprintf("data_dir: cannot access %q: %v", absDir, err))
		return errs
	}

	// Directory doesn't exist -- check if parent is accessible
	parent := filepath.Dir(absDir)
	if _, err := os.Stat(parent); err != nil {
		errs = append(errs, fmt.Sprintf("data_dir: %q does not exist and parent %q is not accessible: %v", absDir, parent, err))
	}

	return errs
}

// validateAddress checks that a string is a valid host:port or :port address.
func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port format: %w", err)
	}
	if port == "" {
		return fmt.Errorf("port must not be empty")
	}
	return nil
}
