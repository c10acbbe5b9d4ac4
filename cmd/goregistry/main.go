// =============================================================================
// GOREGISTRY MAIN ENTRY POINT
// =============================================================================
//
// The registry server. Startup sequence:
//   1. Load and validate configuration
//   2. Initialize structured logging and Prometheus metrics
//   3. Open the backing partition log and recover it from disk
//   4. Start the sequencer and replay the full log into the store
//   5. Serve the HTTP API until SIGINT/SIGTERM, then shut down gracefully
//
// Step 4 is the recovery story: the on-disk log is the source of truth, the
// in-memory store is a pure fold of it. Crash anywhere, restart, replay,
// identical state.
//
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"goregistry/internal/api"
	"goregistry/internal/config"
	"goregistry/internal/metrics"
	"goregistry/internal/registry"
	"goregistry/internal/seqlog"
)

func main() {
	configPath := flag.String("config", os.Getenv("GOREGISTRY_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// -------------------------------------------------------------------------
	// STEP 1: Configuration
	// -------------------------------------------------------------------------
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting goregistry",
		"node", cfg.NodeID,
		"addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir)

	// -------------------------------------------------------------------------
	// STEP 2: Metrics
	// -------------------------------------------------------------------------
	m := metrics.Init(metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		Namespace:               "goregistry",
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
		HistogramBuckets:        metrics.DefaultConfig().HistogramBuckets,
	})

	// -------------------------------------------------------------------------
	// STEP 3: Backing log
	// -------------------------------------------------------------------------
	tp := seqlog.TopicPartition{Topic: cfg.Sequencer.Topic, Partition: cfg.Sequencer.Partition}
	client := seqlog.NewLocalClient(cfg.DataDir)
	if err := client.CreatePartition(tp); err != nil {
		return fmt.Errorf("open registry log: %w", err)
	}
	defer client.Close()

	// -------------------------------------------------------------------------
	// STEP 4: Store, sequencer, replay
	// -------------------------------------------------------------------------
	level, err := registry.ParseCompatibilityLevel(cfg.Registry.DefaultCompatibility)
	if err != nil {
		return err
	}
	store := registry.NewStore(level)

	seq := registry.NewSequencer(registry.SequencerConfig{
		NodeID:           cfg.NodeID,
		TopicPartition:   tp,
		MaxWriteAttempts: cfg.Sequencer.MaxWriteAttempts,
		RetryBackoff:     cfg.Sequencer.RetryBackoff,
		FetchChunk:       cfg.Sequencer.FetchChunk,
	}, client, store, m, logger)
	seq.Start()
	defer seq.Stop()

	replayCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	err = seq.ReadSync(replayCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("replay registry log: %w", err)
	}
	offset, err := seq.LoadedOffset(context.Background())
	if err != nil {
		return err
	}
	logger.Info("registry log replayed", "loaded_offset", offset)

	// -------------------------------------------------------------------------
	// STEP 5: HTTP API & graceful shutdown
	// -------------------------------------------------------------------------
	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.ListenAddr
	server := api.NewServer(seq, store, m, serverCfg, logger)
	if err := server.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	return nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
