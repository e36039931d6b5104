// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// stripesight-viewer is the terminal dashboard for a tiger
// identification investigation. It subscribes to the backend's event
// stream for one investigation, aggregates the events into derived
// pipeline state, and renders it live: phase progress, per-model
// status, the ensemble agreement badge, and a bounded activity log.
//
// Two modes of operation:
//
// Live mode (default): connects to the stream endpoint from the
// config file (or --address), joins the investigation given by
// --investigation, and follows the run. --capture additionally
// records every received frame to a capture file.
//
// Replay mode (--replay): loads a capture file recorded earlier and
// feeds it through the same aggregation path, either instantly or
// paced at the recorded inter-arrival gaps (--replay-paced). No
// stream connection is made.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stripesight/stripesight/capture"
	"github.com/stripesight/stripesight/investigation"
	"github.com/stripesight/stripesight/lib/config"
	"github.com/stripesight/stripesight/lib/dashui"
	"github.com/stripesight/stripesight/lib/ensembledef"
	"github.com/stripesight/stripesight/lib/version"
	"github.com/stripesight/stripesight/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		address         string
		investigationID string
		ensemblePath    string
		capturePath     string
		replayPath      string
		replayPaced     bool
		logOutput       string
	)

	flagSet := pflag.NewFlagSet("stripesight-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to stripesight.yaml (default: $STRIPESIGHT_CONFIG)")
	flagSet.StringVar(&address, "address", "", "stream endpoint host:port (overrides config)")
	flagSet.StringVar(&investigationID, "investigation", "", "investigation id to subscribe to")
	flagSet.StringVar(&ensemblePath, "ensemble", "", "path to ensemble JSONC definition (overrides config)")
	flagSet.StringVar(&capturePath, "capture", "", "record the raw stream to this capture file")
	flagSet.StringVar(&replayPath, "replay", "", "replay a capture file instead of connecting")
	flagSet.BoolVar(&replayPaced, "replay-paced", false, "replay at the recorded inter-arrival pace")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (in addition to TUI display)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other
	// Stripesight binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("stripesight-viewer")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Stream.Address = address
	}
	if ensemblePath != "" {
		cfg.EnsembleFile = ensemblePath
	}
	if capturePath != "" {
		cfg.Capture.Path = capturePath
	}

	if replayPath != "" {
		return runReplay(cfg, investigationID, replayPath, replayPaced)
	}

	if investigationID == "" {
		return fmt.Errorf("--investigation is required in live mode")
	}
	if cfg.Stream.Address == "" {
		return fmt.Errorf("no stream address: set stream.address in the config or pass --address")
	}
	return runLive(cfg, investigationID, logOutput)
}

// loadConfig resolves the configuration: an explicit --config path,
// then STRIPESIGHT_CONFIG, then built-in defaults when neither is
// set (flags still have to supply the stream address).
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("STRIPESIGHT_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// newEngine builds the engine for one investigation, seeding it from
// the ensemble definition when one is configured.
func newEngine(cfg *config.Config, investigationID string, logger *slog.Logger) (*investigation.Engine, error) {
	threshold := cfg.Engine.AgreementThreshold

	var seed investigation.Snapshot
	if cfg.EnsembleFile != "" {
		ensemble, err := ensembledef.ReadFile(cfg.EnsembleFile)
		if err != nil {
			return nil, err
		}
		if issues := ensembledef.Validate(ensemble); len(issues) > 0 {
			return nil, fmt.Errorf("ensemble %s: %s", cfg.EnsembleFile, issues[0])
		}
		if ensemble.AgreementThreshold > 0 {
			threshold = ensemble.AgreementThreshold
		}
		for _, model := range ensemble.Models {
			seed.Models = append(seed.Models, investigation.ModelSeed{
				ID:     model.ID,
				Weight: model.EffectiveWeight(),
			})
		}
	}

	engine := investigation.NewEngine(investigation.Config{
		InvestigationID:    investigationID,
		AgreementThreshold: threshold,
		MaxLogEvents:       cfg.Engine.MaxLogEvents,
		Logger:             logger,
	})
	engine.Seed(seed)
	return engine, nil
}

// runLive connects to the stream and runs the dashboard until quit.
func runLive(cfg *config.Config, investigationID string, logOutput string) error {
	tuiHandler := dashui.NewTUILogHandler(slog.LevelWarn)
	logger := slog.New(tuiHandler)
	if logOutput != "" {
		fileHandler, fileCloser, err := openFileLogHandler(logOutput)
		if err != nil {
			return fmt.Errorf("cannot open log file %s: %w", logOutput, err)
		}
		defer fileCloser()
		logger = slog.New(fanoutHandler{tuiHandler, fileHandler})
	}

	engine, err := newEngine(cfg, investigationID, logger)
	if err != nil {
		return err
	}

	client, err := stream.NewClient(stream.Config{
		Address:         cfg.Stream.Address,
		InvestigationID: investigationID,
		BaseDelay:       cfg.Stream.BaseDelay.Std(),
		MaxDelay:        cfg.Stream.MaxDelay.Std(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer client.Disconnect()

	var recorder *capture.Writer
	if cfg.Capture.Path != "" {
		tag, err := capture.ParseTag(cfg.Capture.Compression)
		if err != nil {
			return err
		}
		recorder, err = capture.Create(capture.WriterConfig{
			Path:        cfg.Capture.Path,
			Compression: tag,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := recorder.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "capture: %v\n", closeErr)
			}
		}()
	}

	model := dashui.NewModel(engine)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())
	tuiHandler.SetProgram(program)

	// The pump goroutine is the only consumer of the stream queue:
	// every frame goes through the engine (and the capture recorder)
	// in arrival order.
	go func() {
		for raw := range client.Messages() {
			engine.Process(raw)
			if recorder != nil {
				if err := recorder.Append(raw, time.Now()); err != nil {
					logger.Warn("capture append failed", "error", err)
				}
			}
		}
	}()

	// Connection state changes feed the engine's liveness flag and
	// the header badge.
	go func() {
		for state := range client.States() {
			engine.SetConnectionState(connectionState(state))
			program.Send(dashui.RefreshMsg{})
		}
	}()

	// Engine notifications coalesce into dashboard refreshes.
	go func() {
		for range engine.Notify() {
			program.Send(dashui.RefreshMsg{})
		}
	}()
	go func() {
		for range engine.RefreshRequests() {
			logger.Info("backend requested snapshot refresh",
				"investigation_id", investigationID)
			program.Send(dashui.RefreshMsg{})
		}
	}()

	client.Connect()
	_, err = program.Run()
	return err
}

// runReplay feeds a capture file through the engine and shows the
// result. Paced replays render live as records arrive; instant
// replays show the final state.
func runReplay(cfg *config.Config, investigationID string, replayPath string, paced bool) error {
	reader, err := capture.Open(replayPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if investigationID == "" {
		investigationID = "replay"
	}

	tuiHandler := dashui.NewTUILogHandler(slog.LevelWarn)
	engine, err := newEngine(cfg, investigationID, slog.New(tuiHandler))
	if err != nil {
		return err
	}

	model := dashui.NewModel(engine)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())
	tuiHandler.SetProgram(program)

	go func() {
		for range engine.Notify() {
			program.Send(dashui.RefreshMsg{})
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_, replayErr := capture.Replay(ctx, reader, engine, capture.ReplayOptions{Paced: paced})
		if replayErr != nil && ctx.Err() == nil {
			slog.New(tuiHandler).Error("replay failed", "error", replayErr)
		}
	}()

	_, err = program.Run()
	return err
}

// connectionState maps transport states onto the engine's
// connection field.
func connectionState(state stream.State) investigation.ConnectionState {
	switch state {
	case stream.StateConnecting:
		return investigation.ConnConnecting
	case stream.StateConnected:
		return investigation.ConnConnected
	case stream.StateReconnecting:
		return investigation.ConnReconnecting
	default:
		return investigation.ConnDisconnected
	}
}

// openFileLogHandler creates a slog.JSONHandler that writes to the
// given file path. The file is created or truncated.
func openFileLogHandler(path string) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

// fanoutHandler is a slog.Handler that sends each record to multiple
// underlying handlers. A record is enabled if any sub-handler is
// enabled for that level.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Stripesight viewer — live terminal dashboard for a tiger
identification investigation.

Connects to the backend's event stream, joins one investigation, and
renders the six-phase pipeline as events arrive: phase status, per-
model progress and scores, the ensemble agreement badge, and a
bounded activity log. Reconnects with capped exponential backoff when
the stream drops.

Usage:
  stripesight-viewer [flags]

Examples:
  # Follow a live investigation
  stripesight-viewer --address backend:7000 --investigation inv-42

  # Record the stream while watching
  stripesight-viewer --investigation inv-42 --capture run.sscap

  # Replay a recorded session at its original pace
  stripesight-viewer --replay run.sscap --replay-paced

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
