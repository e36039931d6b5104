// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// stripesight-mock is a scripted investigation backend for demos and
// integration testing. It listens on TCP, speaks the viewer's NDJSON
// stream protocol (join/leave control messages in, event envelopes
// out), and plays a six-phase tiger identification run for every
// subscriber.
//
// The script deliberately exercises the viewer's robustness rules:
// some frames are sent twice, some arrive with out-of-order
// timestamps, and one frame is plain garbage. A correct dashboard
// renders the same final state regardless.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/stripesight/stripesight/lib/process"
	"github.com/stripesight/stripesight/lib/version"
)

func main() {
	var (
		listenAddress string
		interval      time.Duration
		seed          int64
	)

	flagSet := pflag.NewFlagSet("stripesight-mock", pflag.ContinueOnError)
	flagSet.StringVar(&listenAddress, "listen", "127.0.0.1:7000", "address to listen on")
	flagSet.DurationVar(&interval, "interval", 300*time.Millisecond, "delay between scripted frames")
	flagSet.Int64Var(&seed, "seed", 0, "random seed for scores and jitter (0: time-based)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("stripesight-mock")
		return
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		process.Fatal(err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.SetOutput(os.Stderr)
		flagSet.PrintDefaults()
		return
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		process.Fatal(fmt.Errorf("listen %s: %w", listenAddress, err))
	}
	logger.Info("mock backend listening", "address", listenAddress, "seed", seed)

	// Close the listener on SIGINT/SIGTERM; Accept then errors and
	// the accept loop returns.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Info("mock backend shutting down")
			return
		}
		go serveSubscriber(conn, interval, seed, logger)
	}
}

// controlMessage mirrors the viewer's join/leave wire format.
type controlMessage struct {
	Type            string `json:"type"`
	InvestigationID string `json:"investigation_id"`
}

// serveSubscriber handles one viewer connection: it waits for the
// join message, then plays the script until done, the viewer leaves,
// or the connection drops.
func serveSubscriber(conn net.Conn, interval time.Duration, seed int64, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	var control controlMessage
	if err := json.Unmarshal(scanner.Bytes(), &control); err != nil || control.Type != "join" {
		logger.Warn("subscriber sent no join", "remote", conn.RemoteAddr())
		return
	}

	sessionID := uuid.NewString()
	logger.Info("subscriber joined",
		"remote", conn.RemoteAddr(),
		"investigation_id", control.InvestigationID,
		"session_id", sessionID,
	)

	// Drain further control messages (leave) in the background; a
	// leave closes the connection, which stops the script's writes.
	go func() {
		for scanner.Scan() {
			var message controlMessage
			if json.Unmarshal(scanner.Bytes(), &message) == nil && message.Type == "leave" {
				conn.Close()
				return
			}
		}
	}()

	script := newScript(seed)
	for _, frame := range script.frames() {
		if _, err := conn.Write(append(frame, '\n')); err != nil {
			logger.Info("subscriber gone",
				"remote", conn.RemoteAddr(),
				"session_id", sessionID,
			)
			return
		}
		time.Sleep(interval)
	}

	logger.Info("script complete",
		"remote", conn.RemoteAddr(),
		"session_id", sessionID,
	)
}

// script generates one investigation run. Timestamps are synthetic
// and strictly scripted so the duplicate/out-of-order injections are
// reproducible for a given seed.
type script struct {
	random *rand.Rand
	now    float64
}

func newScript(seed int64) *script {
	return &script{
		random: rand.New(rand.NewSource(seed)),
		now:    float64(time.Now().Unix()),
	}
}

// step advances the script clock by one second and returns it.
func (s *script) step() float64 {
	s.now++
	return s.now
}

func (s *script) phaseFrame(phase, status string, timestamp float64) []byte {
	return s.envelope("phase_event", map[string]any{
		"phase":     phase,
		"status":    status,
		"timestamp": timestamp,
		"event_id":  uuid.NewString(),
	})
}

func (s *script) modelFrame(model string, fields map[string]any) []byte {
	data := map[string]any{
		"model":    model,
		"event_id": uuid.NewString(),
	}
	for key, value := range fields {
		data[key] = value
	}
	return s.envelope("model_event", data)
}

func (s *script) agentFrame(agentType, task string) []byte {
	return s.envelope("agent_update", map[string]any{
		"agent_type":   agentType,
		"status":       "active",
		"current_task": task,
		"last_update":  s.now,
		"event_id":     uuid.NewString(),
	})
}

func (s *script) envelope(kind string, data map[string]any) []byte {
	frame, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		panic("mock: envelope marshal: " + err.Error())
	}
	return frame
}

// score draws a similarity score. Four models land clearly above the
// default 0.7 agreement threshold, two clearly below, so the run
// always ends at the "good" agreement tier.
func (s *script) score(agreeing bool) float64 {
	if agreeing {
		return 0.85 + s.random.Float64()*0.13
	}
	return 0.40 + s.random.Float64()*0.20
}

// frames builds the full scripted run.
func (s *script) frames() [][]byte {
	models := []struct {
		id       string
		agreeing bool
	}{
		{"stripe-cnn", true},
		{"wild-id", true},
		{"hotspotter", true},
		{"flank-matcher", true},
		{"texture-net", false},
		{"edge-profile", false},
	}

	var frames [][]byte
	push := func(frame []byte) { frames = append(frames, frame) }

	// Upload and parse.
	push(s.phaseFrame("upload_and_parse", "running", s.step()))
	push(s.agentFrame("ingest", "extracting EXIF and normalizing image"))
	push(s.phaseFrame("upload_and_parse", "completed", s.step()))

	// Reverse image search, with a duplicate completion frame: the
	// viewer must apply it once.
	push(s.phaseFrame("reverse_image_search", "running", s.step()))
	completed := s.phaseFrame("reverse_image_search", "completed", s.step())
	push(completed)
	push(completed)

	// Tiger detection: models start and report progress.
	detectionStart := s.step()
	push(s.phaseFrame("tiger_detection", "running", detectionStart))
	for _, model := range models {
		push(s.modelFrame(model.id, map[string]any{"status": "running", "progress": 0}))
	}
	for _, progress := range []int{30, 60, 90} {
		for _, model := range models {
			push(s.modelFrame(model.id, map[string]any{"status": "running", "progress": progress}))
		}
	}

	// A stale frame from before detection started: must be discarded.
	push(s.phaseFrame("tiger_detection", "pending", detectionStart-2))

	// One garbage frame: must be dropped without visible effect.
	push([]byte(`{"type":"phase_event","data":{"phase":"tiger_detection"`))

	push(s.phaseFrame("tiger_detection", "completed", s.step()))

	// Stripe analysis: models complete with scores.
	push(s.phaseFrame("stripe_analysis", "running", s.step()))
	for _, model := range models {
		push(s.modelFrame(model.id, map[string]any{
			"status":   "completed",
			"progress": 100,
			"score":    s.score(model.agreeing),
		}))
	}
	push(s.phaseFrame("stripe_analysis", "completed", s.step()))

	// Report generation and wrap-up.
	push(s.phaseFrame("report_generation", "running", s.step()))
	push(s.agentFrame("reporter", "rendering identification report"))
	push(s.phaseFrame("report_generation", "completed", s.step()))
	push(s.phaseFrame("complete", "completed", s.step()))

	// Backend asks viewers to refetch their snapshot.
	push(s.envelope("investigation_update", map[string]any{
		"event_id": uuid.NewString(),
	}))

	return frames
}
