// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stripesight/stripesight/investigation"
	"github.com/stripesight/stripesight/lib/clock"
)

// writeCapture writes the given envelopes one second apart starting
// at base, and returns the file path.
func writeCapture(t *testing.T, tag Tag, base time.Time, envelopes [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.sscap")
	writer, err := Create(WriterConfig{Path: path, Compression: tag})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i, envelope := range envelopes {
		if err := writer.Append(envelope, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestRoundTripPerCompression(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	envelopes := [][]byte{
		[]byte(`{"type":"phase_event","data":{"phase":"upload_and_parse","status":"running","timestamp":1}}`),
		[]byte(`{"type":"model_event","data":{"model":"m1","status":"running","progress":40}}`),
		[]byte(`not json at all`),
	}

	for _, tag := range []Tag{TagNone, TagLZ4, TagZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			path := writeCapture(t, tag, base, envelopes)

			reader, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer reader.Close()

			if reader.Compression() != tag {
				t.Errorf("Compression: got %v, want %v", reader.Compression(), tag)
			}
			for i, want := range envelopes {
				record, err := reader.Next()
				if err != nil {
					t.Fatalf("Next %d: %v", i, err)
				}
				if string(record.Envelope) != string(want) {
					t.Errorf("record %d: got %q, want %q", i, record.Envelope, want)
				}
				if !record.At.Equal(base.Add(time.Duration(i) * time.Second)) {
					t.Errorf("record %d At: got %v", i, record.At)
				}
			}
			if _, err := reader.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("after last record: got %v, want io.EOF", err)
			}
		})
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "closed.sscap")
	writer, err := Create(WriterConfig{Path: path})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := writer.Append([]byte(`{}`), time.Now()); err == nil {
		t.Error("Append after Close succeeded")
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tiny.sscap")
	writer, err := Create(WriterConfig{Path: path, MaxBuffer: 64})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer writer.Close()

	huge := make([]byte, 1024)
	if err := writer.Append(huge, time.Now()); err == nil {
		t.Error("oversized Append succeeded")
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just some notes, long enough to pass the header read"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open accepted a non-capture file")
	}
}

func TestNextReportsTruncatedFrame(t *testing.T) {
	t.Parallel()
	path := writeCapture(t, TagNone, time.Now(), [][]byte{[]byte(`{"type":"agent_update","data":{"agent_type":"detector","status":"active","current_task":"scan","last_update":100}}`)})

	// Cut the file mid-frame: keep the header, the length prefix,
	// and half the payload.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cut := len(magic) + 1 + 4 + 10
	if err := os.WriteFile(path, data[:cut], 0o644); err != nil {
		t.Fatal(err)
	}

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()
	if _, err := reader.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("truncated frame: got %v, want a decode error", err)
	}
}

func TestReplayReachesSameDerivedState(t *testing.T) {
	t.Parallel()
	envelopes := [][]byte{
		[]byte(`{"type":"phase_event","data":{"phase":"upload_and_parse","status":"running","timestamp":1}}`),
		[]byte(`{"type":"phase_event","data":{"phase":"upload_and_parse","status":"completed","timestamp":2}}`),
		[]byte(`{"type":"phase_event","data":{"phase":"upload_and_parse","status":"running","timestamp":1.5}}`), // stale, dropped
		[]byte(`{"type":"model_event","data":{"model":"m1","status":"completed","progress":100,"score":0.92}}`),
		[]byte(`garbage`),
	}
	path := writeCapture(t, TagZstd, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), envelopes)

	engine := investigation.NewEngine(investigation.Config{InvestigationID: "inv-replay"})
	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	delivered, err := Replay(context.Background(), reader, engine, ReplayOptions{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if delivered != len(envelopes) {
		t.Errorf("delivered: got %d, want %d", delivered, len(envelopes))
	}

	stats := engine.Stats()
	if stats.Applied != 3 || stats.Stale != 1 || stats.Malformed != 1 {
		t.Errorf("stats: got %+v", stats)
	}
	view := engine.View()
	if view.Phases[0].Status != investigation.StatusCompleted {
		t.Errorf("phase status: got %q", view.Phases[0].Status)
	}
}

func TestReplayPacedHonorsRecordedGaps(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	envelopes := [][]byte{
		[]byte(`{"type":"agent_update","data":{"agent_type":"detector","status":"active","current_task":"first","last_update":101}}`),
		[]byte(`{"type":"agent_update","data":{"agent_type":"detector","status":"active","current_task":"second","last_update":102}}`),
	}
	path := writeCapture(t, TagLZ4, base, envelopes)

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	clk := clock.Fake(base)
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		_, err := Replay(context.Background(), reader, sink, ReplayOptions{Paced: true, Clock: clk})
		done <- err
	}()

	// The first record is delivered immediately; the second waits out
	// the recorded one-second gap.
	clk.WaitForWaiters(1)
	if got := sink.count(); got != 1 {
		t.Fatalf("before advance: delivered %d, want 1", got)
	}
	clk.Advance(time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got := sink.count(); got != 2 {
		t.Errorf("after advance: delivered %d, want 2", got)
	}
}

func TestReplayCancelled(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	path := writeCapture(t, TagNone, base, [][]byte{
		[]byte(`{"type":"agent_update","data":{"agent_type":"a","status":"active","current_task":"one","last_update":103}}`),
		[]byte(`{"type":"agent_update","data":{"agent_type":"a","status":"active","current_task":"two","last_update":104}}`),
	})

	reader, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	clk := clock.Fake(base)
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		_, err := Replay(ctx, reader, sink, ReplayOptions{Paced: true, Clock: clk})
		done <- err
	}()

	clk.WaitForWaiters(1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Replay: got %v, want context.Canceled", err)
	}
}

func TestParseTag(t *testing.T) {
	t.Parallel()
	for _, tag := range []Tag{TagNone, TagLZ4, TagZstd} {
		parsed, err := ParseTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseTag(%q): got %v, %v", tag.String(), parsed, err)
		}
	}
	if _, err := ParseTag("gzip"); err == nil {
		t.Error("ParseTag accepted an unknown name")
	}
}

// recordingSink counts delivered envelopes.
type recordingSink struct {
	mu        sync.Mutex
	delivered int
}

func (s *recordingSink) Process(raw []byte) {
	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}
