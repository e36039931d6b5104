// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/stripesight/stripesight/lib/codec"
)

// DefaultMaxBuffer is the default byte bound on frames queued for
// the writer goroutine. A dashboard stream is a few KB per second,
// so 4 MB of headroom means drops only happen when the disk has
// stalled for a long time.
const DefaultMaxBuffer = 4 << 20

// WriterConfig configures a Writer. The zero value of every optional
// field selects a default.
type WriterConfig struct {
	// Path is the capture file to create. An existing file is
	// truncated. Required.
	Path string

	// Compression selects the frame stream compression. The zero
	// value is TagNone.
	Compression Tag

	// MaxBuffer bounds the bytes queued for the writer goroutine.
	// Zero selects DefaultMaxBuffer.
	MaxBuffer int
}

// Writer appends stream frames to a capture file. Append never
// blocks the caller: frames go through a size-bounded queue drained
// by a single goroutine, and when the queue is full the oldest
// queued frames are dropped (a capture with a gap beats a stalled
// dashboard). Disk errors are sticky and surface on Close.
type Writer struct {
	maxBuffer int

	mu        sync.Mutex
	entries   [][]byte
	totalSize int
	dropped   uint64
	closed    bool
	writeErr  error

	notify  chan struct{}
	closing chan struct{}
	done    chan struct{}

	file       *os.File
	compressor io.WriteCloser
}

// Create opens a capture file and starts the writer goroutine.
func Create(config WriterConfig) (*Writer, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("capture: Path is required")
	}
	maxBuffer := config.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("capture: create %s: %w", config.Path, err)
	}

	header := append([]byte(magic), byte(config.Compression))
	if _, err := file.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("capture: write header: %w", err)
	}

	compressor, err := newCompressor(file, config.Compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	writer := &Writer{
		maxBuffer:  maxBuffer,
		notify:     make(chan struct{}, 1),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		file:       file,
		compressor: compressor,
	}
	go writer.run()
	return writer, nil
}

// Append queues one frame for the capture file. The raw bytes are
// the envelope exactly as the transport delivered it; at is its
// arrival time. Append after Close is an error; queue overflow is
// not (the oldest queued frames are dropped and counted).
func (writer *Writer) Append(raw []byte, at time.Time) error {
	payload, err := codec.Marshal(Record{At: at, Envelope: raw})
	if err != nil {
		return fmt.Errorf("capture: encode record: %w", err)
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.closed {
		return fmt.Errorf("capture: append after close")
	}
	if len(frame) > writer.maxBuffer {
		return fmt.Errorf("capture: frame size %d exceeds buffer size %d", len(frame), writer.maxBuffer)
	}

	for writer.totalSize+len(frame) > writer.maxBuffer && len(writer.entries) > 0 {
		evicted := writer.entries[0]
		writer.entries[0] = nil
		writer.entries = writer.entries[1:]
		writer.totalSize -= len(evicted)
		writer.dropped++
	}
	writer.entries = append(writer.entries, frame)
	writer.totalSize += len(frame)

	select {
	case writer.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dropped returns the number of frames evicted from the queue
// because the writer goroutine could not keep up.
func (writer *Writer) Dropped() uint64 {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	return writer.dropped
}

// Close drains the queue, flushes the compressor, and closes the
// file. It returns the first disk error encountered, if any. Close
// is idempotent.
func (writer *Writer) Close() error {
	writer.mu.Lock()
	if writer.closed {
		writer.mu.Unlock()
		<-writer.done
		return writer.closeErr()
	}
	writer.closed = true
	writer.mu.Unlock()

	close(writer.closing)
	<-writer.done
	return writer.closeErr()
}

func (writer *Writer) closeErr() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	return writer.writeErr
}

// run is the writer goroutine: it drains queued frames to the
// compressor until Close, then makes a final drain pass and tears
// the file down.
func (writer *Writer) run() {
	defer close(writer.done)

	for {
		select {
		case <-writer.notify:
			writer.drain()
		case <-writer.closing:
			writer.drain()
			writer.finish()
			return
		}
	}
}

// drain writes every queued frame. After a disk error it keeps
// consuming the queue (discarding frames) so Append stays cheap; the
// error is reported on Close.
func (writer *Writer) drain() {
	for {
		writer.mu.Lock()
		if len(writer.entries) == 0 {
			writer.mu.Unlock()
			return
		}
		frame := writer.entries[0]
		writer.entries[0] = nil
		writer.entries = writer.entries[1:]
		writer.totalSize -= len(frame)
		failed := writer.writeErr != nil
		writer.mu.Unlock()

		if failed {
			continue
		}
		if _, err := writer.compressor.Write(frame); err != nil {
			writer.recordError(fmt.Errorf("capture: write frame: %w", err))
		}
	}
}

func (writer *Writer) finish() {
	if err := writer.compressor.Close(); err != nil {
		writer.recordError(fmt.Errorf("capture: flush: %w", err))
	}
	if err := writer.file.Close(); err != nil {
		writer.recordError(fmt.Errorf("capture: close file: %w", err))
	}
}

func (writer *Writer) recordError(err error) {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.writeErr == nil {
		writer.writeErr = err
	}
}
