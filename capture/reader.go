// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/stripesight/stripesight/lib/clock"
	"github.com/stripesight/stripesight/lib/codec"
)

// Reader iterates over the records of a capture file.
type Reader struct {
	file         *os.File
	decompressor io.ReadCloser
	buffered     *bufio.Reader
	tag          Tag
}

// Open opens a capture file and validates its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}

	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(file, header); err != nil {
		file.Close()
		return nil, fmt.Errorf("capture: read header: %w", err)
	}
	if string(header[:len(magic)]) != magic {
		file.Close()
		return nil, fmt.Errorf("capture: %s is not a capture file", path)
	}
	tag := Tag(header[len(magic)])

	decompressor, err := newDecompressor(file, tag)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Reader{
		file:         file,
		decompressor: decompressor,
		buffered:     bufio.NewReader(decompressor),
		tag:          tag,
	}, nil
}

// Compression returns the file's compression tag.
func (reader *Reader) Compression() Tag { return reader.tag }

// Next returns the next record. It returns io.EOF at a clean end of
// file; a file cut off mid-frame is reported as an error.
func (reader *Reader) Next() (Record, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(reader.buffered, lengthPrefix[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: truncated frame: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > maxRecordBytes {
		return Record{}, fmt.Errorf("capture: frame size %d exceeds limit %d", length, maxRecordBytes)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(reader.buffered, payload); err != nil {
		return Record{}, fmt.Errorf("capture: truncated frame: %w", err)
	}

	var record Record
	if err := codec.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("capture: decode record: %w", err)
	}
	return record, nil
}

// Close releases the decoder and closes the file.
func (reader *Reader) Close() error {
	decompressErr := reader.decompressor.Close()
	fileErr := reader.file.Close()
	if decompressErr != nil {
		return decompressErr
	}
	return fileErr
}

// EventSink consumes raw stream envelopes. *investigation.Engine
// satisfies it.
type EventSink interface {
	Process(raw []byte)
}

// ReplayOptions controls pacing during Replay.
type ReplayOptions struct {
	// Paced reproduces the recorded inter-arrival gaps between
	// frames. When false, frames are delivered as fast as the sink
	// accepts them.
	Paced bool

	// Clock drives paced waits. Nil selects the real clock.
	Clock clock.Clock
}

// Replay feeds every record through the sink's normal apply path, in
// file order. It returns the number of records delivered. The
// context cancels a replay mid-file, which matters for paced replays
// of long sessions.
func Replay(ctx context.Context, reader *Reader, sink EventSink, options ReplayOptions) (int, error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	delivered := 0
	havePrevious := false
	var previous Record

	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, err
		}

		if options.Paced && havePrevious {
			gap := record.At.Sub(previous.At)
			if gap > 0 {
				select {
				case <-clk.After(gap):
				case <-ctx.Done():
					return delivered, ctx.Err()
				}
			}
		}
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		sink.Process(record.Envelope)
		delivered++
		previous = record
		havePrevious = true
	}
}
