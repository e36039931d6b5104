// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm applied to the frame
// stream. The tag is stored as one byte after the file magic. These
// values are format constants — changing them breaks existing
// capture files.
type Tag uint8

const (
	// TagNone indicates an uncompressed frame stream.
	TagNone Tag = 0

	// TagLZ4 indicates an LZ4 frame stream. Fast default: captures
	// are written while a live dashboard is running, so encode cost
	// matters more than ratio.
	TagLZ4 Tag = 1

	// TagZstd indicates a zstd stream at the default level. Better
	// ratio for the JSON-heavy envelope payloads when captures are
	// kept around or shared.
	TagZstd Tag = 2
)

// String returns the human-readable name of a compression tag.
func (tag Tag) String() string {
	switch tag {
	case TagNone:
		return "none"
	case TagLZ4:
		return "lz4"
	case TagZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a compression tag from its string representation.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return TagNone, nil
	case "lz4":
		return TagLZ4, nil
	case "zstd":
		return TagZstd, nil
	default:
		return 0, fmt.Errorf("capture: unknown compression tag %q", name)
	}
}

// newCompressor wraps w in a streaming compressor for the tag.
// Closing the returned writer flushes the compressor; it does not
// close w.
func newCompressor(w io.Writer, tag Tag) (io.WriteCloser, error) {
	switch tag {
	case TagNone:
		return nopWriteCloser{w}, nil
	case TagLZ4:
		return lz4.NewWriter(w), nil
	case TagZstd:
		encoder, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("capture: zstd writer: %w", err)
		}
		return encoder, nil
	default:
		return nil, fmt.Errorf("capture: unsupported compression tag: %d", tag)
	}
}

// newDecompressor wraps r in a streaming decompressor for the tag.
// Closing the returned reader releases decoder resources; it does
// not close r.
func newDecompressor(r io.Reader, tag Tag) (io.ReadCloser, error) {
	switch tag {
	case TagNone:
		return io.NopCloser(r), nil
	case TagLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case TagZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("capture: zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("capture: unsupported compression tag: %d", tag)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
