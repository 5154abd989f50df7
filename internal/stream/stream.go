// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes server-sent event chat responses.
//
// The wire format is "data: <json>" frames terminated by a "data: [DONE]"
// sentinel. Frames that fail to parse are skipped; the stream only fails
// on transport errors.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// CHUNK TYPES
// =============================================================================

// Chunk is a single parsed frame of a streaming response.
type Chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GetContent returns the delta content from the first choice.
func (c *Chunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// IsDone returns true if the frame carries a finish reason.
func (c *Chunk) IsDone() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// DeltaFunc receives each non-empty content delta in arrival order.
type DeltaFunc func(delta string)

// =============================================================================
// FRAME READER
// =============================================================================

// Reader parses SSE frames from a response body.
type Reader struct {
	reader *bufio.Reader
}

// NewReader creates a frame reader over an io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event's data payload. Returns io.EOF when the
// stream ends.
func (r *Reader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Other fields (event:, id:, retry:, comments) are ignored.
	}
}

// =============================================================================
// CONSUMER
// =============================================================================

// doneSentinel terminates the stream as a normal completion.
var doneSentinel = []byte("[DONE]")

// Consume reads the stream to completion, invoking fn for every non-empty
// delta in arrival order. It returns the accumulated full text.
//
// Cancellation via ctx stops reading promptly; the partial accumulation is
// returned alongside ctx.Err(). The [DONE] sentinel and plain EOF both end
// the stream successfully. Malformed frames are skipped.
func Consume(ctx context.Context, r io.Reader, fn DeltaFunc) (string, error) {
	reader := NewReader(r)
	var accumulated strings.Builder

	for {
		select {
		case <-ctx.Done():
			return accumulated.String(), ctx.Err()
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return accumulated.String(), nil
			}
			// A read error racing a cancel is reported as the cancel:
			// closing the body mid-read surfaces as a transport error.
			if ctx.Err() != nil {
				return accumulated.String(), ctx.Err()
			}
			return accumulated.String(), fmt.Errorf("stream read failed: %w", err)
		}

		if bytes.Equal(data, doneSentinel) {
			return accumulated.String(), nil
		}

		var chunk Chunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed frames
			continue
		}

		if content := chunk.GetContent(); content != "" {
			accumulated.WriteString(content)
			if fn != nil {
				fn(content)
			}
		}

		if chunk.IsDone() {
			return accumulated.String(), nil
		}
	}
}
