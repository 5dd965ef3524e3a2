// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// =============================================================================
// CHAT STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming chat responses.
type StreamReader struct {
	reader *bufio.Reader
	model  string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readChunk()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			if chunk != nil {
				callback(*chunk)
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readChunk reads and parses a single line from the stream.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Try to process the last line even on EOF
		if len(line) == 0 {
			return nil, err
		}
	}

	if len(line) == 0 {
		return nil, nil
	}

	var response ChatResponse
	if err := json.Unmarshal(line, &response); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if response.Model != "" {
		s.model = response.Model
	}

	return &StreamChunk{
		Content:    response.Message.Content,
		Done:       response.Done,
		DoneReason: response.DoneReason,
		Model:      s.model,
	}, nil
}

// =============================================================================
// PULL STREAM READER
// =============================================================================

// PullCallback receives the mapped 0-100 progress of a model pull.
type PullCallback func(percent int)

// pullReader parses the newline-delimited JSON progress stream produced by
// the /api/pull endpoint and reports monotonic percentage progress.
type pullReader struct {
	reader  *bufio.Reader
	highest int
}

func newPullReader(r io.Reader) *pullReader {
	return &pullReader{reader: bufio.NewReader(r)}
}

// process consumes the pull stream until EOF or an error line. The callback
// only sees increasing values; layer-by-layer pulls reset their byte counters
// per layer and would otherwise make the bar jump backwards.
func (p *pullReader) process(ctx context.Context, callback PullCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := p.reader.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		var status PullStatus
		if jsonErr := json.Unmarshal(line, &status); jsonErr != nil {
			// Skip malformed lines
			continue
		}

		// The runtime reports failures as an error line mid-stream.
		var apiErr OllamaError
		if json.Unmarshal(line, &apiErr) == nil && apiErr.Error != "" {
			return &ClientError{
				Type:    ErrTypeInvalidResponse,
				Message: "model pull failed: " + apiErr.Error,
			}
		}

		if pct := status.Percent(); pct > p.highest {
			p.highest = pct
			if callback != nil {
				callback(pct)
			}
		}

		if status.Status == "success" {
			return nil
		}
		if err == io.EOF {
			return nil
		}
	}
}
