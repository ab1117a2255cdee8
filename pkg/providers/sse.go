package providers

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// SSEReader walks a Server-Sent-Events response body line by line and
// yields the payload of each data: line. It is shared by the dialects
// that stream over SSE (openai, azure, anthropic, vertex).
type SSEReader struct {
	provider string
	body     io.ReadCloser
	scanner  *bufio.Scanner
	event    string
	closed   bool
}

// NewSSEReader wraps a streaming response body.
func NewSSEReader(provider string, body io.ReadCloser) *SSEReader {
	scanner := bufio.NewScanner(body)
	// Provider deltas are small, but tool-call argument chunks can get
	// long; give the scanner headroom.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEReader{
		provider: provider,
		body:     body,
		scanner:  scanner,
	}
}

// Next returns the next data payload together with the most recent
// event: field (Anthropic names its frames). It returns io.EOF at the
// end of the stream or on the "[DONE]" sentinel.
func (s *SSEReader) Next(ctx context.Context) (event, data string, err error) {
	if s.closed {
		return "", "", io.EOF
	}

	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", "", &Error{
					Provider: s.provider,
					Kind:     KindTransient,
					Message:  "failed to read stream",
					Cause:    err,
				}
			}
			return "", "", io.EOF
		}

		line := s.scanner.Text()

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			s.event = strings.TrimPrefix(line, "event: ")
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			// Comments and unknown fields are skipped.
			continue
		}

		data = strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return "", "", io.EOF
		}

		return s.event, data, nil
	}
}

// Close closes the underlying response body.
func (s *SSEReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
