package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

// EmitSink writes additional structured outputs.
//
// Formats:
//   - json: captures the final scorecard and writes it as one JSON object on Close
//   - ndjson: streams Event values (one JSON object per line)
type EmitSink struct {
	writer io.Writer
	format string // "json" | "ndjson"
	mu     sync.Mutex
	card   *scorecard.Scorecard
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{writer: w, format: format}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		c, ok := v.(*scorecard.Scorecard)
		if !ok {
			// Ignore lifecycle events in JSON aggregate mode.
			return nil
		}
		s.card = c
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case *scorecard.Scorecard:
			if err := encoder.Encode(eventFromCard(t)); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	default:
		return fmt.Errorf("unsupported emit format: %s", s.format)
	}
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == "json" {
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.card); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	}
	return nil
}
