package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

func TestFileSink_JSONAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.json")

	sink, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	if err := sink.Write(Event{Type: "run.started", Login: "octocat"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Write(testCard()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	var got scorecard.Scorecard
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	if got.Login != "octocat" || got.TotalRepos != 3 {
		t.Fatalf("unexpected aggregate: %+v", got)
	}
}

func TestFileSink_NDJSONStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	sink, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	if err := sink.Write(Event{Type: "run.started", Login: "octocat"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Write(Event{Type: "job.progress", Phase: "evaluating", Percentage: 60}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Write(testCard()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), data)
	}
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line is not a valid event: %v\n%s", err, line)
		}
	}
	if !strings.Contains(lines[2], `"type":"scorecard.updated"`) {
		t.Fatalf("unexpected final line: %q", lines[2])
	}
}

func TestFileSink_JSONLInfersNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	sink, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	if sink.format != "ndjson" {
		t.Fatalf("expected ndjson format, got %q", sink.format)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestFileSink_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "card.json")

	sink, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	if err := sink.Write(testCard()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestFileSink_Validation(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		format string
	}{
		{name: "empty_path", path: "", format: "json"},
		{name: "unknown_extension", path: "out.txt", format: ""},
		{name: "missing_extension", path: "out", format: ""},
		{name: "bad_format", path: "out.json", format: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path != "" {
				path = filepath.Join(t.TempDir(), path)
			}
			if _, err := NewFileSink(path, tt.format); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}
