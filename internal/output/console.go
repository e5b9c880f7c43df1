package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

type ConsoleSink struct {
	writer io.Writer
	format string // "text", "json", "ndjson"
	mu     sync.Mutex
	card   *scorecard.Scorecard // for JSON aggregate output
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{
		writer: w,
		format: format,
	}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
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
	case "text":
		switch t := v.(type) {
		case Event:
			if err := s.writeTextEvent(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case *scorecard.Scorecard:
			if err := s.writeTextCard(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeTextEvent(e Event) error {
	printf := func(format string, args ...any) error {
		_, err := fmt.Fprintf(s.writer, format, args...)
		return err
	}

	switch e.Type {
	case "run.started":
		if _, err := color.New(color.Bold).Fprintf(s.writer, "Analyzing %s", e.Login); err != nil {
			return err
		}
		if e.JobID != "" {
			return printf(" (job %s)\n", e.JobID)
		}
		return printf("\n")
	case "job.progress":
		line := fmt.Sprintf("[%3.0f%%] %-12s", e.Percentage, e.Phase)
		if detail := progressDetail(e.Phase, e.Progress); detail != "" {
			line += " " + detail
		}
		return printf("%s\n", strings.TrimRight(line, " "))
	case "job.completed":
		if _, err := color.New(color.FgGreen).Fprintf(s.writer, "analysis complete"); err != nil {
			return err
		}
		if err := printf("\n"); err != nil {
			return err
		}
		if e.Partial {
			toEvaluate := 0
			if e.Progress != nil {
				toEvaluate = e.Progress.ToEvaluate
			}
			if _, err := color.New(color.FgYellow).Fprintf(s.writer, "warning: partial results: %d of %d repositories not evaluated\n", e.Missing, toEvaluate); err != nil {
				return err
			}
		}
		return nil
	case "job.failed":
		msg := e.Message
		if msg == "" {
			msg = "analysis failed"
		}
		_, err := color.New(color.FgRed).Fprintf(s.writer, "error: %s\n", msg)
		return err
	case "sync.result":
		if e.Message == "" {
			return nil
		}
		return printf("sync: %s\n", e.Message)
	default:
		return nil
	}
}

func (s *ConsoleSink) writeTextCard(c *scorecard.Scorecard) error {
	if c == nil {
		return nil
	}
	printf := func(format string, args ...any) error {
		_, err := fmt.Fprintf(s.writer, format, args...)
		return err
	}

	if _, err := color.New(color.Bold).Fprintf(s.writer, "\n%s", c.Login); err != nil {
		return err
	}
	if err := printf(" - score "); err != nil {
		return err
	}
	if _, err := color.New(color.FgGreen, color.Bold).Fprintf(s.writer, "%.1f\n", c.Score); err != nil {
		return err
	}

	if err := printf("  repositories:     %d\n", c.TotalRepos); err != nil {
		return err
	}
	if c.PrimaryLanguage != "" {
		share := c.LanguageShare[c.PrimaryLanguage]
		if err := printf("  primary language: %s (%.1f%%)\n", c.PrimaryLanguage, share); err != nil {
			return err
		}
	}
	if cats := categoryRows(c); len(cats) > 0 {
		parts := make([]string, 0, len(cats))
		for _, cat := range cats {
			parts = append(parts, fmt.Sprintf("%s %d", cat.Name, cat.Count))
		}
		if err := printf("  categories:       %s\n", strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	if !c.GeneratedAt.IsZero() {
		if err := printf("  generated:        %s\n", c.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")); err != nil {
			return err
		}
	}

	top := topRepos(c, 5)
	if len(top) > 0 {
		if err := printf("  top repositories:\n"); err != nil {
			return err
		}
		for _, r := range top {
			name := r.FullName
			if name == "" {
				name = r.Name
			}
			tags := r.Category
			if r.Language != "" {
				if tags != "" {
					tags += ", "
				}
				tags += r.Language
			}
			if tags != "" {
				tags = " (" + tags + ")"
			}
			if err := printf("    %5.1f  %s%s\n", r.Score, name, tags); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ConsoleSink) Close() error {
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
	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
