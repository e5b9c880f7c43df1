package output

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

// ReportSink collects the run's events and final scorecard and writes a
// Markdown report on Close.
type ReportSink struct {
	path   string
	file   *os.File
	mu     sync.Mutex
	card   *scorecard.Scorecard
	events []Event
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path: path,
		file: f,
	}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case *scorecard.Scorecard:
		s.card = t
	case Event:
		s.events = append(s.events, t)
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder

	login := ""
	if s.card != nil {
		login = s.card.Login
	}
	if login == "" {
		for _, e := range s.events {
			if e.Login != "" {
				login = e.Login
				break
			}
		}
	}

	if login != "" {
		b.WriteString(fmt.Sprintf("# Broskies Scorecard: %s\n\n", escapeCell(login)))
	} else {
		b.WriteString("# Broskies Scorecard\n\n")
	}

	if s.card != nil && !s.card.GeneratedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Generated: %s\n\n", s.card.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")))
	}

	if partial, missing, toEvaluate := s.partialOutcome(); partial {
		b.WriteString(fmt.Sprintf("> **Warning:** partial results: %d of %d repositories were not evaluated.\n\n", missing, toEvaluate))
	}

	s.writeOverview(&b)
	s.writeLanguages(&b)
	s.writeCategories(&b)
	s.writeTopRepos(&b)
	s.writeRunLog(&b)

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *ReportSink) partialOutcome() (partial bool, missing, toEvaluate int) {
	for _, e := range s.events {
		if e.Type == "job.completed" && e.Partial {
			partial = true
			missing = e.Missing
			if e.Progress != nil {
				toEvaluate = e.Progress.ToEvaluate
			}
		}
	}
	return partial, missing, toEvaluate
}

func (s *ReportSink) writeOverview(b *strings.Builder) {
	if s.card == nil {
		b.WriteString("No scorecard was produced by this run.\n")
		return
	}

	b.WriteString("## Overview\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Score | **%.1f** |\n", s.card.Score))
	b.WriteString(fmt.Sprintf("| Repositories | %d |\n", s.card.TotalRepos))
	if s.card.PrimaryLanguage != "" {
		share := s.card.LanguageShare[s.card.PrimaryLanguage]
		b.WriteString(fmt.Sprintf("| Primary language | %s (%.1f%%) |\n", escapeCell(s.card.PrimaryLanguage), share))
	}
	if s.card.JobID != "" {
		b.WriteString(fmt.Sprintf("| Analysis job | `%s` |\n", s.card.JobID))
	}
	b.WriteString("\n")
}

func (s *ReportSink) writeLanguages(b *strings.Builder) {
	rows := languageRows(s.card)
	if len(rows) == 0 {
		return
	}

	b.WriteString("## Languages\n\n")
	b.WriteString("| Language | Share |\n")
	b.WriteString("| --- | --- |\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("| %s | %.1f%% |\n", escapeCell(row.Name), row.Share))
	}
	b.WriteString("\n")
}

func (s *ReportSink) writeCategories(b *strings.Builder) {
	rows := categoryRows(s.card)
	if len(rows) == 0 {
		return
	}

	b.WriteString("## Categories\n\n")
	b.WriteString("| Category | Repositories |\n")
	b.WriteString("| --- | --- |\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", escapeCell(row.Name), row.Count))
	}
	b.WriteString("\n")
}

func (s *ReportSink) writeTopRepos(b *strings.Builder) {
	top := topRepos(s.card, 10)
	if len(top) == 0 {
		return
	}

	b.WriteString("## Top Repositories\n\n")
	b.WriteString("| # | Repository | Category | Language | Stars | Score |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
	for i, r := range top {
		category := r.Category
		if category == "" {
			category = scorecard.Uncategorized
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %.1f |\n",
			i+1, repoLink(r), escapeCell(category), escapeCell(r.Language), r.Stars, r.Score))
	}
	b.WriteString("\n")
}

func (s *ReportSink) writeRunLog(b *strings.Builder) {
	var lines []string
	for _, e := range s.events {
		switch e.Type {
		case "job.progress":
			line := fmt.Sprintf("- %s (%.0f%%)", e.Phase, e.Percentage)
			if detail := progressDetail(e.Phase, e.Progress); detail != "" {
				line += " - " + detail
			}
			lines = append(lines, line)
		case "job.failed":
			msg := e.Message
			if msg == "" {
				msg = "analysis failed"
			}
			lines = append(lines, fmt.Sprintf("- failed: %s", escapeCell(msg)))
		}
	}
	if len(lines) == 0 {
		return
	}

	b.WriteString("## Run Log\n\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}
