package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

type categoryRow struct {
	Name  string
	Count int
}

// categoryRows returns category counts ordered by count (desc), then name.
func categoryRows(c *scorecard.Scorecard) []categoryRow {
	if c == nil || len(c.CategoryCounts) == 0 {
		return nil
	}
	rows := make([]categoryRow, 0, len(c.CategoryCounts))
	for name, count := range c.CategoryCounts {
		rows = append(rows, categoryRow{Name: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

type languageRow struct {
	Name  string
	Share float64
}

// languageRows returns language shares ordered by share (desc), then name.
func languageRows(c *scorecard.Scorecard) []languageRow {
	if c == nil || len(c.LanguageShare) == 0 {
		return nil
	}
	rows := make([]languageRow, 0, len(c.LanguageShare))
	for name, share := range c.LanguageShare {
		rows = append(rows, languageRow{Name: name, Share: share})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Share != rows[j].Share {
			return rows[i].Share > rows[j].Share
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// topRepos returns up to n repositories ordered by score (desc), then name.
func topRepos(c *scorecard.Scorecard, n int) []api.RepoScore {
	if c == nil || len(c.Repos) == 0 || n <= 0 {
		return nil
	}
	repos := make([]api.RepoScore, len(c.Repos))
	copy(repos, c.Repos)
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Score != repos[j].Score {
			return repos[i].Score > repos[j].Score
		}
		return repoDisplayName(repos[i]) < repoDisplayName(repos[j])
	})
	if len(repos) > n {
		repos = repos[:n]
	}
	return repos
}

func repoDisplayName(r api.RepoScore) string {
	if r.FullName != "" {
		return r.FullName
	}
	return r.Name
}

// repoLink renders a repository as a Markdown link when a URL is known.
func repoLink(r api.RepoScore) string {
	name := escapeCell(repoDisplayName(r))
	if r.HTMLURL == "" {
		return name
	}
	return fmt.Sprintf("[%s](%s)", name, r.HTMLURL)
}

// escapeCell makes a value safe inside a Markdown table cell.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
