// Package scorecard holds the locally persisted view of an account
// analysis and the merge operation that reconciles partial backend
// updates into it. Merging is pure: inputs are never mutated, derived
// fields are always recomputed from the merged repository list.
package scorecard

import (
	"time"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
)

// Uncategorized is the category bucket for repositories the backend
// returned without a category.
const Uncategorized = "uncategorized"

// Scorecard is the merged aggregate for one account. TotalRepos,
// Languages, LanguageShare, PrimaryLanguage and CategoryCounts are
// derived from Repos and recomputed on every merge; everything else is
// carried from the latest authoritative update.
type Scorecard struct {
	Login       string          `json:"login"`
	JobID       string          `json:"job_id,omitempty"`
	Score       float64         `json:"score"`
	Repos       []api.RepoScore `json:"repos"`
	GeneratedAt time.Time       `json:"generated_at"`

	TotalRepos      int                `json:"total_repos"`
	Languages       map[string]int     `json:"languages,omitempty"`
	LanguageShare   map[string]float64 `json:"language_share,omitempty"`
	PrimaryLanguage string             `json:"primary_language,omitempty"`
	CategoryCounts  map[string]int     `json:"category_counts,omitempty"`
}

// Patch is a partial update. Nil fields are absent and carry the previous
// value through; a non-nil empty Repos slice explicitly clears the list.
type Patch struct {
	Login       *string
	JobID       *string
	Score       *float64
	Repos       []api.RepoScore
	GeneratedAt *time.Time
}

// PatchFromResults converts a backend results payload into a full patch.
func PatchFromResults(res *api.ResultsResponse) Patch {
	if res == nil {
		return Patch{}
	}
	repos := res.Repos
	if repos == nil {
		repos = []api.RepoScore{}
	}
	return Patch{
		Login:       String(res.Login),
		JobID:       String(res.JobID),
		Score:       Float64(res.Score),
		Repos:       repos,
		GeneratedAt: Time(res.GeneratedAt),
	}
}

// String returns a pointer to v. Helper for building patches.
func String(v string) *string { return &v }

// Float64 returns a pointer to v. Helper for building patches.
func Float64(v float64) *float64 { return &v }

// Time returns a pointer to v. Helper for building patches.
func Time(v time.Time) *time.Time { return &v }

// Merge reconciles patch into prev and returns a new Scorecard. Fields
// present in patch overwrite; absent fields carry over from prev; derived
// fields are recomputed from the merged repository list regardless of
// which input supplied it. A nil prev is a first scan.
func Merge(prev *Scorecard, patch Patch) *Scorecard {
	next := &Scorecard{}
	if prev != nil {
		next.Login = prev.Login
		next.JobID = prev.JobID
		next.Score = prev.Score
		next.GeneratedAt = prev.GeneratedAt
		if prev.Repos != nil {
			next.Repos = make([]api.RepoScore, len(prev.Repos))
			copy(next.Repos, prev.Repos)
		}
	}

	if patch.Login != nil {
		next.Login = *patch.Login
	}
	if patch.JobID != nil {
		next.JobID = *patch.JobID
	}
	if patch.Score != nil {
		next.Score = *patch.Score
	}
	if patch.GeneratedAt != nil {
		next.GeneratedAt = *patch.GeneratedAt
	}
	if patch.Repos != nil {
		next.Repos = make([]api.RepoScore, len(patch.Repos))
		copy(next.Repos, patch.Repos)
	}

	recomputeDerived(next)
	return next
}

// recomputeDerived rebuilds every derived field from s.Repos. The byte
// totals come from each repository's language byte map; when no repository
// carries byte data the distribution falls back to counting repositories
// by primary language so the share stays meaningful.
func recomputeDerived(s *Scorecard) {
	s.TotalRepos = len(s.Repos)
	s.Languages = nil
	s.LanguageShare = nil
	s.PrimaryLanguage = ""
	s.CategoryCounts = nil

	if len(s.Repos) == 0 {
		return
	}

	languages := make(map[string]int)
	for _, repo := range s.Repos {
		for lang, bytes := range repo.Languages {
			if lang == "" || bytes <= 0 {
				continue
			}
			languages[lang] += bytes
		}
	}
	if len(languages) == 0 {
		for _, repo := range s.Repos {
			if repo.Language != "" {
				languages[repo.Language]++
			}
		}
	}

	if len(languages) > 0 {
		s.Languages = languages

		total := 0
		for _, n := range languages {
			total += n
		}
		share := make(map[string]float64, len(languages))
		for lang, n := range languages {
			share[lang] = float64(n) / float64(total) * 100
		}
		s.LanguageShare = share

		for lang, n := range languages {
			if s.PrimaryLanguage == "" ||
				n > languages[s.PrimaryLanguage] ||
				(n == languages[s.PrimaryLanguage] && lang < s.PrimaryLanguage) {
				s.PrimaryLanguage = lang
			}
		}
	}

	counts := make(map[string]int)
	for _, repo := range s.Repos {
		category := repo.Category
		if category == "" {
			category = Uncategorized
		}
		counts[category]++
	}
	s.CategoryCounts = counts
}
