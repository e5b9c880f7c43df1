package tracker

import (
	"github.com/raseen2305/broskies-1-sub002/internal/api"
)

// Phase is the canonical local view of a job's lifecycle:
//
//	Started → Scoring → Categorizing → Evaluating → Calculating → {Complete | Failed}
//
// Complete and Failed are terminal. Wire statuses map onto these; an
// unrecognized status leaves the phase where it was.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseScoring
	PhaseCategorizing
	PhaseEvaluating
	PhaseCalculating
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseScoring:
		return "scoring"
	case PhaseCategorizing:
		return "categorizing"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseCalculating:
		return "calculating"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition ever leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// phaseFor maps a wire status onto a phase. Unknown statuses keep the
// previous phase: the backend may grow intermediate states, and skipping
// an observation beats inventing a transition.
func phaseFor(status api.JobStatus, previous Phase) Phase {
	switch status {
	case api.StatusStarted:
		return PhaseStarted
	case api.StatusScoring:
		return PhaseScoring
	case api.StatusCategorizing:
		return PhaseCategorizing
	case api.StatusEvaluating:
		return PhaseEvaluating
	case api.StatusCalculating:
		return PhaseCalculating
	case api.StatusComplete:
		return PhaseComplete
	case api.StatusFailed:
		return PhaseFailed
	default:
		return previous
	}
}

// Per-phase progress bands. Non-terminal phases report a fixed mid-band
// figure except Evaluating, which interpolates across its band by
// evaluated/to_evaluate.
const (
	pctStarted      = 5.0
	pctScoring      = 15.0
	pctCategorizing = 25.0
	pctEvaluatingLo = 30.0
	pctEvaluatingHi = 90.0
	pctCalculating  = 95.0
	pctComplete     = 100.0
)

// basePercentage computes the raw percentage for a phase observation,
// before the per-session monotonic clamp.
func basePercentage(p Phase, prog api.Progress) float64 {
	switch p {
	case PhaseStarted:
		return pctStarted
	case PhaseScoring:
		return pctScoring
	case PhaseCategorizing:
		return pctCategorizing
	case PhaseEvaluating:
		if prog.ToEvaluate <= 0 {
			return pctEvaluatingLo
		}
		pct := pctEvaluatingLo + (pctEvaluatingHi-pctEvaluatingLo)*float64(prog.Evaluated)/float64(prog.ToEvaluate)
		if pct < pctEvaluatingLo {
			return pctEvaluatingLo
		}
		if pct > pctEvaluatingHi {
			return pctEvaluatingHi
		}
		return pct
	case PhaseCalculating:
		return pctCalculating
	case PhaseComplete:
		return pctComplete
	default:
		return 0
	}
}

// displayPercentage applies the monotonic display invariant: within one
// session the shown percentage never goes backwards, and a Failed job
// freezes at its last figure rather than jumping.
func displayPercentage(p Phase, prog api.Progress, last float64) float64 {
	if p == PhaseFailed {
		return last
	}
	pct := basePercentage(p, prog)
	if pct < last {
		return last
	}
	return pct
}
