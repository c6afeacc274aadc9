package correlator

import (
	"sort"
	"strings"
	"time"

	"netrunner/internal/actions"
)

// Candidate is a run that could have been created by a dispatch.
type Candidate struct {
	Run actions.Run
	// Offset is the run's creation time relative to the dispatch.
	Offset time.Duration
}

// Candidates filters runs to those that could belong to req and orders them
// by preference: earliest creation first, then lowest run id.
func Candidates(runs []actions.Run, req Request, skew time.Duration) []Candidate {
	ref := actions.NormalizeRef(req.Ref)
	since := req.DispatchedAt.Add(-skew)

	var out []Candidate
	for _, r := range runs {
		if r.CreatedAt.Before(since) {
			continue
		}
		if actions.NormalizeRef(r.Ref) != ref {
			continue
		}
		if req.Token != "" && !strings.Contains(r.DisplayTitle, req.Token) {
			continue
		}
		out = append(out, Candidate{Run: r, Offset: r.CreatedAt.Sub(req.DispatchedAt)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Run.CreatedAt.Equal(b.Run.CreatedAt) {
			return a.Run.CreatedAt.Before(b.Run.CreatedAt)
		}
		return a.Run.ID < b.Run.ID
	})
	return out
}
