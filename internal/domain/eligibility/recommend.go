package eligibility

import (
	"math"
	"sort"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// Priority labels a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Recommendation is one scholarship a student qualifies for.
type Recommendation struct {
	Scholarship *scholarship.Scholarship `json:"scholarship"`
	Verdict     Verdict                  `json:"verdict"`
	Score       float64                  `json:"eligibility_score"`
	Priority    Priority                 `json:"priority"`
}

// Score ranks how tightly a GWA fits a band: 100 at the best end of the
// band, 50 at the worst. Types without a band score a flat 75.
func Score(t scholarship.Type, gwa float64) float64 {
	band, ok := BandFor(t)
	if !ok {
		return 75
	}
	width := band.Max - band.Min
	if width <= 0 {
		return 100
	}
	fit := (band.Max - gwa) / width
	fit = math.Max(0, math.Min(1, fit))
	return math.Round((50+50*fit)*100) / 100
}

// PriorityFor returns high when the student is eligible and the GWA lies in
// the better half of the band.
func PriorityFor(t scholarship.Type, gwa float64, eligible bool) Priority {
	band, ok := BandFor(t)
	if !eligible || !ok {
		return PriorityMedium
	}
	mid := (band.Min + band.Max) / 2
	if millis(gwa) <= millis(mid) {
		return PriorityHigh
	}
	return PriorityMedium
}

// Recommend returns the open scholarships the student is eligible for,
// best fit first. Ties are broken by earlier deadline, then name.
func (ev *Evaluator) Recommend(s student.Snapshot, candidates []*scholarship.Scholarship) []Recommendation {
	now := ev.clock.Now()
	out := make([]Recommendation, 0, len(candidates))

	for _, sch := range candidates {
		if sch == nil || !sch.IsOpen(now) {
			continue
		}
		v := ev.Evaluate(s, *sch)
		if !v.Eligible {
			continue
		}
		out = append(out, Recommendation{
			Scholarship: sch,
			Verdict:     v,
			Score:       Score(sch.Type, s.GWA),
			Priority:    PriorityFor(sch.Type, s.GWA, true),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Scholarship.Deadline.Equal(b.Scholarship.Deadline) {
			return a.Scholarship.Deadline.Before(b.Scholarship.Deadline)
		}
		return a.Scholarship.Name < b.Scholarship.Name
	})
	return out
}
