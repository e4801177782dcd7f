// Package match ranks coach candidates against an event's requirements.
// Scoring is deterministic and side-effect free; it feeds outreach only
// through the recipient-id list handed to the campaign manager.
package match

import (
	"sort"

	"github.com/samber/lo"

	"coachreach/internal/models"
)

// Scoring weights. Specialty overlap dominates, availability is a strong
// binary signal, rating history and location nudge the ordering.
const (
	weightSpecialty    = 3.0
	weightAvailability = 2.0
	weightLocation     = 1.0
)

// Score computes the match score for one (candidate, event) pair:
//
//	3 x |specialties ∩ requiredSkills| + 2 x availabilityOverlap
//	  + averageRating + 1 x locationMatch
//
// Candidates with no rating history contribute 0 from the rating term.
func Score(candidate models.Candidate, event models.EventProfile) float64 {
	shared := lo.Intersect(candidate.Specialties, event.RequiredSkills)

	score := weightSpecialty * float64(len(shared))

	if hasAvailabilityOverlap(candidate, event) {
		score += weightAvailability
	}

	score += averageRating(candidate.Ratings)

	if candidate.Location == event.Location {
		score += weightLocation
	}

	return score
}

// hasAvailabilityOverlap is true iff any availability window intersects
// [event.Start, event.End], closed-interval on both sides.
func hasAvailabilityOverlap(candidate models.Candidate, event models.EventProfile) bool {
	for _, window := range candidate.Availability {
		if !window.Start.After(event.End) && !window.End.Before(event.Start) {
			return true
		}
	}
	return false
}

func averageRating(ratings []float64) float64 {
	if len(ratings) == 0 {
		return 0
	}
	return lo.Sum(ratings) / float64(len(ratings))
}

// Rank scores every candidate and returns them ordered by descending score.
// The sort is stable and ties break by candidate id ascending so repeated
// runs over the same inputs produce identical orderings.
func Rank(candidates []models.Candidate, event models.EventProfile) []models.RankedCandidate {
	ranked := make([]models.RankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		ranked = append(ranked, models.RankedCandidate{
			Candidate: candidate,
			Score:     Score(candidate, event),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.ID < ranked[j].Candidate.ID
	})

	return ranked
}
