// internal/models/match.go
package models

import "time"

// Window is a candidate availability interval. Overlap checks treat both
// endpoints as inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Candidate is a coach considered for an event.
type Candidate struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Specialties  []string  `json:"specialties"`
	Availability []Window  `json:"availability"`
	Ratings      []float64 `json:"ratings"`
	Location     string    `json:"location"`
}

// EventProfile carries the event attributes the match scorer reads.
type EventProfile struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	RequiredSkills []string  `json:"requiredSkills"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Location       string    `json:"location"`
}

// RankedCandidate is a candidate with its computed match score.
type RankedCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
}
