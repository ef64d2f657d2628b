// Package rating scores and orders candidate FileSourceHasZip rows so
// download workers attempt affinity-matched sources first.
package rating

import "sort"

// AffinityWeight is added when a hosting source's centre equals the
// package's producing centre.
const AffinityWeight = 30

// Candidate is the minimal shape rating needs out of a
// model.FileSourceHasZip plus the centres it bridges.
type Candidate struct {
	SourceID        int64
	SourceCentreID  int64
	PackageCentreID int64 // may be zero when the tokenizer never resolved a centre
}

// Strategy computes a rating for a candidate. The default strategy
// implements the affinity rule of §4.3; it is pluggable so a
// historical-failure penalty can be layered on later without touching
// callers.
type Strategy interface {
	Rate(c Candidate) int
}

// AffinityStrategy is the default Strategy: affinity-matched sources are
// rated above non-matched ones.
type AffinityStrategy struct{}

func (AffinityStrategy) Rate(c Candidate) int {
	if c.PackageCentreID != 0 && c.SourceCentreID == c.PackageCentreID {
		return AffinityWeight
	}
	return 0
}

// Rated pairs a Candidate with its computed rating.
type Rated struct {
	Candidate Candidate
	Rating    int
}

// Sort rates every candidate with strategy and returns them ordered as a
// max-first attempt sequence: highest rating first, ties broken by
// ascending source id for determinism.
func Sort(candidates []Candidate, strategy Strategy) []Rated {
	if strategy == nil {
		strategy = AffinityStrategy{}
	}
	out := make([]Rated, len(candidates))
	for i, c := range candidates {
		out[i] = Rated{Candidate: c, Rating: strategy.Rate(c)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Candidate.SourceID < out[j].Candidate.SourceID
	})
	return out
}
