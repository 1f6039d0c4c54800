// Package search ranks catalog medicines against a free-text query.
package search

import (
	"math"
	"strings"
)

const (
	containsScore   = 100.0
	partialCoverage = 0.6
)

// Tier orders match kinds; a higher tier always outranks a lower one,
// whatever the scores.
type Tier int

const (
	TierNone Tier = iota
	TierPartial
	TierSubsequence
	// TierPrefix is never produced on its own: a prefix is also a containment.
	TierPrefix
	TierContains
)

// Match is the outcome of scoring one candidate text
type Match struct {
	Matched bool
	Tier    Tier
	Score   float64
}

// Compare orders matches by tier, then score. It returns a negative number
// when m ranks below o.
func (m Match) Compare(o Match) int {
	switch {
	case m.Tier != o.Tier:
		return int(m.Tier) - int(o.Tier)
	case m.Score < o.Score:
		return -1
	case m.Score > o.Score:
		return 1
	}
	return 0
}

// Score matches query against candidate, case-insensitively.
//
// Containment scores 100. Otherwise the candidate is scanned for query's
// runes in order, each hit adding 10 plus the current run of consecutive
// hits. A full subsequence adds the share of the candidate covered; matching
// at least 60% of the query in order halves the accumulated score.
// Subsequence scores are not bounded by 100, so rank with Compare.
func Score(query, candidate string) Match {
	q := []rune(strings.ToLower(query))
	c := []rune(strings.ToLower(candidate))

	if strings.Contains(string(c), string(q)) {
		return Match{Matched: true, Tier: TierContains, Score: containsScore}
	}

	matched, run := 0, 0
	score := 0.0
	for i := 0; i < len(c) && matched < len(q); i++ {
		if c[i] == q[matched] {
			matched++
			run++
			score += float64(10 + run)
		} else {
			run = 0
		}
	}

	if matched == len(q) {
		score += float64(matched) / float64(len(c)) * 100
		return Match{Matched: true, Tier: TierSubsequence, Score: score}
	}
	if matched >= int(math.Ceil(float64(len(q))*partialCoverage)) {
		return Match{Matched: true, Tier: TierPartial, Score: score * 0.5}
	}
	return Match{}
}
