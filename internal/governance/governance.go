// Package governance provides the voting-power and tie-break primitives
// that sit underneath quadratic vote tallying: how many tokens a member
// is entitled to commit, and how a dead-even vote resolves.
package governance

import (
	"math"
	"sort"

	"github.com/mbd888/saathi/internal/ports"
)

// baseTokens is the token allowance every circle member starts with,
// before trust and tenure adjustments.
const baseTokens = 10

// VotingPower returns the number of tokens address may commit to a
// single loan vote: a base allowance, plus one token per 10 trust-score
// points, plus one token per circle membership (capped at 3 circles'
// worth) to reward broad network participation without letting a single
// high-trust whale dominate every vote.
func VotingPower(trustScore int, circleCount int) int {
	if trustScore < 0 {
		trustScore = 0
	}
	if circleCount > 3 {
		circleCount = 3
	}
	return baseTokens + trustScore/10 + circleCount
}

// TieBreak resolves a vote whose for/against quadratic power is exactly
// equal — neither side carries a majority, so quorum and approval-percent
// rules alone can't decide it. The earliest-cast vote wins the tie, on
// the theory that the circle's first read of the request is its most
// considered one. An empty vote list rejects by default.
func TieBreak(votes []*ports.LoanVote) (approved bool) {
	if len(votes) == 0 {
		return false
	}

	var forPower, againstPower float64
	for _, v := range votes {
		power := math.Sqrt(math.Max(float64(v.Tokens), 0))
		if v.Support {
			forPower += power
		} else {
			againstPower += power
		}
	}
	if forPower != againstPower {
		return forPower > againstPower
	}

	sorted := make([]*ports.LoanVote, len(votes))
	copy(sorted, votes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CastAt.Before(sorted[j].CastAt) })
	return sorted[0].Support
}
