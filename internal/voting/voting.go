// Package voting implements quadratic tallying for loan votes: vote
// power grows with the square root of tokens committed, not linearly,
// so a single large holder can't dominate the outcome.
package voting

import (
	"math"

	"github.com/mbd888/saathi/internal/ports"
)

// DefaultQuorumPercentage is the minimum approval percentage required
// to pass, given quorum is met.
const DefaultQuorumPercentage = 50

// MinQuorumVoters is the minimum number of distinct voters required.
const MinQuorumVoters = 3

// Tally is the result of a quadratic vote count.
type Tally struct {
	ForPower        float64 `json:"for_power"`
	AgainstPower    float64 `json:"against_power"`
	DistinctVoters  int     `json:"distinct_voters"`
	ApprovalPercent float64 `json:"approval_percent"`
	Quorum          bool    `json:"quorum"`
	Approved        bool    `json:"approved"`
}

// VotePower returns a single vote's quadratic power.
func VotePower(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return math.Sqrt(float64(tokens))
}

// Count tallies votes using quadratic vote power and the default
// quorum/approval thresholds.
func Count(votes []*ports.LoanVote) Tally {
	return CountWithThreshold(votes, DefaultQuorumPercentage)
}

// CountWithThreshold tallies votes with a caller-supplied approval
// threshold (percentage, e.g. 50 for a simple majority of power).
func CountWithThreshold(votes []*ports.LoanVote, quorumPercentage float64) Tally {
	var forPower, againstPower float64
	voters := make(map[string]bool, len(votes))

	for _, v := range votes {
		power := VotePower(v.Tokens)
		if v.Support {
			forPower += power
		} else {
			againstPower += power
		}
		voters[v.VoterAddr] = true
	}

	total := forPower + againstPower
	var approvalPercent float64
	if total > 0 {
		approvalPercent = (forPower / total) * 100
	}

	quorum := len(voters) >= MinQuorumVoters
	approved := quorum && approvalPercent >= quorumPercentage

	return Tally{
		ForPower:        forPower,
		AgainstPower:    againstPower,
		DistinctVoters:  len(voters),
		ApprovalPercent: approvalPercent,
		Quorum:          quorum,
		Approved:        approved,
	}
}

// SimulationResult adds a hypothetical vote to the existing tally and
// reports how much it would move the approval percentage.
type SimulationResult struct {
	Current       Tally   `json:"current"`
	WithYourVote  Tally   `json:"with_your_vote"`
	YourVotePower float64 `json:"your_vote_power"`
	Impact        float64 `json:"impact"`
}

// Simulate recomputes the tally with a hypothetical vote appended,
// without mutating the stored vote list.
func Simulate(votes []*ports.LoanVote, voterAddr string, tokens int, support bool) SimulationResult {
	current := Count(votes)

	hypothetical := make([]*ports.LoanVote, len(votes), len(votes)+1)
	copy(hypothetical, votes)
	hypothetical = append(hypothetical, &ports.LoanVote{VoterAddr: voterAddr, Tokens: tokens, Support: support})

	withVote := Count(hypothetical)

	return SimulationResult{
		Current:       current,
		WithYourVote:  withVote,
		YourVotePower: VotePower(tokens),
		Impact:        withVote.ApprovalPercent - current.ApprovalPercent,
	}
}
