package governance

import (
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/ports"
)

func TestVotingPower_BaseAllowanceOnly(t *testing.T) {
	if got := VotingPower(0, 0); got != baseTokens {
		t.Errorf("expected base allowance %d, got %d", baseTokens, got)
	}
}

func TestVotingPower_AddsTrustAndCircleBonus(t *testing.T) {
	// base 10 + trust 50/10=5 + 2 circles = 17
	if got := VotingPower(50, 2); got != 17 {
		t.Errorf("expected 17, got %d", got)
	}
}

func TestVotingPower_CircleBonusCapsAtThree(t *testing.T) {
	got := VotingPower(0, 10)
	want := baseTokens + 3
	if got != want {
		t.Errorf("expected circle bonus capped at 3, got %d (want %d)", got, want)
	}
}

func TestVotingPower_NegativeTrustClampedToZero(t *testing.T) {
	if got := VotingPower(-20, 0); got != baseTokens {
		t.Errorf("expected negative trust to clamp to zero bonus, got %d", got)
	}
}

func TestTieBreak_EmptyVotesRejects(t *testing.T) {
	if TieBreak(nil) {
		t.Error("expected an empty vote list to reject by default")
	}
}

func TestTieBreak_ClearMajorityDecidesWithoutTie(t *testing.T) {
	votes := []*ports.LoanVote{
		{VoterAddr: "a", Tokens: 100, Support: true, CastAt: time.Now()},
		{VoterAddr: "b", Tokens: 25, Support: false, CastAt: time.Now()},
	}
	if !TieBreak(votes) {
		t.Error("expected the higher-power side to win outright")
	}
}

func TestTieBreak_ExactTieGoesToEarliestVote(t *testing.T) {
	now := time.Now()
	votes := []*ports.LoanVote{
		{VoterAddr: "b", Tokens: 100, Support: false, CastAt: now.Add(time.Minute)},
		{VoterAddr: "a", Tokens: 100, Support: true, CastAt: now},
	}
	if !TieBreak(votes) {
		t.Error("expected the earliest-cast vote (support=true) to win the tie")
	}
}

func TestTieBreak_ExactTiePrefersEarliestAgainstVote(t *testing.T) {
	now := time.Now()
	votes := []*ports.LoanVote{
		{VoterAddr: "a", Tokens: 100, Support: false, CastAt: now},
		{VoterAddr: "b", Tokens: 100, Support: true, CastAt: now.Add(time.Minute)},
	}
	if TieBreak(votes) {
		t.Error("expected the earliest-cast vote (support=false) to win the tie")
	}
}
