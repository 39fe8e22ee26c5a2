package gamification

import (
	"testing"
	"time"
)

func TestApplyEvent_FirstLoginGrantsXPAndStartsStreak(t *testing.T) {
	now := time.Now()
	result := ApplyEvent(Stats{}, EventLogin, now)

	if result.XPGranted != 10 {
		t.Errorf("expected 10 XP for a login, got %d", result.XPGranted)
	}
	if result.Stats.Streak != 1 {
		t.Errorf("expected a fresh streak of 1, got %d", result.Stats.Streak)
	}
	if result.Stats.LoginCount != 1 {
		t.Errorf("expected login count 1, got %d", result.Stats.LoginCount)
	}
}

func TestApplyEvent_ConsecutiveDayExtendsStreak(t *testing.T) {
	yesterday := time.Now().Add(-24 * time.Hour)
	stats := Stats{Streak: 3, LastActive: yesterday}

	result := ApplyEvent(stats, EventLogin, time.Now())
	if result.Stats.Streak != 4 {
		t.Errorf("expected streak to extend to 4, got %d", result.Stats.Streak)
	}
}

func TestApplyEvent_SameDayDoesNotDoubleCountStreak(t *testing.T) {
	now := time.Now()
	stats := Stats{Streak: 3, LastActive: now}

	result := ApplyEvent(stats, EventLogin, now)
	if result.Stats.Streak != 3 {
		t.Errorf("expected streak to stay at 3 for a same-day event, got %d", result.Stats.Streak)
	}
}

func TestApplyEvent_GapResetsStreakToOne(t *testing.T) {
	longAgo := time.Now().Add(-72 * time.Hour)
	stats := Stats{Streak: 10, LastActive: longAgo}

	result := ApplyEvent(stats, EventLogin, time.Now())
	if result.Stats.Streak != 1 {
		t.Errorf("expected a broken streak to reset to 1, got %d", result.Stats.Streak)
	}
}

func TestApplyEvent_RepaymentGrantsMoreXPThanLogin(t *testing.T) {
	result := ApplyEvent(Stats{}, EventRepayment, time.Now())
	if result.XPGranted != 100 {
		t.Errorf("expected 100 XP for a repayment, got %d", result.XPGranted)
	}
	if result.Stats.RepaymentCount != 1 {
		t.Errorf("expected repayment count 1, got %d", result.Stats.RepaymentCount)
	}
}

func TestApplyEvent_VouchIncrementsVouchCount(t *testing.T) {
	result := ApplyEvent(Stats{}, EventVouch, time.Now())
	if result.Stats.VouchCount != 1 {
		t.Errorf("expected vouch count 1, got %d", result.Stats.VouchCount)
	}
}

func TestApplyEvent_FirstLoginAwardsFirstStepsBadge(t *testing.T) {
	result := ApplyEvent(Stats{}, EventLogin, time.Now())
	if len(result.NewBadges) != 1 || result.NewBadges[0] != "first_steps" {
		t.Errorf("expected the first_steps badge to be newly awarded, got %v", result.NewBadges)
	}
}

func TestApplyEvent_AlreadyHeldBadgeNotReawarded(t *testing.T) {
	stats := Stats{Badges: []string{"first_steps"}, LoginCount: 1}
	result := ApplyEvent(stats, EventLogin, time.Now())
	for _, b := range result.NewBadges {
		if b == "first_steps" {
			t.Error("expected an already-held badge to not reappear in NewBadges")
		}
	}
}

func TestApplyEvent_WeekStreakBadgeAtSevenDays(t *testing.T) {
	stats := Stats{Streak: 6, LastActive: time.Now().Add(-24 * time.Hour)}
	result := ApplyEvent(stats, EventLogin, time.Now())

	found := false
	for _, b := range result.NewBadges {
		if b == "week_streak" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected week_streak badge at a 7-day streak, got %v", result.NewBadges)
	}
}

func TestApplyEvent_ReliablePayerBadgeAtFiveOnTimeRepayments(t *testing.T) {
	stats := Stats{OnTimeRepayments: 5}
	result := ApplyEvent(stats, EventRepayment, time.Now())

	found := false
	for _, b := range result.NewBadges {
		if b == "reliable_payer" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reliable_payer badge, got %v", result.NewBadges)
	}
}

func TestLeaderboard_RanksDescendingByScore(t *testing.T) {
	entries := Leaderboard([]MemberStanding{
		{Address: "low", RepaymentRate: 0.2, VouchActivity: 1},
		{Address: "high", RepaymentRate: 0.9, VouchActivity: 5},
		{Address: "defaulted", RepaymentRate: 0.9, VouchActivity: 5, Defaults: 1},
	})

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Address != "high" {
		t.Errorf("expected 'high' to rank first, got %s", entries[0].Address)
	}
	if entries[0].Rank != 1 {
		t.Errorf("expected rank 1 for the top entry, got %d", entries[0].Rank)
	}
	if entries[len(entries)-1].Address != "defaulted" {
		t.Errorf("expected a defaulted member to rank last, got %s", entries[len(entries)-1].Address)
	}
}
