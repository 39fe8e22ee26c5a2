// Package gamification tracks engagement streaks, badges, and XP, and
// ranks circle members on a leaderboard. State mutations are applied to
// a caller-supplied snapshot and returned — persistence is the caller's
// responsibility (profile metadata, per spec).
package gamification

import (
	"sort"
	"time"
)

// EventKind is the closed set of events that grant XP and can extend a streak.
type EventKind string

const (
	EventLogin     EventKind = "login"
	EventRepayment EventKind = "repayment"
	EventVouch     EventKind = "vouch"
)

var xpPerEvent = map[EventKind]int{
	EventLogin:     10,
	EventVouch:     50,
	EventRepayment: 100,
}

// Stats is the subset of a member's profile metadata gamification reads
// and mutates on each event.
type Stats struct {
	Streak           int
	LastActive       time.Time
	XP               int
	Badges           []string
	LoginCount       int
	RepaymentCount   int
	OnTimeRepayments int
	VouchCount       int
	DefaultCount     int
	CircleCount      int
}

// Badge is one entry in the fixed badge catalog: a name plus a
// predicate evaluated against post-event stats.
type Badge struct {
	Name      string
	Predicate func(Stats) bool
}

// Catalog is the fixed set of badges evaluated after every event.
var Catalog = []Badge{
	{Name: "first_steps", Predicate: func(s Stats) bool { return s.LoginCount >= 1 }},
	{Name: "week_streak", Predicate: func(s Stats) bool { return s.Streak >= 7 }},
	{Name: "month_streak", Predicate: func(s Stats) bool { return s.Streak >= 30 }},
	{Name: "reliable_payer", Predicate: func(s Stats) bool { return s.OnTimeRepayments >= 5 }},
	{Name: "circle_builder", Predicate: func(s Stats) bool { return s.VouchCount >= 3 }},
	{Name: "network_weaver", Predicate: func(s Stats) bool { return s.CircleCount >= 3 }},
}

// EventResult is what applying an event produced: the updated stats,
// any newly-earned badges, and the XP granted by this event.
type EventResult struct {
	Stats     Stats
	NewBadges []string
	XPGranted int
}

// ApplyEvent updates streak and badges for one event occurring at now,
// and grants the event's XP. Stats is taken by value and the updated
// copy is returned; the caller persists it.
func ApplyEvent(stats Stats, event EventKind, now time.Time) EventResult {
	updateStreak(&stats, now)

	switch event {
	case EventLogin:
		stats.LoginCount++
	case EventRepayment:
		stats.RepaymentCount++
	case EventVouch:
		stats.VouchCount++
	}

	stats.XP += xpPerEvent[event]

	newBadges := awardBadges(&stats)

	return EventResult{Stats: stats, NewBadges: newBadges, XPGranted: xpPerEvent[event]}
}

func updateStreak(stats *Stats, now time.Time) {
	today := now.Truncate(24 * time.Hour)
	lastActiveDay := stats.LastActive.Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	switch {
	case lastActiveDay.Equal(yesterday):
		stats.Streak++
	case lastActiveDay.Equal(today):
		// already counted today, no-op
	default:
		stats.Streak = 1
	}
	stats.LastActive = now
}

func awardBadges(stats *Stats) []string {
	held := make(map[string]bool, len(stats.Badges))
	for _, b := range stats.Badges {
		held[b] = true
	}

	var newBadges []string
	for _, badge := range Catalog {
		if held[badge.Name] {
			continue
		}
		if badge.Predicate(*stats) {
			stats.Badges = append(stats.Badges, badge.Name)
			newBadges = append(newBadges, badge.Name)
		}
	}
	return newBadges
}

// LeaderboardEntry is one member's ranked standing within a circle.
type LeaderboardEntry struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// MemberStanding is the raw input to leaderboard scoring for one member.
type MemberStanding struct {
	Address       string
	RepaymentRate float64 // 0..1
	VouchActivity float64 // count or weighted activity measure
	Defaults      int
}

// Leaderboard scores and ranks circle members in descending order.
func Leaderboard(standings []MemberStanding) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(standings))
	for i, m := range standings {
		entries[i] = LeaderboardEntry{
			Address: m.Address,
			Score:   m.RepaymentRate*100 + m.VouchActivity*10 - float64(m.Defaults)*500,
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
