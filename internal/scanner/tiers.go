package scanner

import "time"

// Tier is one days-remaining bucket. Weekly tiers fire at most once per
// 7 days; daily tiers at most once per calendar day.
type Tier struct {
	Key     string
	MinDays int
	MaxDays int
	Weekly  bool
}

// Subscription expirations: urgent short-range tiers only.
var SubscriptionTiers = []Tier{
	{Key: "today", MinDays: 0, MaxDays: 0},
	{Key: "tomorrow", MinDays: 1, MaxDays: 1},
	{Key: "soon", MinDays: 2, MaxDays: 3},
}

// External-app credentials: escalating informational tiers out to 30 days.
// The two long-range tiers are weekly so a constant set of far-out
// expirations does not nag every day.
var AppTiers = []Tier{
	{Key: "today", MinDays: 0, MaxDays: 0},
	{Key: "tomorrow", MinDays: 1, MaxDays: 1},
	{Key: "d3", MinDays: 2, MaxDays: 3},
	{Key: "d7", MinDays: 4, MaxDays: 7},
	{Key: "d15", MinDays: 8, MaxDays: 15, Weekly: true},
	{Key: "d30", MinDays: 16, MaxDays: 30, Weekly: true},
}

// DaysUntil returns the calendar-day difference from now to expiration,
// ignoring the time of day on both sides.
func DaysUntil(now, expiration time.Time) int {
	return int(truncateDay(expiration).Sub(truncateDay(now)).Hours() / 24)
}

// horizon returns the furthest MaxDays across tiers.
func horizon(tiers []Tier) int {
	max := 0
	for _, t := range tiers {
		if t.MaxDays > max {
			max = t.MaxDays
		}
	}
	return max
}

// classify buckets items by tier key. Items outside every tier are dropped.
func classify(tiers []Tier, now time.Time, items []Item) map[string][]Item {
	buckets := make(map[string][]Item)
	for _, item := range items {
		days := DaysUntil(now, item.Expiration)
		for _, tier := range tiers {
			if days >= tier.MinDays && days <= tier.MaxDays {
				buckets[tier.Key] = append(buckets[tier.Key], item)
				break
			}
		}
	}
	return buckets
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
