package core

import "time"

// Clock provides the current time.
// This interface enables dependency injection for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Classify places now on the half-open bidding window [start, end).
func Classify(now, start, end time.Time) AuctionState {
	if now.Before(start) {
		return StateUpcoming
	}
	if now.Before(end) {
		return StateActive
	}
	return StateEnded
}

// StateOf classifies an item at the given instant.
func StateOf(item AuctionItem, now time.Time) AuctionState {
	return Classify(now, item.StartDate, item.EndDate)
}

// CanModify reports whether an item may still be edited or deleted.
// Items become immutable as soon as bidding can begin.
func CanModify(item AuctionItem, now time.Time) bool {
	return StateOf(item, now) == StateUpcoming
}
