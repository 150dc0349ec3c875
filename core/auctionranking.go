package core

import "sort"

// bidOutranks reports whether a ranks strictly ahead of b: higher amount first,
// then earliest submission, then bid ID so the order is total.
func bidOutranks(a, b *Bid) bool {
	if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
		return cmp > 0
	}
	if !a.PlacedAt.Equal(b.PlacedAt) {
		return a.PlacedAt.Before(b.PlacedAt)
	}
	return a.ID < b.ID
}

// RankBids orders every bid and assigns 1-based ranks.
// The input slice is not modified and the result does not depend on its order.
func RankBids(bids []Bid) []LeaderboardEntry {
	if len(bids) == 0 {
		return make([]LeaderboardEntry, 0)
	}

	sorted := make([]Bid, len(bids))
	copy(sorted, bids)

	sort.SliceStable(sorted, func(i, j int) bool {
		return bidOutranks(&sorted[i], &sorted[j])
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, bid := range sorted {
		entries[i] = LeaderboardEntry{
			Rank:     i + 1,
			BidID:    bid.ID,
			BidderID: bid.BidderID,
			Amount:   bid.Amount,
			PlacedAt: bid.PlacedAt,
		}
	}
	return entries
}

// CountParticipants returns the number of distinct bidders.
func CountParticipants(bids []Bid) int {
	seen := make(map[string]struct{}, len(bids))
	for _, bid := range bids {
		seen[bid.BidderID] = struct{}{}
	}
	return len(seen)
}
