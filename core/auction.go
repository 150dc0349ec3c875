package core

import "time"

// maxRunnerUps is how many entries after the winner are reported as runner-ups.
const maxRunnerUps = 2

// ComputeResults executes the settlement logic for a closed auction.
//
// Parameters:
//   - item: the auctioned item (its window gates the computation)
//   - bids: every accepted bid on the item
//   - now: the instant of the query
//
// Returns:
//   - Results with Status ResultsPending while the item has not ended; nothing
//     else is filled in so no leader information leaks before close
//   - Results with Status ResultsNoBids and an empty leaderboard when nobody bid
//   - Results with Status ResultsFinal otherwise
//
// Processing flow:
//  1. Gate on the item having ended
//  2. Rank all bids (amount desc, earliest first on ties)
//  3. Extract winner and runner-ups from the ranking
//  4. Count participants and bids, build the amount histogram
//
// The output depends only on (item, bids) once now >= item.EndDate.
func ComputeResults(item AuctionItem, bids []Bid, now time.Time) *Results {
	result := &Results{
		ItemID:       item.ID,
		RunnerUps:    make([]LeaderboardEntry, 0),
		Leaderboard:  make([]LeaderboardEntry, 0),
		Distribution: make([]DistributionBucket, 0),
	}

	// Step 1: Results are never partially computed for a running auction
	if StateOf(item, now) != StateEnded {
		result.Status = ResultsPending
		return result
	}

	if len(bids) == 0 {
		result.Status = ResultsNoBids
		return result
	}

	// Step 2: Rank every bid
	result.Leaderboard = RankBids(bids)

	// Step 3: Extract winner and runner-ups
	winner := result.Leaderboard[0]
	result.Winner = &winner
	for i := 1; i < len(result.Leaderboard) && i <= maxRunnerUps; i++ {
		result.RunnerUps = append(result.RunnerUps, result.Leaderboard[i])
	}

	// Step 4: Statistics
	result.ParticipantCount = CountParticipants(bids)
	result.BidCount = len(bids)
	result.Distribution = AmountDistribution(bids)
	result.Status = ResultsFinal

	return result
}
