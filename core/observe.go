package core

import "time"

// Observe builds the presentation view of an item. Sealed items expose
// neither amounts nor the leader, whatever their state.
func Observe(item AuctionItem, bids []Bid, now time.Time) ItemView {
	view := ItemView{
		ItemID:    item.ID,
		Type:      item.Type,
		State:     StateOf(item, now),
		StartDate: item.StartDate,
		EndDate:   item.EndDate,
	}

	if item.Type == AuctionTypeSealed {
		view.BidsHidden = true
		return view
	}

	view.BidCount = len(bids)
	if leader := HighestBid(bids); leader != nil {
		amount := leader.Amount
		view.CurrentBid = &amount
		view.CurrentLeader = leader.BidderID
	}
	if view.State != StateEnded {
		next := MinimumNextBid(item, bids)
		view.MinimumNextBid = &next
	}
	return view
}
