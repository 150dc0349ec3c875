package core

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// ComputeBidHash computes the receipt hash of a bid.
// Sealed bidders get this hash back on acceptance and can later find it in the
// settlement certificate without the house ever revealing other amounts.
//
// Formula: SHA256(bid_id + "|" + bidder_id + "|" + amount(2dp) + "|" + placed_at_unix_nano)
//
// The amount is formatted to exactly monetaryPrecision places so that 550, 550.0
// and 550.00 hash identically.
func ComputeBidHash(bid Bid) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		bid.ID, bid.BidderID, bid.Amount.StringFixed(monetaryPrecision), bid.PlacedAt.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeResultsDigest computes a digest over the ordered leaderboard of a result.
//
// Formula: SHA256(item_id + "|" + status + "|" + rank:bid_id:amount(2dp) joined by "|")
func ComputeResultsDigest(results *Results) string {
	var b strings.Builder
	b.WriteString(results.ItemID)
	b.WriteString("|")
	b.WriteString(string(results.Status))
	for _, entry := range results.Leaderboard {
		fmt.Fprintf(&b, "|%d:%s:%s", entry.Rank, entry.BidID, entry.Amount.StringFixed(monetaryPrecision))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}
