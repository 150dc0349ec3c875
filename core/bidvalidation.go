package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 2 // 2 decimal places for currency amounts

// HasMonetaryPrecision reports whether amount is expressible in whole cents.
// Amounts are compared and stored exactly, so finer amounts are malformed.
func HasMonetaryPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(monetaryPrecision))
}

// BidMeetsMinimum returns true if the amount meets or exceeds the minimum.
func BidMeetsMinimum(amount, minimum decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(minimum)
}

// BidUnderMaximum returns true if the amount is strictly below the maximum.
// Equality is rejected: the maximum allowed value is an exclusive bound.
func BidUnderMaximum(amount, maximum decimal.Decimal) bool {
	return amount.LessThan(maximum)
}

// HighestBid returns the highest bid, the earliest one on ties. Nil if bids is empty.
func HighestBid(bids []Bid) *Bid {
	var best *Bid
	for i := range bids {
		bid := &bids[i]
		if best == nil || bid.Amount.GreaterThan(best.Amount) ||
			(bid.Amount.Equal(best.Amount) && bid.PlacedAt.Before(best.PlacedAt)) {
			best = bid
		}
	}
	return best
}

// MinimumNextBid is the lowest amount a live item accepts next:
// max(startingPrice, leading bid) + minIncrement.
func MinimumNextBid(item AuctionItem, priorBids []Bid) decimal.Decimal {
	floor := item.StartingPrice
	if leader := HighestBid(priorBids); leader != nil && leader.Amount.GreaterThan(floor) {
		floor = leader.Amount
	}
	return floor.Add(item.MinIncrement)
}

// ValidateBid decides whether a proposed bid is accepted at instant now.
//
// Processing flow:
//  1. Reject unless the item is Active
//  2. Reject non-positive amounts and amounts finer than a cent
//  3. Live: the amount must reach the leading amount plus the minimum increment
//  4. Sealed: the amount must stay strictly under the maximum allowed value
//
// Sealed items never read priorBids, so one bidder's decision cannot depend on
// another bidder's amount.
func ValidateBid(item AuctionItem, priorBids []Bid, proposed Bid, now time.Time) BidDecision {
	switch StateOf(item, now) {
	case StateUpcoming:
		return reject(ReasonNotActive, "auction has not started yet")
	case StateEnded:
		return reject(ReasonNotActive, "auction has ended")
	}

	if !proposed.Amount.IsPositive() {
		return reject(ReasonNonPositiveAmount, "bid amount must be greater than zero")
	}
	if !HasMonetaryPrecision(proposed.Amount) {
		return reject(ReasonInvalidPrecision, "bid amount must have at most 2 decimal places")
	}

	switch item.Type {
	case AuctionTypeLive:
		minimum := MinimumNextBid(item, priorBids)
		if !BidMeetsMinimum(proposed.Amount, minimum) {
			decision := reject(ReasonBelowMinimumIncrement, fmt.Sprintf("bid must be at least %s", FormatAmount(minimum)))
			decision.MinimumAmount = minimum
			return decision
		}
	case AuctionTypeSealed:
		if !BidUnderMaximum(proposed.Amount, item.MaxAllowedValue) {
			return reject(ReasonExceedsMaximum, fmt.Sprintf("bid must be less than %s", FormatAmount(item.MaxAllowedValue)))
		}
	default:
		return reject(ReasonNotActive, fmt.Sprintf("auction type %q does not accept bids", item.Type))
	}

	return BidDecision{Accepted: true, Message: "bid accepted"}
}

// AdvisorRejection builds the decision for a sealed bid vetoed by the bid advisor.
func AdvisorRejection(reason string) BidDecision {
	if strings.TrimSpace(reason) == "" {
		reason = "bid rejected by advisor"
	}
	return reject(ReasonAdvisorRejected, reason)
}

func reject(reason RejectReason, message string) BidDecision {
	return BidDecision{Accepted: false, Reason: reason, Message: message}
}

// FormatAmount renders an amount with thousands separators and two decimals, e.g. "1,050.00".
func FormatAmount(amount decimal.Decimal) string {
	fixed := amount.StringFixed(monetaryPrecision)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}
