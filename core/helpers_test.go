package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func liveItem(startingPrice, minIncrement string) AuctionItem {
	return AuctionItem{
		ID:            "item_live",
		AuctioneerID:  "auctioneer_1",
		Name:          "Oak dining table",
		Type:          AuctionTypeLive,
		StartingPrice: dec(startingPrice),
		MinIncrement:  dec(minIncrement),
		StartDate:     testStart,
		EndDate:       testEnd,
	}
}

func sealedItem(startingPrice, maxAllowed string) AuctionItem {
	return AuctionItem{
		ID:              "item_sealed",
		AuctioneerID:    "auctioneer_1",
		Name:            "Land parcel 14",
		Type:            AuctionTypeSealed,
		StartingPrice:   dec(startingPrice),
		MaxAllowedValue: dec(maxAllowed),
		StartDate:       testStart,
		EndDate:         testEnd,
	}
}

func bidAt(id, bidder, amount string, offset time.Duration) Bid {
	return Bid{
		ID:       id,
		ItemID:   "item",
		BidderID: bidder,
		Amount:   dec(amount),
		PlacedAt: testStart.Add(offset),
	}
}
