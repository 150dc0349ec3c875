package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionType selects how bids on an item are compared.
type AuctionType string

const (
	// AuctionTypeLive is open bidding: every bid must beat the visible leader by MinIncrement.
	AuctionTypeLive AuctionType = "live"
	// AuctionTypeSealed is confidential bidding: bids are only compared at close.
	AuctionTypeSealed AuctionType = "sealed"
)

// AuctionState is derived from the clock and the item's bidding window. It is never stored.
type AuctionState string

const (
	StateUpcoming AuctionState = "upcoming"
	StateActive   AuctionState = "active"
	StateEnded    AuctionState = "ended"
)

// AuctionItem is a lot listed by an auctioneer.
type AuctionItem struct {
	ID               string          `json:"id"`
	AuctioneerID     string          `json:"auctioneer_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Type             AuctionType     `json:"type"`
	StartingPrice    decimal.Decimal `json:"starting_price"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	MinIncrement     decimal.Decimal `json:"min_increment"`     // Live only
	MaxAllowedValue  decimal.Decimal `json:"max_allowed_value"` // Sealed only, exclusive upper bound
	ParticipationFee decimal.Decimal `json:"participation_fee"`
	SecurityDeposit  decimal.Decimal `json:"security_deposit"`

	// Denormalized projection of the live leader, written in the same
	// transaction as the accepting bid insert. Empty for sealed items.
	CurrentBid    decimal.Decimal `json:"current_bid"`
	CurrentLeader string          `json:"current_leader,omitempty"`
}

// Bid is a single accepted bid on an item.
type Bid struct {
	ID       string          `json:"id"`
	ItemID   string          `json:"item_id"`
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// RejectReason tags why a bid was not accepted. The zero value means accepted.
type RejectReason string

const (
	ReasonNone                  RejectReason = ""
	ReasonNotActive             RejectReason = "not_active"
	ReasonNonPositiveAmount     RejectReason = "non_positive_amount"
	ReasonInvalidPrecision      RejectReason = "invalid_precision"
	ReasonBelowMinimumIncrement RejectReason = "below_minimum_increment"
	ReasonExceedsMaximum        RejectReason = "exceeds_maximum"
	ReasonAdvisorRejected       RejectReason = "advisor_rejected"
)

// BidDecision is the outcome of validating a proposed bid.
type BidDecision struct {
	Accepted bool
	Reason   RejectReason
	// Message is suitable for direct display to the bidder.
	Message string
	// MinimumAmount is set for BelowMinimumIncrement rejections.
	MinimumAmount decimal.Decimal
}

// LeaderboardEntry is one ranked bid of a closed auction.
type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	BidID    string          `json:"bid_id"`
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// ResultsStatus distinguishes the terminal and non-terminal outcomes of ComputeResults.
type ResultsStatus string

const (
	ResultsPending ResultsStatus = "pending"
	ResultsNoBids  ResultsStatus = "no_bids"
	ResultsFinal   ResultsStatus = "final"
)

// DistributionBucket counts bids whose amount falls in [Floor, Floor+BucketWidth).
type DistributionBucket struct {
	Floor decimal.Decimal `json:"floor"`
	Label string          `json:"label"`
	Count int             `json:"count"`
}

// Results contains the complete outcome of a closed auction.
type Results struct {
	ItemID string        `json:"item_id"`
	Status ResultsStatus `json:"status"`

	// Winner is the rank 1 entry (nil unless Status is ResultsFinal)
	Winner *LeaderboardEntry `json:"winner,omitempty"`

	// RunnerUps holds ranks 2 and 3 when present
	RunnerUps []LeaderboardEntry `json:"runner_ups"`

	Leaderboard      []LeaderboardEntry   `json:"leaderboard"`
	ParticipantCount int                  `json:"participant_count"`
	BidCount         int                  `json:"bid_count"`
	Distribution     []DistributionBucket `json:"distribution"`
}

// ItemView is the read-only projection handed to presentation.
type ItemView struct {
	ItemID         string           `json:"item_id"`
	Type           AuctionType      `json:"type"`
	State          AuctionState     `json:"state"`
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	BidsHidden     bool             `json:"bids_hidden"`
	CurrentBid     *decimal.Decimal `json:"current_bid,omitempty"`
	CurrentLeader  string           `json:"current_leader,omitempty"`
	MinimumNextBid *decimal.Decimal `json:"minimum_next_bid,omitempty"`
	BidCount       int              `json:"bid_count"`
}
