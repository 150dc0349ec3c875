package notify

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
)

// WinnerNotice is handed to a Notifier once per participant of a closed auction.
// Delivery channels and message templates live outside the auction house.
type WinnerNotice struct {
	ItemID         string          `json:"item_id"`
	ItemName       string          `json:"item_name"`
	WinnerName     string          `json:"winner_name"`
	WinningBid     decimal.Decimal `json:"winning_bid"`
	CurrentBid     decimal.Decimal `json:"current_bid"` // the recipient's best bid
	AuctionEndDate time.Time       `json:"auction_end_date"`
	UserName       string          `json:"user_name"`
	IsWinner       bool            `json:"is_winner"`

	// Certificate is the signed settlement certificate, compressed for links
	Certificate auctionapi.CertificateCOSEGzip `json:"certificate,omitempty"`
}

// Placeholders returns the template substitutions for the notice
func (n WinnerNotice) Placeholders() map[string]string {
	return map[string]string{
		"itemName":       n.ItemName,
		"winnerName":     n.WinnerName,
		"winningBid":     core.FormatAmount(n.WinningBid),
		"currentBid":     core.FormatAmount(n.CurrentBid),
		"auctionEndDate": n.AuctionEndDate.UTC().Format("2006-01-02 15:04 MST"),
		"userName":       n.UserName,
		"certificate":    n.Certificate.String(),
	}
}

// Notifier delivers winner notices
type Notifier interface {
	Notify(ctx context.Context, notice WinnerNotice) error
	Close() error
}

// NewWinnerNotices builds one notice per distinct participant, ordered by
// each participant's best rank. Results without a winner produce no notices.
func NewWinnerNotices(item core.AuctionItem, results *core.Results) []WinnerNotice {
	if results == nil || results.Status != core.ResultsFinal || results.Winner == nil {
		return nil
	}

	notices := make([]WinnerNotice, 0, results.ParticipantCount)
	seen := make(map[string]bool, results.ParticipantCount)
	for _, entry := range results.Leaderboard {
		if seen[entry.BidderID] {
			continue
		}
		seen[entry.BidderID] = true

		notices = append(notices, WinnerNotice{
			ItemID:         item.ID,
			ItemName:       item.Name,
			WinnerName:     results.Winner.BidderID,
			WinningBid:     results.Winner.Amount,
			CurrentBid:     entry.Amount,
			AuctionEndDate: item.EndDate,
			UserName:       entry.BidderID,
			IsWinner:       entry.BidderID == results.Winner.BidderID,
		})
	}
	return notices
}

// LogNotifier writes notices to the standard logger
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, notice WinnerNotice) error {
	log.Printf("INFO: Winner notice for item %s to %s (winner: %s, winning bid: %s, winner=%v)",
		notice.ItemID, notice.UserName, notice.WinnerName, core.FormatAmount(notice.WinningBid), notice.IsWinner)
	return nil
}

func (LogNotifier) Close() error {
	return nil
}
