package store

import (
	"context"
	"errors"
	"time"

	"github.com/cloudx-io/auctionhouse/core"
)

var (
	// ErrItemNotFound is returned when no item exists with the requested ID.
	ErrItemNotFound = errors.New("auction item not found")

	// ErrItemHasBids is returned when deleting an item that already received bids.
	ErrItemHasBids = errors.New("auction item has bids")

	// ErrItemExists is returned when creating an item whose ID is already taken.
	ErrItemExists = errors.New("auction item already exists")

	// ErrItemStarted is returned when editing or deleting an item whose
	// bidding window has opened.
	ErrItemStarted = errors.New("auction item has started")
)

// DecideFunc inspects an item and its committed bids inside the placing
// transaction and returns the bid to insert, or nil to insert nothing.
//
// For non-exclusive placements bids is always nil: the caller must not depend
// on other bidders' submissions.
type DecideFunc func(item core.AuctionItem, bids []core.Bid) (*core.Bid, error)

// Store persists auction items and bids.
type Store interface {
	GetItem(ctx context.Context, itemID string) (*core.AuctionItem, error)
	ListBids(ctx context.Context, itemID string) ([]core.Bid, error)

	CreateItem(ctx context.Context, item core.AuctionItem) error
	// UpdateItem and DeleteItem only apply while the stored item starts
	// after now. The check and the write are atomic.
	UpdateItem(ctx context.Context, item core.AuctionItem, now time.Time) error
	DeleteItem(ctx context.Context, itemID string, now time.Time) error

	// PlaceBid runs decide and inserts the bid it returns in one transaction.
	// When exclusive is true the item is locked for the duration, decide
	// receives every committed bid, and the item's CurrentBid/CurrentLeader
	// projection is updated together with the insert.
	PlaceBid(ctx context.Context, itemID string, exclusive bool, decide DecideFunc) (*core.Bid, error)

	// ClaimAnnouncement marks an item's results as announced. It returns true
	// exactly once per item; later calls return false.
	ClaimAnnouncement(ctx context.Context, itemID string) (bool, error)

	Close() error
}
