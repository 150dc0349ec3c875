package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/advisor"
	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
	"github.com/cloudx-io/auctionhouse/feed"
	"github.com/cloudx-io/auctionhouse/notify"
	"github.com/cloudx-io/auctionhouse/store"
)

var (
	// ErrInvalidRequest is returned for malformed bid or item requests
	ErrInvalidRequest = errors.New("invalid request")

	// ErrItemLocked is returned when editing or deleting an item whose bidding window has opened
	ErrItemLocked = errors.New("auction item can no longer be modified")

	// ErrNotOwner is returned when an auctioneer modifies another auctioneer's item
	ErrNotOwner = errors.New("auction item belongs to another auctioneer")
)

// advisorUnavailableMessage is shown to bidders when the advisor cannot be reached
const advisorUnavailableMessage = "bid could not be reviewed at this time, please try again"

// AuctionHouse orchestrates bidding, item management and settlement on top of
// the pure rules in core
type AuctionHouse struct {
	store    store.Store
	clock    core.Clock
	keys     *KeyManager
	advisor  advisor.Advisor
	feed     feed.Publisher
	notifier notify.Notifier
	attester HouseAttester
	newID    func() string
}

// Option customizes an AuctionHouse
type Option func(*AuctionHouse)

// WithClock overrides the wall clock
func WithClock(clock core.Clock) Option {
	return func(h *AuctionHouse) { h.clock = clock }
}

// WithAdvisor sets the sealed-bid advisor
func WithAdvisor(a advisor.Advisor) Option {
	return func(h *AuctionHouse) { h.advisor = a }
}

// WithFeed sets the live bid publisher
func WithFeed(p feed.Publisher) Option {
	return func(h *AuctionHouse) { h.feed = p }
}

// WithNotifier sets the winner notifier
func WithNotifier(n notify.Notifier) Option {
	return func(h *AuctionHouse) { h.notifier = n }
}

// WithAttester enables NSM key attestation
func WithAttester(a HouseAttester) Option {
	return func(h *AuctionHouse) { h.attester = a }
}

// WithIDGenerator overrides UUID generation for bid and item IDs
func WithIDGenerator(newID func() string) Option {
	return func(h *AuctionHouse) { h.newID = newID }
}

// NewAuctionHouse creates an AuctionHouse. Collaborators default to the
// system clock, an approving advisor, no feed and a log-only notifier.
func NewAuctionHouse(s store.Store, keys *KeyManager, opts ...Option) *AuctionHouse {
	h := &AuctionHouse{
		store:    s,
		clock:    core.SystemClock{},
		keys:     keys,
		advisor:  advisor.Approve{},
		feed:     feed.NopPublisher{},
		notifier: notify.LogNotifier{},
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// now returns the clock reading at the precision the store persists
func (h *AuctionHouse) now() time.Time {
	return h.clock.Now().UTC().Truncate(time.Microsecond)
}

func decisionResponse(decision core.BidDecision) *auctionapi.PlaceBidResponse {
	resp := &auctionapi.PlaceBidResponse{
		Accepted: decision.Accepted,
		Reason:   decision.Reason,
		Message:  decision.Message,
	}
	if decision.Reason == core.ReasonBelowMinimumIncrement {
		minimum := decision.MinimumAmount
		resp.MinimumAmount = &minimum
	}
	return resp
}

// PlaceBid validates and records a bid.
//
// Processing flow:
//  1. Check the request shape and load the item
//  2. Live items: validate against every committed bid while the item is locked
//  3. Sealed items: open the envelope, validate, consult the advisor, insert
//
// Rejections are returned as responses; errors are reserved for malformed
// requests and infrastructure failures.
func (h *AuctionHouse) PlaceBid(ctx context.Context, itemID string, req auctionapi.PlaceBidRequest) (*auctionapi.PlaceBidResponse, error) {
	// Step 1: Request shape
	if strings.TrimSpace(req.BidderID) == "" {
		return nil, fmt.Errorf("%w: bidder_id is required", ErrInvalidRequest)
	}
	if (req.Amount == nil) == (req.Sealed == nil) {
		return nil, fmt.Errorf("%w: exactly one of amount or sealed is required", ErrInvalidRequest)
	}

	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	switch item.Type {
	case core.AuctionTypeLive:
		if req.Amount == nil {
			return nil, fmt.Errorf("%w: live items take plain amounts", ErrInvalidRequest)
		}
		return h.placeLiveBid(ctx, itemID, req.BidderID, *req.Amount)
	case core.AuctionTypeSealed:
		amount, err := h.sealedAmount(req)
		if err != nil {
			return nil, err
		}
		return h.placeSealedBid(ctx, *item, req.BidderID, amount)
	default:
		return nil, fmt.Errorf("%w: item %s has unknown type %q", ErrInvalidRequest, itemID, item.Type)
	}
}

func (h *AuctionHouse) sealedAmount(req auctionapi.PlaceBidRequest) (decimal.Decimal, error) {
	if req.Amount != nil {
		return *req.Amount, nil
	}
	amount, err := h.keys.OpenEnvelope(*req.Sealed)
	if err != nil {
		log.Printf("WARNING: Failed to open sealed bid envelope: %v", err)
		return decimal.Zero, fmt.Errorf("%w: sealed bid could not be opened", ErrInvalidRequest)
	}
	return amount, nil
}

// Step 2: The decision and the projection update share one store transaction,
// so two concurrent bidders can never both beat the same leader.
func (h *AuctionHouse) placeLiveBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (*auctionapi.PlaceBidResponse, error) {
	var (
		decision core.BidDecision
		view     core.ItemView
	)

	placed, err := h.store.PlaceBid(ctx, itemID, true, func(item core.AuctionItem, bids []core.Bid) (*core.Bid, error) {
		now := h.now()
		proposed := core.Bid{
			ID:       h.newID(),
			ItemID:   itemID,
			BidderID: bidderID,
			Amount:   amount,
			PlacedAt: now,
		}

		decision = core.ValidateBid(item, bids, proposed, now)
		if !decision.Accepted {
			return nil, nil
		}

		view = core.Observe(item, append(bids, proposed), now)
		return &proposed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place live bid on %s: %w", itemID, err)
	}

	resp := decisionResponse(decision)
	if placed == nil {
		return resp, nil
	}

	resp.BidID = placed.ID
	resp.View = &view
	log.Printf("INFO: Accepted live bid %s on item %s", placed.ID, itemID)

	event := auctionapi.BidEvent{
		EventID:   h.newID(),
		ItemID:    itemID,
		BidID:     placed.ID,
		BidderID:  placed.BidderID,
		Amount:    placed.Amount,
		Timestamp: placed.PlacedAt,
	}
	if view.MinimumNextBid != nil {
		event.MinimumNext = *view.MinimumNextBid
	}
	// The bid is committed; a feed outage must not turn it into a failure
	if err := h.feed.PublishBidEvent(ctx, event); err != nil {
		log.Printf("ERROR: Failed to publish bid event for item %s: %v", itemID, err)
	}

	return resp, nil
}

// Step 3: Sealed bids never read other bids and never touch the projection.
func (h *AuctionHouse) placeSealedBid(ctx context.Context, item core.AuctionItem, bidderID string, amount decimal.Decimal) (*auctionapi.PlaceBidResponse, error) {
	proposed := core.Bid{
		ID:       h.newID(),
		ItemID:   item.ID,
		BidderID: bidderID,
		Amount:   amount,
	}

	proposed.PlacedAt = h.now()
	decision := core.ValidateBid(item, nil, proposed, proposed.PlacedAt)
	if !decision.Accepted {
		return decisionResponse(decision), nil
	}

	// The advisor only sees bids the core rules already accept
	verdict, err := h.advisor.Review(ctx, advisor.Request{
		BidAmount:       amount,
		MaxAllowedValue: item.MaxAllowedValue,
		ItemDescription: item.Description,
	})
	switch {
	case err == nil && verdict == nil:
		err = errors.New("empty verdict")
		fallthrough
	case err != nil:
		log.Printf("ERROR: Bid advisor unavailable for item %s: %v", item.ID, err)
		return decisionResponse(core.AdvisorRejection(advisorUnavailableMessage)), nil
	case !verdict.IsValid:
		return decisionResponse(core.AdvisorRejection(verdict.Reason)), nil
	}

	// Revalidate at insert time: the window may have closed during review
	placed, err := h.store.PlaceBid(ctx, item.ID, false, func(current core.AuctionItem, _ []core.Bid) (*core.Bid, error) {
		proposed.PlacedAt = h.now()
		decision = core.ValidateBid(current, nil, proposed, proposed.PlacedAt)
		if !decision.Accepted {
			return nil, nil
		}
		return &proposed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place sealed bid on %s: %w", item.ID, err)
	}

	resp := decisionResponse(decision)
	if placed == nil {
		return resp, nil
	}

	resp.BidID = placed.ID
	resp.Receipt = core.ComputeBidHash(*placed)
	log.Printf("INFO: Accepted sealed bid %s on item %s", placed.ID, item.ID)

	return resp, nil
}

// GetItem returns an item with its current view
func (h *AuctionHouse) GetItem(ctx context.Context, itemID string) (*auctionapi.ItemResponse, error) {
	item, bids, err := h.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return auctionapi.NewItemResponse(*item, core.Observe(*item, bids, h.now())), nil
}

func (h *AuctionHouse) loadItem(ctx context.Context, itemID string) (*core.AuctionItem, []core.Bid, error) {
	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	bids, err := h.store.ListBids(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bids for %s: %w", itemID, err)
	}
	return item, bids, nil
}

// CreateItem lists a new item. Items must be created before their bidding
// window opens.
func (h *AuctionHouse) CreateItem(ctx context.Context, req auctionapi.ItemRequest) (*auctionapi.ItemResponse, error) {
	if strings.TrimSpace(req.AuctioneerID) == "" {
		return nil, fmt.Errorf("%w: auctioneer_id is required", ErrInvalidRequest)
	}

	item := req.ToItem(h.newID())
	if err := core.ValidateItem(item); err != nil {
		return nil, err
	}

	now := h.now()
	if !core.CanModify(item, now) {
		return nil, fmt.Errorf("%w: start date must be in the future", core.ErrInvalidItem)
	}

	if err := h.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	log.Printf("INFO: Created %s item %s for auctioneer %s", item.Type, item.ID, item.AuctioneerID)
	return auctionapi.NewItemResponse(item, core.Observe(item, nil, now)), nil
}

// checkModifiable loads an item and verifies the auctioneer may still change it
func (h *AuctionHouse) checkModifiable(ctx context.Context, itemID, auctioneerID string, now time.Time) (*core.AuctionItem, error) {
	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.AuctioneerID != auctioneerID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, itemID)
	}
	if !core.CanModify(*item, now) {
		return nil, fmt.Errorf("%w: %s", ErrItemLocked, itemID)
	}
	return item, nil
}

// UpdateItem replaces an upcoming item's configuration
func (h *AuctionHouse) UpdateItem(ctx context.Context, itemID string, req auctionapi.ItemRequest) (*auctionapi.ItemResponse, error) {
	now := h.now()
	if _, err := h.checkModifiable(ctx, itemID, req.AuctioneerID, now); err != nil {
		return nil, err
	}

	updated := req.ToItem(itemID)
	if err := core.ValidateItem(updated); err != nil {
		return nil, err
	}
	if !core.CanModify(updated, now) {
		return nil, fmt.Errorf("%w: start date must be in the future", core.ErrInvalidItem)
	}

	if err := h.store.UpdateItem(ctx, updated, now); err != nil {
		if errors.Is(err, store.ErrItemStarted) {
			return nil, fmt.Errorf("%w: %s", ErrItemLocked, itemID)
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	log.Printf("INFO: Updated item %s", itemID)
	return auctionapi.NewItemResponse(updated, core.Observe(updated, nil, now)), nil
}

// DeleteItem removes an upcoming item that has received no bids
func (h *AuctionHouse) DeleteItem(ctx context.Context, itemID, auctioneerID string) error {
	now := h.now()
	if _, err := h.checkModifiable(ctx, itemID, auctioneerID, now); err != nil {
		return err
	}
	if err := h.store.DeleteItem(ctx, itemID, now); err != nil {
		if errors.Is(err, store.ErrItemStarted) {
			return fmt.Errorf("%w: %s", ErrItemLocked, itemID)
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}

	log.Printf("INFO: Deleted item %s", itemID)
	return nil
}

func (h *AuctionHouse) computeResults(ctx context.Context, itemID string) (*core.AuctionItem, *core.Results, error) {
	item, bids, err := h.loadItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	return item, core.ComputeResults(*item, bids, h.now()), nil
}

// Results computes the outcome of an item. Pending results carry no digest.
func (h *AuctionHouse) Results(ctx context.Context, itemID string) (*auctionapi.ResultsResponse, error) {
	_, results, err := h.computeResults(ctx, itemID)
	if err != nil {
		return nil, err
	}

	resp := &auctionapi.ResultsResponse{Results: *results}
	if results.Status != core.ResultsPending {
		resp.Digest = core.ComputeResultsDigest(results)
	}
	return resp, nil
}

// Certificate issues the signed settlement certificate of an ended item
func (h *AuctionHouse) Certificate(ctx context.Context, itemID string) (*auctionapi.CertificateResponse, error) {
	item, results, err := h.computeResults(ctx, itemID)
	if err != nil {
		return nil, err
	}

	cert, coseBytes, err := h.signedCertificate(*item, results)
	if err != nil {
		return nil, err
	}

	return &auctionapi.CertificateResponse{
		Type:                  "certificate_response",
		Certificate:           *cert,
		CertificateCOSEBase64: coseBytes.EncodeBase64(),
	}, nil
}

func (h *AuctionHouse) signedCertificate(item core.AuctionItem, results *core.Results) (*auctionapi.SettlementCertificate, auctionapi.CertificateCOSE, error) {
	cert, err := BuildSettlementCertificate(item, results)
	if err != nil {
		return nil, nil, err
	}

	coseBytes, err := SignCertificate(h.keys, cert)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign certificate for %s: %w", item.ID, err)
	}
	return cert, coseBytes, nil
}

// Announce notifies every participant of an ended item's outcome. Only the
// first call for an item sends anything.
func (h *AuctionHouse) Announce(ctx context.Context, itemID string) (*auctionapi.AnnounceResponse, error) {
	item, results, err := h.computeResults(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if results.Status == core.ResultsPending {
		return nil, fmt.Errorf("%w: %s", ErrResultsPending, itemID)
	}

	claimed, err := h.store.ClaimAnnouncement(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim announcement for %s: %w", itemID, err)
	}
	if !claimed {
		return &auctionapi.AnnounceResponse{
			Type:    "announce_response",
			Message: "results were already announced",
		}, nil
	}

	notices := notify.NewWinnerNotices(*item, results)

	// Notices carry the certificate so recipients can verify the outcome offline
	var certificate auctionapi.CertificateCOSEGzip
	if len(notices) > 0 {
		if _, coseBytes, err := h.signedCertificate(*item, results); err != nil {
			log.Printf("WARNING: Announcing item %s without certificate: %v", itemID, err)
		} else if certificate, err = coseBytes.CompressGzip(); err != nil {
			log.Printf("WARNING: Announcing item %s without certificate: %v", itemID, err)
		}
	}

	notified := 0
	for _, notice := range notices {
		notice.Certificate = certificate
		if err := h.notifier.Notify(ctx, notice); err != nil {
			log.Printf("ERROR: Failed to notify %s about item %s: %v", notice.UserName, itemID, err)
			continue
		}
		notified++
	}

	message := "results announced"
	if results.Status == core.ResultsNoBids {
		message = "auction closed without bids"
	}
	log.Printf("INFO: Announced item %s to %d participants", itemID, notified)

	return &auctionapi.AnnounceResponse{
		Type:      "announce_response",
		Announced: true,
		Notified:  notified,
		Message:   message,
	}, nil
}

// Keys returns the public keys and, inside an enclave, their attestation
func (h *AuctionHouse) Keys() (*auctionapi.KeysResponse, error) {
	return HandleKeyRequest(h.attester, h.keys)
}
