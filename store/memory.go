package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudx-io/auctionhouse/core"
)

type memoryItem struct {
	mu        sync.Mutex // held for exclusive placements
	item      core.AuctionItem
	bids      []core.Bid
	announced bool
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryItem),
	}
}

func (s *MemoryStore) lookup(itemID string) (*memoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return entry, nil
}

func (s *MemoryStore) GetItem(_ context.Context, itemID string) (*core.AuctionItem, error) {
	entry, err := s.lookup(itemID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	item := entry.item
	s.mu.RUnlock()
	return &item, nil
}

func (s *MemoryStore) ListBids(_ context.Context, itemID string) ([]core.Bid, error) {
	entry, err := s.lookup(itemID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	bids := make([]core.Bid, len(entry.bids))
	copy(bids, entry.bids)
	return bids, nil
}

func (s *MemoryStore) CreateItem(_ context.Context, item core.AuctionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrItemExists, item.ID)
	}
	s.items[item.ID] = &memoryItem{item: item}
	return nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, item core.AuctionItem, now time.Time) error {
	entry, err := s.lookup(item.ID)
	if err != nil {
		return err
	}

	// Waits out any exclusive placement in flight
	entry.mu.Lock()
	defer entry.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, item.ID)
	}
	if !now.Before(entry.item.StartDate) {
		return fmt.Errorf("%w: %s", ErrItemStarted, item.ID)
	}

	// The projection is owned by PlaceBid
	item.CurrentBid = entry.item.CurrentBid
	item.CurrentLeader = entry.item.CurrentLeader
	entry.item = item
	return nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, itemID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if !now.Before(entry.item.StartDate) {
		return fmt.Errorf("%w: %s", ErrItemStarted, itemID)
	}
	if len(entry.bids) > 0 {
		return fmt.Errorf("%w: %s", ErrItemHasBids, itemID)
	}
	delete(s.items, itemID)
	return nil
}

func (s *MemoryStore) PlaceBid(_ context.Context, itemID string, exclusive bool, decide DecideFunc) (*core.Bid, error) {
	entry, err := s.lookup(itemID)
	if err != nil {
		return nil, err
	}

	var prior []core.Bid
	if exclusive {
		entry.mu.Lock()
		defer entry.mu.Unlock()

		s.mu.RLock()
		prior = make([]core.Bid, len(entry.bids))
		copy(prior, entry.bids)
		s.mu.RUnlock()
	}

	s.mu.RLock()
	item := entry.item
	s.mu.RUnlock()

	bid, err := decide(item, prior)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[itemID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	placed := *bid
	placed.ItemID = itemID
	entry.bids = append(entry.bids, placed)
	if exclusive {
		entry.item.CurrentBid = bid.Amount
		entry.item.CurrentLeader = bid.BidderID
	}

	return &placed, nil
}

func (s *MemoryStore) ClaimAnnouncement(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[itemID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if entry.announced {
		return false, nil
	}
	entry.announced = true
	return true, nil
}

func (*MemoryStore) Close() error {
	return nil
}
