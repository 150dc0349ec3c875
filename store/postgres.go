package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/core"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const itemColumns = `id, auctioneer_id, name, description, auction_type, starting_price,
	start_date, end_date, min_increment, max_allowed_value, participation_fee,
	security_deposit, current_bid, current_leader`

// PostgresStore is a Store backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies it with a ping
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// InitSchema creates the items and bids tables if they do not exist
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auction_items (
		id VARCHAR(255) PRIMARY KEY,
		auctioneer_id VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		auction_type VARCHAR(16) NOT NULL,
		starting_price NUMERIC NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		min_increment NUMERIC NOT NULL DEFAULT 0,
		max_allowed_value NUMERIC NOT NULL DEFAULT 0,
		participation_fee NUMERIC NOT NULL DEFAULT 0,
		security_deposit NUMERIC NOT NULL DEFAULT 0,
		current_bid NUMERIC,
		current_leader VARCHAR(255),
		announced_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS auction_bids (
		id VARCHAR(255) PRIMARY KEY,
		item_id VARCHAR(255) NOT NULL,
		bidder_id VARCHAR(255) NOT NULL,
		amount NUMERIC NOT NULL,
		placed_at TIMESTAMPTZ NOT NULL,
		FOREIGN KEY (item_id) REFERENCES auction_items(id)
	);

	CREATE INDEX IF NOT EXISTS idx_auction_bids_item_id ON auction_bids(item_id);
	CREATE INDEX IF NOT EXISTS idx_auction_bids_bidder_id ON auction_bids(bidder_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*core.AuctionItem, error) {
	var (
		item          core.AuctionItem
		auctionType   string
		currentBid    decimal.NullDecimal
		currentLeader sql.NullString
	)

	err := row.Scan(
		&item.ID,
		&item.AuctioneerID,
		&item.Name,
		&item.Description,
		&auctionType,
		&item.StartingPrice,
		&item.StartDate,
		&item.EndDate,
		&item.MinIncrement,
		&item.MaxAllowedValue,
		&item.ParticipationFee,
		&item.SecurityDeposit,
		&currentBid,
		&currentLeader,
	)
	if err != nil {
		return nil, err
	}

	item.Type = core.AuctionType(auctionType)
	if currentBid.Valid {
		item.CurrentBid = currentBid.Decimal
	}
	item.CurrentLeader = currentLeader.String
	return &item, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*core.AuctionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM auction_items WHERE id = $1`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	return item, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listBids(ctx context.Context, q queryer, itemID string) ([]core.Bid, error) {
	query := `
		SELECT id, item_id, bidder_id, amount, placed_at
		FROM auction_bids
		WHERE item_id = $1
		ORDER BY placed_at, id
	`

	rows, err := q.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	bids := []core.Bid{}
	for rows.Next() {
		var bid core.Bid
		if err := rows.Scan(&bid.ID, &bid.ItemID, &bid.BidderID, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return bids, nil
}

func (s *PostgresStore) ListBids(ctx context.Context, itemID string) ([]core.Bid, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return listBids(ctx, s.db, itemID)
}

func (s *PostgresStore) CreateItem(ctx context.Context, item core.AuctionItem) error {
	query := `
		INSERT INTO auction_items (id, auctioneer_id, name, description, auction_type,
			starting_price, start_date, end_date, min_increment, max_allowed_value,
			participation_fee, security_deposit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.AuctioneerID,
		item.Name,
		item.Description,
		string(item.Type),
		item.StartingPrice,
		item.StartDate,
		item.EndDate,
		item.MinIncrement,
		item.MaxAllowedValue,
		item.ParticipationFee,
		item.SecurityDeposit,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrItemExists, item.ID)
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item core.AuctionItem, now time.Time) error {
	query := `
		UPDATE auction_items
		SET name = $2,
		    description = $3,
		    auction_type = $4,
		    starting_price = $5,
		    start_date = $6,
		    end_date = $7,
		    min_increment = $8,
		    max_allowed_value = $9,
		    participation_fee = $10,
		    security_deposit = $11,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		  AND start_date > $12
	`

	result, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.Description,
		string(item.Type),
		item.StartingPrice,
		item.StartDate,
		item.EndDate,
		item.MinIncrement,
		item.MaxAllowedValue,
		item.ParticipationFee,
		item.SecurityDeposit,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Distinguish a missing item from one that has started
	if _, err := s.GetItem(ctx, item.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrItemStarted, item.ID)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string, now time.Time) error {
	query := `
		DELETE FROM auction_items
		WHERE id = $1
		  AND start_date > $2
		  AND NOT EXISTS (SELECT 1 FROM auction_bids WHERE item_id = $1)
	`

	result, err := s.db.ExecContext(ctx, query, itemID, now)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Distinguish a missing item from one that started or already has bids
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !now.Before(item.StartDate) {
		return fmt.Errorf("%w: %s", ErrItemStarted, itemID)
	}
	return fmt.Errorf("%w: %s", ErrItemHasBids, itemID)
}

func (s *PostgresStore) PlaceBid(ctx context.Context, itemID string, exclusive bool, decide DecideFunc) (*core.Bid, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Step 1: Load the item, locking the row for exclusive placements
	query := `SELECT ` + itemColumns + ` FROM auction_items WHERE id = $1`
	if exclusive {
		query += ` FOR UPDATE`
	}
	item, err := scanItem(tx.QueryRowContext(ctx, query, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	// Step 2: Exclusive placements see every committed bid
	var prior []core.Bid
	if exclusive {
		prior, err = listBids(ctx, tx, itemID)
		if err != nil {
			return nil, err
		}
	}

	// Step 3: Let the caller decide
	bid, err := decide(*item, prior)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, nil
	}

	// Step 4: Insert and update the projection in the same transaction
	_, err = tx.ExecContext(ctx, `
		INSERT INTO auction_bids (id, item_id, bidder_id, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, bid.ID, itemID, bid.BidderID, bid.Amount, bid.PlacedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}

	if exclusive {
		_, err = tx.ExecContext(ctx, `
			UPDATE auction_items
			SET current_bid = $1,
			    current_leader = $2,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = $3
		`, bid.Amount, bid.BidderID, itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to update item projection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bid: %w", err)
	}

	placed := *bid
	placed.ItemID = itemID
	return &placed, nil
}

func (s *PostgresStore) ClaimAnnouncement(ctx context.Context, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE auction_items
		SET announced_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND announced_at IS NULL
	`, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to claim announcement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	if _, err := s.GetItem(ctx, itemID); err != nil {
		return false, err
	}
	return false, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
