package auctionapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/core"
)

// SealedBidEnvelope carries a sealed bid amount encrypted with RSA-OAEP/AES-256-GCM.
// Bidders encrypt with the envelope key published at /api/v1/keys so amounts
// are only ever decrypted inside the house process.
type SealedBidEnvelope struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64-encoded RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64-encoded AES-GCM encrypted SealedBidPayload
	Nonce            string `json:"nonce"`                    // base64-encoded GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // Optional: "SHA-256" (default) or "SHA-1" for RSA-OAEP
}

// SealedBidPayload is the plaintext inside a SealedBidEnvelope
type SealedBidPayload struct {
	Amount decimal.Decimal `json:"amount"`
}

// PlaceBidRequest submits a bid. Exactly one of Amount or Sealed is set.
type PlaceBidRequest struct {
	BidderID string             `json:"bidder_id"`
	Amount   *decimal.Decimal   `json:"amount,omitempty"`
	Sealed   *SealedBidEnvelope `json:"sealed,omitempty"`
}

// PlaceBidResponse reports the decision on a submitted bid
type PlaceBidResponse struct {
	Accepted      bool              `json:"accepted"`
	Reason        core.RejectReason `json:"reason,omitempty"`
	Message       string            `json:"message"`
	MinimumAmount *decimal.Decimal  `json:"minimum_amount,omitempty"`
	BidID         string            `json:"bid_id,omitempty"`

	// Receipt is the bid hash of an accepted sealed bid. It appears in the
	// settlement certificate once the auction ends.
	Receipt string `json:"receipt,omitempty"`

	// View is the refreshed item view after an accepted live bid
	View *core.ItemView `json:"view,omitempty"`
}

// ItemRequest creates or edits an item
type ItemRequest struct {
	AuctioneerID     string           `json:"auctioneer_id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Type             core.AuctionType `json:"type"`
	StartingPrice    decimal.Decimal  `json:"starting_price"`
	StartDate        time.Time        `json:"start_date"`
	EndDate          time.Time        `json:"end_date"`
	MinIncrement     decimal.Decimal  `json:"min_increment"`
	MaxAllowedValue  decimal.Decimal  `json:"max_allowed_value"`
	ParticipationFee decimal.Decimal  `json:"participation_fee"`
	SecurityDeposit  decimal.Decimal  `json:"security_deposit"`
}

// ToItem builds the item described by the request
func (r ItemRequest) ToItem(itemID string) core.AuctionItem {
	return core.AuctionItem{
		ID:               itemID,
		AuctioneerID:     r.AuctioneerID,
		Name:             r.Name,
		Description:      r.Description,
		Type:             r.Type,
		StartingPrice:    r.StartingPrice,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		MinIncrement:     r.MinIncrement,
		MaxAllowedValue:  r.MaxAllowedValue,
		ParticipationFee: r.ParticipationFee,
		SecurityDeposit:  r.SecurityDeposit,
	}
}

// ItemResponse is an item's configuration plus its current view.
// The stored leader projection is never exposed directly.
type ItemResponse struct {
	ID               string           `json:"id"`
	AuctioneerID     string           `json:"auctioneer_id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Type             core.AuctionType `json:"type"`
	StartingPrice    decimal.Decimal  `json:"starting_price"`
	MinIncrement     *decimal.Decimal `json:"min_increment,omitempty"`
	MaxAllowedValue  *decimal.Decimal `json:"max_allowed_value,omitempty"`
	ParticipationFee decimal.Decimal  `json:"participation_fee"`
	SecurityDeposit  decimal.Decimal  `json:"security_deposit"`
	View             core.ItemView    `json:"view"`
}

// NewItemResponse builds the response for an item and its view
func NewItemResponse(item core.AuctionItem, view core.ItemView) *ItemResponse {
	resp := &ItemResponse{
		ID:               item.ID,
		AuctioneerID:     item.AuctioneerID,
		Name:             item.Name,
		Description:      item.Description,
		Type:             item.Type,
		StartingPrice:    item.StartingPrice,
		ParticipationFee: item.ParticipationFee,
		SecurityDeposit:  item.SecurityDeposit,
		View:             view,
	}

	switch item.Type {
	case core.AuctionTypeLive:
		increment := item.MinIncrement
		resp.MinIncrement = &increment
	case core.AuctionTypeSealed:
		maximum := item.MaxAllowedValue
		resp.MaxAllowedValue = &maximum
	}
	return resp
}

// ResultsResponse wraps computed results with their digest
type ResultsResponse struct {
	core.Results
	Digest string `json:"digest,omitempty"` // Only set for final and no_bids results
}

// BidsFromLeaderboard rebuilds the bid list disclosed by a leaderboard
func BidsFromLeaderboard(itemID string, entries []core.LeaderboardEntry) []core.Bid {
	bids := make([]core.Bid, 0, len(entries))
	for _, entry := range entries {
		bids = append(bids, core.Bid{
			ID:       entry.BidID,
			ItemID:   itemID,
			BidderID: entry.BidderID,
			Amount:   entry.Amount,
			PlacedAt: entry.PlacedAt,
		})
	}
	return bids
}

// KeysResponse publishes the keys bidders and verifiers need
type KeysResponse struct {
	Type string `json:"type"`

	// EnvelopePublicKey encrypts sealed bids (PEM, RSA-2048)
	EnvelopePublicKey string `json:"envelope_public_key"`

	// CertificatePublicKey verifies settlement certificates (PEM, ECDSA P-256)
	CertificatePublicKey string `json:"certificate_public_key"`
	CertificateAlgorithm string `json:"certificate_algorithm"`

	// KeyAttestationCOSEBase64 is set when the house runs inside a Nitro enclave
	KeyAttestationCOSEBase64 AttestationCOSEBase64 `json:"key_attestation_cose_base64,omitempty"`
}

// KeyAttestationUserData is embedded in the Nitro key attestation
type KeyAttestationUserData struct {
	KeyAlgorithm         string `json:"key_algorithm"`          // e.g., "ES256"
	CertificatePublicKey string `json:"certificate_public_key"` // PEM-encoded certificate verification key
	EnvelopePublicKey    string `json:"envelope_public_key"`    // PEM-encoded sealed-bid encryption key
}

// CertifiedBid is a ranked bid as it appears in a settlement certificate.
// Bidder identity is left out.
type CertifiedBid struct {
	Rank    int    `cbor:"rank" json:"rank"`
	BidID   string `cbor:"bid_id" json:"bid_id"`
	BidHash string `cbor:"bid_hash" json:"bid_hash"`
	Amount  string `cbor:"amount" json:"amount"` // fixed to 2 decimal places
}

// SettlementCertificate is the signed statement of a closed auction's outcome.
// Every field is derived from the item and its bids, so issuing it twice
// yields the same payload.
type SettlementCertificate struct {
	ItemID           string         `cbor:"item_id" json:"item_id"`
	AuctionType      string         `cbor:"auction_type" json:"auction_type"`
	Status           string         `cbor:"status" json:"status"`
	EndDate          string         `cbor:"end_date" json:"end_date"` // RFC 3339, UTC
	BidHashes        []string       `cbor:"bid_hashes" json:"bid_hashes"`
	BidCount         int            `cbor:"bid_count" json:"bid_count"`
	ParticipantCount int            `cbor:"participant_count" json:"participant_count"`
	Winner           *CertifiedBid  `cbor:"winner,omitempty" json:"winner,omitempty"`
	RunnerUps        []CertifiedBid `cbor:"runner_ups" json:"runner_ups"`
	ResultsDigest    string         `cbor:"results_digest" json:"results_digest"`
}

// CertificateResponse is returned by the certificate endpoint
type CertificateResponse struct {
	Type                  string                `json:"type"`
	Certificate           SettlementCertificate `json:"certificate"`
	CertificateCOSEBase64 CertificateCOSEBase64 `json:"certificate_cose_base64"`
}

// BidEvent is published on the live feed for every accepted live bid
type BidEvent struct {
	EventID     string          `json:"event_id"`
	ItemID      string          `json:"item_id"`
	BidID       string          `json:"bid_id"`
	BidderID    string          `json:"bidder_id"`
	Amount      decimal.Decimal `json:"amount"`
	MinimumNext decimal.Decimal `json:"minimum_next"`
	Timestamp   time.Time       `json:"timestamp"`
}

// AnnounceResponse reports what an announcement request did
type AnnounceResponse struct {
	Type      string `json:"type"`
	Announced bool   `json:"announced"`
	Notified  int    `json:"notified"`
	Message   string `json:"message"`
}
