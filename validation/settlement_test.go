package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/auctionapi/parsing"
	"github.com/cloudx-io/auctionhouse/core"
)

var settlementEnd = time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)

func settlementBids() []core.Bid {
	bid := func(id, bidder, amount string, offset time.Duration) core.Bid {
		return core.Bid{
			ID:       id,
			ItemID:   "item_1",
			BidderID: bidder,
			Amount:   decimal.RequireFromString(amount),
			PlacedAt: settlementEnd.Add(-offset),
		}
	}
	return []core.Bid{
		bid("bid_a", "alice", "900", 3*time.Hour),
		bid("bid_b", "bob", "1200.5", 2*time.Hour),
		bid("bid_c", "carol", "900", time.Hour),
		bid("bid_d", "alice", "400", 30*time.Minute),
	}
}

// certify mirrors how the house derives a certificate from its results
func certify(results *core.Results) *auctionapi.SettlementCertificate {
	cert := &auctionapi.SettlementCertificate{
		ItemID:           results.ItemID,
		AuctionType:      string(core.AuctionTypeSealed),
		Status:           string(results.Status),
		EndDate:          settlementEnd.Format(time.RFC3339),
		BidHashes:        []string{},
		BidCount:         results.BidCount,
		ParticipantCount: results.ParticipantCount,
		RunnerUps:        []auctionapi.CertifiedBid{},
		ResultsDigest:    core.ComputeResultsDigest(results),
	}

	hashes := map[string]string{}
	for _, bid := range auctionapi.BidsFromLeaderboard(results.ItemID, results.Leaderboard) {
		hashes[bid.ID] = core.ComputeBidHash(bid)
		cert.BidHashes = append(cert.BidHashes, hashes[bid.ID])
	}
	toCertified := func(entry core.LeaderboardEntry) auctionapi.CertifiedBid {
		return auctionapi.CertifiedBid{
			Rank:    entry.Rank,
			BidID:   entry.BidID,
			BidHash: hashes[entry.BidID],
			Amount:  entry.Amount.StringFixed(2),
		}
	}
	if results.Winner != nil {
		winner := toCertified(*results.Winner)
		cert.Winner = &winner
	}
	for _, entry := range results.RunnerUps {
		cert.RunnerUps = append(cert.RunnerUps, toCertified(entry))
	}
	return cert
}

func signPayload(t *testing.T, alg cose.Algorithm, key *ecdsa.PrivateKey, payload []byte) []byte {
	t.Helper()

	protected, err := cbor.Marshal(map[int]int{1: int(alg)})
	assert.NoError(t, err)

	sigStructure, err := parsing.SigStructure(protected, payload)
	assert.NoError(t, err)

	signer, err := cose.NewSigner(alg, key)
	assert.NoError(t, err)

	signature, err := signer.Sign(rand.Reader, sigStructure)
	assert.NoError(t, err)

	coseBytes, err := parsing.EncodeSign1(protected, payload, signature)
	assert.NoError(t, err)
	return coseBytes
}

func signCertificate(t *testing.T, key *ecdsa.PrivateKey, cert *auctionapi.SettlementCertificate) auctionapi.CertificateCOSE {
	t.Helper()

	payload, err := cbor.Marshal(cert)
	assert.NoError(t, err)
	return signPayload(t, cose.AlgorithmES256, key, payload)
}

func newSigningKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	assert.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

type settlementFixture struct {
	key       *ecdsa.PrivateKey
	publicPEM string
	results   *core.Results
	cert      *auctionapi.SettlementCertificate
}

func newSettlementFixture(t *testing.T, bids []core.Bid) *settlementFixture {
	t.Helper()

	key, publicPEM := newSigningKey(t)
	item := core.AuctionItem{ID: "item_1", Type: core.AuctionTypeSealed, EndDate: settlementEnd}
	results := core.ComputeResults(item, bids, settlementEnd.Add(time.Hour))

	return &settlementFixture{
		key:       key,
		publicPEM: publicPEM,
		results:   results,
		cert:      certify(results),
	}
}

func (f *settlementFixture) input(t *testing.T) SettlementInput {
	t.Helper()

	disclosed := &auctionapi.ResultsResponse{
		Results: *f.results,
		Digest:  core.ComputeResultsDigest(f.results),
	}
	return SettlementInput{
		CertificateCOSE:      signCertificate(t, f.key, f.cert),
		CertificatePublicKey: f.publicPEM,
		Disclosed:            disclosed,
	}
}

func TestValidateSettlement_Valid(t *testing.T) {
	fixture := newSettlementFixture(t, settlementBids())

	result, err := ValidateSettlement(fixture.input(t))
	assert.NoError(t, err)

	check.True(t, result.SignatureValid)
	check.True(t, result.StatusValid)
	check.True(t, result.BidHashesValid)
	check.True(t, result.WinnerValid)
	check.True(t, result.RunnerUpsValid)
	check.True(t, result.CountsValid)
	check.True(t, result.DigestValid)
	check.False(t, result.ReceiptChecked)
	check.True(t, result.IsValid())
}

func TestValidateSettlement_NoBids(t *testing.T) {
	fixture := newSettlementFixture(t, nil)
	check.Equal(t, core.ResultsNoBids, fixture.results.Status)

	result, err := ValidateSettlement(fixture.input(t))
	assert.NoError(t, err)

	check.True(t, result.WinnerValid)
	check.True(t, result.IsValid())
}

func TestValidateSettlement_Receipt(t *testing.T) {
	bids := settlementBids()
	receipt := core.ComputeBidHash(bids[2])

	tests := []struct {
		name     string
		receipt  string
		included bool
	}{
		{name: "receipt of a certified bid", receipt: receipt, included: true},
		{name: "unknown receipt", receipt: "deadbeef", included: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newSettlementFixture(t, bids)
			input := fixture.input(t)
			input.Receipt = tt.receipt

			result, err := ValidateSettlement(input)
			assert.NoError(t, err)

			check.True(t, result.ReceiptChecked)
			check.Equal(t, tt.included, result.ReceiptIncluded)
			check.Equal(t, tt.included, result.IsValid())
		})
	}
}

func TestValidateSettlement_TamperedCertificate(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(cert *auctionapi.SettlementCertificate)
		failed func(result *SettlementValidationResult) bool
	}{
		{
			name:   "inflated winner amount",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.Winner.Amount = "5000.00" },
			failed: func(result *SettlementValidationResult) bool { return !result.WinnerValid },
		},
		{
			name:   "swapped runner-ups",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.RunnerUps[0], cert.RunnerUps[1] = cert.RunnerUps[1], cert.RunnerUps[0] },
			failed: func(result *SettlementValidationResult) bool { return !result.RunnerUpsValid },
		},
		{
			name:   "dropped bid hash",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.BidHashes = cert.BidHashes[1:] },
			failed: func(result *SettlementValidationResult) bool { return !result.BidHashesValid },
		},
		{
			name:   "inflated participant count",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.ParticipantCount++ },
			failed: func(result *SettlementValidationResult) bool { return !result.CountsValid },
		},
		{
			name:   "wrong digest",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.ResultsDigest = "00" },
			failed: func(result *SettlementValidationResult) bool { return !result.DigestValid },
		},
		{
			name:   "wrong status",
			tamper: func(cert *auctionapi.SettlementCertificate) { cert.Status = string(core.ResultsNoBids) },
			failed: func(result *SettlementValidationResult) bool { return !result.StatusValid },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newSettlementFixture(t, settlementBids())
			tt.tamper(fixture.cert)

			result, err := ValidateSettlement(fixture.input(t))
			assert.NoError(t, err)

			check.True(t, result.SignatureValid)
			check.True(t, tt.failed(result))
			check.False(t, result.IsValid())
		})
	}
}

func TestValidateSettlement_TamperedDisclosure(t *testing.T) {
	fixture := newSettlementFixture(t, settlementBids())
	input := fixture.input(t)
	input.Disclosed.Leaderboard[0].Amount = decimal.RequireFromString("1300")

	result, err := ValidateSettlement(input)
	assert.NoError(t, err)

	check.True(t, result.SignatureValid)
	check.False(t, result.BidHashesValid)
	check.False(t, result.WinnerValid)
	check.False(t, result.DigestValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlement_BadSignature(t *testing.T) {
	t.Run("different key", func(t *testing.T) {
		fixture := newSettlementFixture(t, settlementBids())
		input := fixture.input(t)
		_, otherPEM := newSigningKey(t)
		input.CertificatePublicKey = otherPEM

		result, err := ValidateSettlement(input)
		assert.NoError(t, err)
		check.False(t, result.SignatureValid)
		check.False(t, result.IsValid())
	})

	t.Run("modified payload", func(t *testing.T) {
		fixture := newSettlementFixture(t, settlementBids())
		input := fixture.input(t)

		msg, err := parsing.DecodeSign1(input.CertificateCOSE)
		assert.NoError(t, err)
		forged := *fixture.cert
		forged.BidCount = 99
		payload, err := cbor.Marshal(&forged)
		assert.NoError(t, err)
		input.CertificateCOSE, err = parsing.EncodeSign1(msg.Protected, payload, msg.Signature)
		assert.NoError(t, err)

		result, err := ValidateSettlement(input)
		assert.NoError(t, err)
		check.False(t, result.SignatureValid)
		check.False(t, result.IsValid())
	})
}

func TestValidateSettlement_InvalidInput(t *testing.T) {
	fixture := newSettlementFixture(t, settlementBids())

	tests := []struct {
		name   string
		modify func(input *SettlementInput)
	}{
		{name: "missing results", modify: func(input *SettlementInput) { input.Disclosed = nil }},
		{name: "empty certificate", modify: func(input *SettlementInput) { input.CertificateCOSE = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fixture.input(t)
			tt.modify(&input)

			result, err := ValidateSettlement(input)
			check.Error(t, err)
			check.Nil(t, result)
		})
	}
}

func TestVerifyCertificate(t *testing.T) {
	fixture := newSettlementFixture(t, settlementBids())
	input := fixture.input(t)

	_, err := VerifyCertificate(input.CertificateCOSE, "not a pem")
	check.Error(t, err)

	cert, err := VerifyCertificate(input.CertificateCOSE, fixture.publicPEM)
	assert.NoError(t, err)
	check.Equal(t, "item_1", cert.ItemID)
	check.Equal(t, "1200.50", cert.Winner.Amount)
}

func TestValidateSettlement_CompressedCertificate(t *testing.T) {
	fixture := newSettlementFixture(t, settlementBids())
	input := fixture.input(t)

	compressed, err := input.CertificateCOSE.CompressGzip()
	assert.NoError(t, err)
	input.CertificateCOSE, err = compressed.Decompress()
	assert.NoError(t, err)

	result, err := ValidateSettlement(input)
	assert.NoError(t, err)
	check.True(t, result.IsValid())
}
