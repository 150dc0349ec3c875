package validation

import (
	"fmt"
	"slices"
	"time"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
)

// SettlementInput holds everything needed to check a settlement certificate
type SettlementInput struct {
	// CertificateCOSE is the signed certificate as returned by the certificate endpoint
	CertificateCOSE auctionapi.CertificateCOSE

	// CertificatePublicKey is the PEM key published as certificate_public_key
	CertificatePublicKey string

	// Disclosed is the results response the certificate is checked against
	Disclosed *auctionapi.ResultsResponse

	// Receipt is an optional bid hash returned on a sealed bid acceptance
	Receipt string
}

// ValidateSettlement verifies a settlement certificate and recomputes the
// outcome it claims from the disclosed leaderboard.
//
// Processing flow:
//  1. Verify the ES256 signature and decode the payload
//  2. Rebuild the disclosed bids and recompute results at the certified end date
//  3. Compare status, bid hashes, winner, runner-ups, counts and digest
//  4. Look up the receipt among the certified bid hashes
//
// Returns an error only when the inputs cannot be processed. A forged or
// mismatched certificate yields a result whose IsValid() is false.
func ValidateSettlement(input SettlementInput) (*SettlementValidationResult, error) {
	if input.Disclosed == nil {
		return nil, fmt.Errorf("disclosed results are required")
	}
	if len(input.CertificateCOSE) == 0 {
		return nil, fmt.Errorf("certificate COSE bytes are empty")
	}

	result := &SettlementValidationResult{
		ValidationDetails: []string{},
	}

	// Step 1: Nothing else is trusted until the signature holds
	cert, err := VerifyCertificate(input.CertificateCOSE, input.CertificatePublicKey)
	if err != nil {
		result.detail("Certificate signature invalid: %v", err)
		return result, nil
	}
	result.SignatureValid = true
	result.detail("Certificate signature verified (%s)", cert.ItemID)

	if cert.ItemID != input.Disclosed.ItemID {
		result.detail("Item mismatch: certificate %s, results %s", cert.ItemID, input.Disclosed.ItemID)
		return result, nil
	}

	endDate, err := time.Parse(time.RFC3339, cert.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parse certificate end date: %w", err)
	}

	// Step 2: Recompute from the disclosed leaderboard
	bids := auctionapi.BidsFromLeaderboard(cert.ItemID, input.Disclosed.Leaderboard)
	recomputed := core.ComputeResults(core.AuctionItem{ID: cert.ItemID, EndDate: endDate}, bids, endDate)

	hashes := make([]string, 0, len(recomputed.Leaderboard))
	hashByID := make(map[string]string, len(recomputed.Leaderboard))
	for _, bid := range auctionapi.BidsFromLeaderboard(cert.ItemID, recomputed.Leaderboard) {
		bidHash := core.ComputeBidHash(bid)
		hashes = append(hashes, bidHash)
		hashByID[bid.ID] = bidHash
	}

	// Step 3: Compare each certified claim
	result.StatusValid = cert.Status == string(recomputed.Status) && cert.Status == string(input.Disclosed.Status)
	if result.StatusValid {
		result.detail("Status matches: %s", cert.Status)
	} else {
		result.detail("Status mismatch: certificate %s, recomputed %s, disclosed %s",
			cert.Status, recomputed.Status, input.Disclosed.Status)
	}

	result.BidHashesValid = slices.Equal(cert.BidHashes, hashes)
	if result.BidHashesValid {
		result.detail("Bid hashes match (%d bids)", len(hashes))
	} else {
		result.detail("Bid hashes mismatch: certificate lists %d, recomputed %d", len(cert.BidHashes), len(hashes))
	}

	result.WinnerValid = winnerMatches(cert.Winner, recomputed.Winner, hashByID)
	if result.WinnerValid {
		result.detail("Winner matches")
	} else {
		result.detail("Winner mismatch")
	}

	result.RunnerUpsValid = len(cert.RunnerUps) == len(recomputed.RunnerUps)
	for i := 0; result.RunnerUpsValid && i < len(cert.RunnerUps); i++ {
		result.RunnerUpsValid = certifiedMatches(cert.RunnerUps[i], recomputed.RunnerUps[i], hashByID)
	}
	if result.RunnerUpsValid {
		result.detail("Runner-ups match (%d)", len(cert.RunnerUps))
	} else {
		result.detail("Runner-ups mismatch")
	}

	result.CountsValid = cert.BidCount == recomputed.BidCount &&
		cert.ParticipantCount == recomputed.ParticipantCount &&
		cert.BidCount == input.Disclosed.BidCount
	if result.CountsValid {
		result.detail("Counts match: %d bids from %d participants", cert.BidCount, cert.ParticipantCount)
	} else {
		result.detail("Counts mismatch: certificate %d/%d, recomputed %d/%d",
			cert.BidCount, cert.ParticipantCount, recomputed.BidCount, recomputed.ParticipantCount)
	}

	digest := core.ComputeResultsDigest(recomputed)
	result.DigestValid = cert.ResultsDigest == digest
	if input.Disclosed.Digest != "" && input.Disclosed.Digest != digest {
		result.DigestValid = false
	}
	if result.DigestValid {
		result.detail("Results digest matches")
	} else {
		result.detail("Results digest mismatch: certificate %s, recomputed %s", cert.ResultsDigest, digest)
	}

	// Step 4: Receipt inclusion
	if input.Receipt != "" {
		result.ReceiptChecked = true
		result.ReceiptIncluded = slices.Contains(cert.BidHashes, input.Receipt)
		if result.ReceiptIncluded {
			result.detail("Receipt found in certificate")
		} else {
			result.detail("Receipt not found in certificate")
		}
	}

	return result, nil
}

func certifiedMatches(certified auctionapi.CertifiedBid, entry core.LeaderboardEntry, hashByID map[string]string) bool {
	return certified.Rank == entry.Rank &&
		certified.BidID == entry.BidID &&
		certified.BidHash == hashByID[entry.BidID] &&
		certified.Amount == entry.Amount.StringFixed(2)
}

func winnerMatches(certified *auctionapi.CertifiedBid, entry *core.LeaderboardEntry, hashByID map[string]string) bool {
	if certified == nil || entry == nil {
		return certified == nil && entry == nil
	}
	return certifiedMatches(*certified, *entry, hashByID)
}
