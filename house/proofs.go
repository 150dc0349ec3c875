package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/auctionapi/parsing"
	"github.com/cloudx-io/auctionhouse/core"
)

// ErrResultsPending is returned when a certificate is requested before the
// auction has ended
var ErrResultsPending = errors.New("auction results are pending")

// HouseAttester interface for dependency injection and testing
type HouseAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// generateSecureRandomBytes generates cryptographically secure random bytes
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateKeyAttestation generates raw COSE bytes binding the envelope and
// certificate keys to the enclave
func GenerateKeyAttestation(attester HouseAttester, envelopeKeyPEM, certificateKeyPEM string) (auctionapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	keyUserData := &auctionapi.KeyAttestationUserData{
		KeyAlgorithm:         CertificateAlgorithm,
		CertificatePublicKey: certificateKeyPEM,
		EnvelopePublicKey:    envelopeKeyPEM,
	}

	userDataBytes, err := json.Marshal(keyUserData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key user data: %w", err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM key attestation failed: %v", err)
		return nil, fmt.Errorf("NSM key attestation failed: %w", err)
	}

	log.Printf("INFO: Key attestation generated: %d bytes", len(attestationCBOR))

	return auctionapi.AttestationCOSE(attestationCBOR), nil
}

func certifiedBid(entry core.LeaderboardEntry, bidHash string) auctionapi.CertifiedBid {
	return auctionapi.CertifiedBid{
		Rank:    entry.Rank,
		BidID:   entry.BidID,
		BidHash: bidHash,
		Amount:  entry.Amount.StringFixed(2),
	}
}

// BuildSettlementCertificate derives the certificate payload of an ended auction.
//
// Parameters:
//   - item: the auctioned item
//   - results: the output of core.ComputeResults for the item's bids
//
// Returns ErrResultsPending while the auction is still running. Bid hashes are
// listed in leaderboard order so each sealed bidder can locate their receipt.
func BuildSettlementCertificate(item core.AuctionItem, results *core.Results) (*auctionapi.SettlementCertificate, error) {
	if results == nil || results.Status == core.ResultsPending {
		return nil, fmt.Errorf("%w: %s", ErrResultsPending, item.ID)
	}

	cert := &auctionapi.SettlementCertificate{
		ItemID:           item.ID,
		AuctionType:      string(item.Type),
		Status:           string(results.Status),
		EndDate:          item.EndDate.UTC().Format(time.RFC3339),
		BidHashes:        make([]string, 0, len(results.Leaderboard)),
		BidCount:         results.BidCount,
		ParticipantCount: results.ParticipantCount,
		RunnerUps:        make([]auctionapi.CertifiedBid, 0, len(results.RunnerUps)),
		ResultsDigest:    core.ComputeResultsDigest(results),
	}

	hashes := make(map[string]string, len(results.Leaderboard))
	for _, bid := range auctionapi.BidsFromLeaderboard(item.ID, results.Leaderboard) {
		bidHash := core.ComputeBidHash(bid)
		hashes[bid.ID] = bidHash
		cert.BidHashes = append(cert.BidHashes, bidHash)
	}

	if results.Winner != nil {
		winner := certifiedBid(*results.Winner, hashes[results.Winner.BidID])
		cert.Winner = &winner
	}
	for _, entry := range results.RunnerUps {
		cert.RunnerUps = append(cert.RunnerUps, certifiedBid(entry, hashes[entry.BidID]))
	}

	return cert, nil
}

// SignCertificate encodes the certificate as CBOR and signs it as an untagged
// COSE_Sign1 message with the house's ES256 key
func SignCertificate(keyManager *KeyManager, cert *auctionapi.SettlementCertificate) (auctionapi.CertificateCOSE, error) {
	payload, err := cbor.Marshal(cert)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certificate: %w", err)
	}

	protected, err := cbor.Marshal(map[int]int{1: int(cose.AlgorithmES256)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protected header: %w", err)
	}

	sigStructure, err := parsing.SigStructure(protected, payload)
	if err != nil {
		return nil, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, keyManager.signer())
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	signature, err := signer.Sign(rand.Reader, sigStructure)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	coseBytes, err := parsing.EncodeSign1(protected, payload, signature)
	if err != nil {
		return nil, err
	}
	return auctionapi.CertificateCOSE(coseBytes), nil
}
