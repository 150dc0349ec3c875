package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/core"
	"github.com/cloudx-io/auctionhouse/store"
)

var (
	testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
)

// HybridEncryptionResult contains the results of hybrid encryption
type HybridEncryptionResult struct {
	EncryptedAESKey  string
	EncryptedPayload string
	Nonce            string
}

// EncryptHybridWithHash encrypts data the way bidders seal their amounts
func EncryptHybridWithHash(plaintext []byte, publicKey *rsa.PublicKey, hashAlg HashAlgorithm) (*HybridEncryptionResult, error) {
	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("failed to generate AES key: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceBytes := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonceBytes, plaintext, nil)

	encryptedAESKeyBytes, err := rsa.EncryptOAEP(hasher, rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt AES key: %w", err)
	}

	return &HybridEncryptionResult{
		EncryptedAESKey:  base64.StdEncoding.EncodeToString(encryptedAESKeyBytes),
		EncryptedPayload: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:            base64.StdEncoding.EncodeToString(nonceBytes),
	}, nil
}

// sealAmount builds a sealed bid envelope for amount
func sealAmount(t *testing.T, km *KeyManager, amount string, hashAlg HashAlgorithm) *auctionapi.SealedBidEnvelope {
	t.Helper()

	plaintext, err := json.Marshal(auctionapi.SealedBidPayload{Amount: decimal.RequireFromString(amount)})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	result, err := EncryptHybridWithHash(plaintext, km.PublicKey, hashAlg)
	if err != nil {
		t.Fatalf("encrypt payload: %v", err)
	}

	envelope := &auctionapi.SealedBidEnvelope{
		AESKeyEncrypted:  result.EncryptedAESKey,
		EncryptedPayload: result.EncryptedPayload,
		Nonce:            result.Nonce,
	}
	if hashAlg != HashAlgorithmSHA256 {
		envelope.HashAlgorithm = string(hashAlg)
	}
	return envelope
}

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", hexStr))
	}
	return bytes
}

// CreateMockEnclave creates a mock enclave handle producing Nitro-shaped attestations
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890000),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, _ := cbor.Marshal(nestedDoc)

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			result := []any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			}

			return cbor.Marshal(result)
		},
	}
}

// sequentialIDs returns an ID generator yielding prefix_1, prefix_2, ...
func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s_%d", prefix, n.Add(1))
	}
}

// mutableClock is a core.Clock tests can move
type mutableClock struct {
	now atomic.Pointer[time.Time]
}

func newMutableClock(now time.Time) *mutableClock {
	c := &mutableClock{}
	c.Set(now)
	return c
}

func (c *mutableClock) Now() time.Time { return *c.now.Load() }
func (c *mutableClock) Set(now time.Time) {
	c.now.Store(&now)
}

type testHouse struct {
	house *AuctionHouse
	store *store.MemoryStore
	keys  *KeyManager
	clock *mutableClock
}

func newTestHouse(t *testing.T, opts ...Option) *testHouse {
	t.Helper()

	km, err := NewKeyManager()
	if err != nil {
		t.Fatalf("key manager: %v", err)
	}
	st := store.NewMemoryStore()
	clock := newMutableClock(testStart.Add(-time.Hour))

	opts = append([]Option{WithClock(clock), WithIDGenerator(sequentialIDs("id"))}, opts...)
	return &testHouse{
		house: NewAuctionHouse(st, km, opts...),
		store: st,
		keys:  km,
		clock: clock,
	}
}

func liveItemRequest() auctionapi.ItemRequest {
	return auctionapi.ItemRequest{
		AuctioneerID:  "auctioneer_1",
		Name:          "Vintage bicycle",
		Type:          core.AuctionTypeLive,
		StartingPrice: decimal.NewFromInt(100),
		StartDate:     testStart,
		EndDate:       testEnd,
		MinIncrement:  decimal.NewFromInt(10),
	}
}

func sealedItemRequest() auctionapi.ItemRequest {
	return auctionapi.ItemRequest{
		AuctioneerID:    "auctioneer_1",
		Name:            "Land parcel 14",
		Description:     "Two hectares of farmland",
		Type:            core.AuctionTypeSealed,
		StartingPrice:   decimal.NewFromInt(100),
		StartDate:       testStart,
		EndDate:         testEnd,
		MaxAllowedValue: decimal.NewFromInt(5000),
	}
}

func amountPtr(amount string) *decimal.Decimal {
	d := decimal.RequireFromString(amount)
	return &d
}
