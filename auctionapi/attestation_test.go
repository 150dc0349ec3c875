package auctionapi

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

// mockNitroAttestation builds a Nitro-shaped COSE_Sign1 array around user data
func mockNitroAttestation(t *testing.T, userData []byte) AttestationCOSE {
	t.Helper()

	nestedDoc := map[string]any{
		"module_id": "test-enclave-12345",
		"digest":    "SHA384",
		"timestamp": uint64(1767225600000),
		"pcrs": map[uint64][]byte{
			0: {0x3b, 0x4c},
			1: {0x4b, 0x4d},
			2: {0x2b, 0xdd},
		},
		"certificate": []byte("test-certificate-data"),
		"cabundle":    [][]byte{[]byte("test-ca-cert")},
		"public_key":  []byte{},
		"user_data":   userData,
		"nonce":       []byte("nonce-1"),
	}
	nestedBytes, err := cbor.Marshal(nestedDoc)
	assert.NoError(t, err)

	result, err := cbor.Marshal([]any{
		[]byte{0x01, 0x02, 0x03},
		map[string]any{},
		nestedBytes,
		[]byte{0x04, 0x05, 0x06},
	})
	assert.NoError(t, err)
	return AttestationCOSE(result)
}

func TestAttestationCOSE_ParseAttestationDoc(t *testing.T) {
	userData, err := json.Marshal(KeyAttestationUserData{
		KeyAlgorithm:         "ES256",
		CertificatePublicKey: "cert-key-pem",
		EnvelopePublicKey:    "envelope-key-pem",
	})
	assert.NoError(t, err)

	attestation := mockNitroAttestation(t, userData)

	doc, rawUserData, err := attestation.ParseAttestationDoc()
	assert.NoError(t, err)

	check.Equal(t, "test-enclave-12345", doc.ModuleID)
	check.Equal(t, "SHA384", doc.DigestAlgorithm)
	check.Equal(t, "3b4c", doc.PCRs.ImageFileHash)
	check.Equal(t, "4b4d", doc.PCRs.KernelHash)
	check.Equal(t, "2bdd", doc.PCRs.ApplicationHash)
	check.Equal(t, 2026, doc.Timestamp.Year())
	check.Equal(t, 1, len(doc.CABundle))
	check.Equal(t, "nonce-1", doc.Nonce)

	var parsed KeyAttestationUserData
	assert.NoError(t, json.Unmarshal(rawUserData, &parsed))
	check.Equal(t, "cert-key-pem", parsed.CertificatePublicKey)
}

func TestAttestationCOSEBase64_RoundTrip(t *testing.T) {
	attestation := mockNitroAttestation(t, []byte("{}"))

	decoded, err := attestation.EncodeBase64().Decode()
	assert.NoError(t, err)
	check.Equal(t, attestation, decoded)
}

func TestAttestationCOSE_ParseInvalid(t *testing.T) {
	_, _, err := AttestationCOSE([]byte{0xff, 0x00}).ParseAttestationDoc()
	check.NotNil(t, err)
}
