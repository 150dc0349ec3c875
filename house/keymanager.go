package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

// CertificateAlgorithm names the signature algorithm of settlement certificates
const CertificateAlgorithm = "ES256"

// KeyManager holds the house's key material: an RSA key pair for sealed-bid
// envelopes and an ECDSA key pair for signing settlement certificates.
// Keys are generated at startup and never leave the process.
type KeyManager struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey

	signingKey       *ecdsa.PrivateKey
	SigningPublicKey *ecdsa.PublicKey
}

// NewKeyManager creates a new KeyManager with freshly generated keys
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	signingKey, err := GenerateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return &KeyManager{
		privateKey:       privateKey,
		PublicKey:        &privateKey.PublicKey,
		signingKey:       signingKey,
		SigningPublicKey: &signingKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the envelope public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	return publicKeyToPEM(km.PublicKey)
}

// SigningPublicKeyPEM returns the certificate verification key in PEM format
func (km *KeyManager) SigningPublicKeyPEM() (string, error) {
	return publicKeyToPEM(km.SigningPublicKey)
}

// OpenEnvelope decrypts a sealed bid addressed to this house
func (km *KeyManager) OpenEnvelope(envelope auctionapi.SealedBidEnvelope) (decimal.Decimal, error) {
	return OpenEnvelope(envelope, km.privateKey)
}

// signer exposes the certificate key for COSE signing
func (km *KeyManager) signer() crypto.Signer {
	return km.signingKey
}

// publicKeyToPEM converts a public key to PKIX PEM format
func publicKeyToPEM(publicKey any) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}

// HandleKeyRequest returns the house's public keys. When an attester is
// available the response also carries an NSM attestation binding both keys
// to the running enclave image.
func HandleKeyRequest(attester HouseAttester, keyManager *KeyManager) (*auctionapi.KeysResponse, error) {
	envelopeKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export envelope key: %w", err)
	}

	certificateKeyPEM, err := keyManager.SigningPublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export certificate key: %w", err)
	}

	resp := &auctionapi.KeysResponse{
		Type:                 "key_response",
		EnvelopePublicKey:    envelopeKeyPEM,
		CertificatePublicKey: certificateKeyPEM,
		CertificateAlgorithm: CertificateAlgorithm,
	}

	if attester == nil {
		return resp, nil
	}

	attestation, err := GenerateKeyAttestation(attester, envelopeKeyPEM, certificateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}
	resp.KeyAttestationCOSEBase64 = attestation.EncodeBase64()

	return resp, nil
}
