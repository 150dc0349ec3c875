package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/auctionapi/parsing"
)

func verifySign1(coseBytes []byte, alg cose.Algorithm, key *ecdsa.PublicKey) (*parsing.Sign1, error) {
	msg, err := parsing.DecodeSign1(coseBytes)
	if err != nil {
		return nil, err
	}

	sigStructure, err := parsing.SigStructure(msg.Protected, msg.Payload)
	if err != nil {
		return nil, err
	}

	verifier, err := cose.NewVerifier(alg, key)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructure, msg.Signature); err != nil {
		return nil, fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return msg, nil
}

// VerifyCOSESignature verifies a Nitro attestation signature against the
// leaf certificate embedded in the attestation document.
// AWS Nitro signs with ES384 (ECDSA P-384 with SHA-384).
func VerifyCOSESignature(coseBytes auctionapi.AttestationCOSE, certB64 string) error {
	cert, err := decodeDERCertificate(certB64)
	if err != nil {
		return err
	}

	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	_, err = verifySign1(coseBytes, cose.AlgorithmES384, ecdsaKey)
	return err
}

// ParseCertificatePublicKey parses the PEM-encoded ECDSA key published as
// certificate_public_key
func ParseCertificatePublicKey(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in certificate public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate public key: %w", err)
	}

	ecdsaKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// VerifyCertificate verifies an ES256 settlement certificate and returns
// its decoded payload. The payload is only returned when the signature holds.
func VerifyCertificate(coseBytes auctionapi.CertificateCOSE, publicKeyPEM string) (*auctionapi.SettlementCertificate, error) {
	key, err := ParseCertificatePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	msg, err := verifySign1(coseBytes, cose.AlgorithmES256, key)
	if err != nil {
		return nil, err
	}

	var cert auctionapi.SettlementCertificate
	if err := cbor.Unmarshal(msg.Payload, &cert); err != nil {
		return nil, fmt.Errorf("parse certificate payload: %w", err)
	}
	return &cert, nil
}
