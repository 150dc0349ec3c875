package auctionapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cloudx-io/auctionhouse/auctionapi/parsing"
)

// AttestationCOSE holds raw COSE_Sign1 bytes produced by the Nitro Security Module
type AttestationCOSE []byte

// AttestationCOSEBase64 is the base64 form carried in KeysResponse
type AttestationCOSEBase64 string

// EncodeBase64 encodes the attestation with standard base64
func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// Decode returns the raw attestation bytes
func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := decodeBase64(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(data), nil
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0" yaml:"pcr0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1" yaml:"pcr1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2" yaml:"pcr2"`
}

// AttestationDoc is the decoded form of a Nitro attestation document
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"` // base64 DER
	CABundle        []string  `json:"cabundle"`    // base64 DER, root first
	Nonce           string    `json:"nonce"`
}

// ParseAttestationDoc decodes the attestation document and returns it with
// the raw user data bytes
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.ParseNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   parsing.FormatPCR(raw.PCRs[0]),
			KernelHash:      parsing.FormatPCR(raw.PCRs[1]),
			ApplicationHash: parsing.FormatPCR(raw.PCRs[2]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    parsing.EncodeCertificateBundle(raw.CABundle),
		Nonce:       string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}
