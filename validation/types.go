package validation

import "fmt"

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// KeyValidationResult contains validation results specific to key attestations
type KeyValidationResult struct {
	BaseValidationResult
	EnvelopeKeyMatch    bool
	CertificateKeyMatch bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.EnvelopeKeyMatch && r.CertificateKeyMatch
}

// SettlementValidationResult contains the checks performed on a settlement certificate
type SettlementValidationResult struct {
	SignatureValid bool
	StatusValid    bool
	BidHashesValid bool
	WinnerValid    bool
	RunnerUpsValid bool
	CountsValid    bool
	DigestValid    bool

	// ReceiptChecked is set when a bid receipt was supplied
	ReceiptChecked  bool
	ReceiptIncluded bool

	ValidationDetails []string
}

// IsValid returns true if every performed check passed
func (r *SettlementValidationResult) IsValid() bool {
	valid := r.SignatureValid && r.StatusValid && r.BidHashesValid && r.WinnerValid &&
		r.RunnerUpsValid && r.CountsValid && r.DigestValid
	if r.ReceiptChecked {
		valid = valid && r.ReceiptIncluded
	}
	return valid
}

func (r *SettlementValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0" yaml:"pcr0"`
	PCR1       string `json:"pcr1" yaml:"pcr1"`
	PCR2       string `json:"pcr2" yaml:"pcr2"`
	CommitHash string `json:"commit_hash" yaml:"commit_hash"` // auctionhouse commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets" yaml:"pcr_sets"`
}
