package validation

import (
	"fmt"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

// validateCommonAttestation performs validation common to all attestation types
// Parses the COSE bytes internally and validates PCRs, certificate chain, and signature
// Returns BaseValidationResult with validation results and the raw user data
func validateCommonAttestation(attestationCOSEBase64 auctionapi.AttestationCOSEBase64, knownPCRs []PCRSet) (*BaseValidationResult, []byte, error) {
	coseBytes, err := attestationCOSEBase64.Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	attestationDoc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{
		ValidationDetails: []string{},
	}

	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, knownPCRs)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash),
			fmt.Sprintf("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash),
			fmt.Sprintf("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash))
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "PCR measurements valid",
			fmt.Sprintf("Matched PCR set: #%d (commit: %s)", matchedSet, knownPCRs[matchedSet].CommitHash))
	}

	// Certificate chain is checked at the attestation timestamp
	switch {
	case attestationDoc.Certificate == "":
		result.ValidationDetails = append(result.ValidationDetails, "Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	default:
		if err := ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp); err != nil {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseBytes, attestationDoc.Certificate); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	return result, userData, nil
}
