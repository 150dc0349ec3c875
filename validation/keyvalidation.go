package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

// ValidateKeyAttestation validates the key attestation published with the house keys
//
// Parameters:
//   - keys: the /api/v1/keys response carrying the attestation and both keys
//   - knownPCRs: known-good enclave measurements (see LoadPCRsFromFile)
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input)
func ValidateKeyAttestation(keys *auctionapi.KeysResponse, knownPCRs []PCRSet) (*KeyValidationResult, error) {
	if keys == nil {
		return nil, fmt.Errorf("keys response is nil")
	}
	if keys.KeyAttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("keys response carries no key attestation")
	}

	baseResult, userDataBytes, err := validateCommonAttestation(keys.KeyAttestationCOSEBase64, knownPCRs)
	if err != nil {
		return nil, err
	}

	result := &KeyValidationResult{
		BaseValidationResult: *baseResult,
	}

	var userData auctionapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	result.EnvelopeKeyMatch = compareKey(result, "Envelope key", keys.EnvelopePublicKey, userData.EnvelopePublicKey)
	result.CertificateKeyMatch = compareKey(result, "Certificate key", keys.CertificatePublicKey, userData.CertificatePublicKey)

	return result, nil
}

// compareKey trims both PEMs to tolerate trailing newlines
func compareKey(result *KeyValidationResult, label, provided, attested string) bool {
	attested = strings.TrimSpace(attested)
	if attested == "" {
		result.ValidationDetails = append(result.ValidationDetails, label+" missing from attestation")
		return false
	}
	if strings.TrimSpace(provided) != attested {
		result.ValidationDetails = append(result.ValidationDetails, label+" mismatch: provided key does not match attested key")
		return false
	}
	result.ValidationDetails = append(result.ValidationDetails, label+" matches attestation")
	return true
}
