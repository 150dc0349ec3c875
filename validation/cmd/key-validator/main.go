package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	// Define CLI flags
	var (
		keysPath     = flag.String("keys", "", "Path to keys response JSON file (required)")
		pcrsPath     = flag.String("pcrs", validation.DefaultPCRConfigPath(), "Path to known PCR sets (YAML or JSON)")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help || *keysPath == "" {
		showUsage()
		if *keysPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	keysResponse, err := readKeysResponse(*keysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading keys response: %v\n", err)
		os.Exit(2)
	}

	knownPCRs, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCR sets: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateKeyAttestation(keysResponse, knownPCRs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Auction House Key Attestation Validator")
	logger.Info("")
	logger.Info("Checks that the sealed-bid envelope key and the certificate signing key")
	logger.Info("published by the house were generated inside an attested Nitro enclave.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  key-validator --keys <path> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --keys <path>                     Path to /api/v1/keys response JSON file")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --pcrs <path>                     Known PCR sets (default: validation/pcrs.yaml)")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  curl -s https://house.example/api/v1/keys > keys.json")
	logger.Info("  key-validator --keys keys.json")
	logger.Info("  key-validator --keys keys.json --format json")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readKeysResponse(path string) (*auctionapi.KeysResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var keysResponse auctionapi.KeysResponse
	if err := json.Unmarshal(data, &keysResponse); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if keysResponse.KeyAttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing key_attestation_cose_base64 field in keys response")
	}

	return &keysResponse, nil
}

func outputText(result *validation.KeyValidationResult) {
	logger.Info("Auction House Key Attestation Validator")
	logger.Info("=======================================")
	logger.Info("")

	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info("  " + detail)
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:        %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid: %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:   %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Envelope Key:      %v", result.EnvelopeKeyMatch))
	logger.Info(fmt.Sprintf("  Certificate Key:   %v", result.CertificateKeyMatch))

	logger.Info("")
	logger.Info("=======================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.KeyValidationResult) error {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"pcrs_valid":            result.PCRsValid,
		"certificate_valid":     result.CertificateValid,
		"signature_valid":       result.SignatureValid,
		"envelope_key_match":    result.EnvelopeKeyMatch,
		"certificate_key_match": result.CertificateKeyMatch,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
