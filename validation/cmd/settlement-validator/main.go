package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudx-io/auctionhouse/auctionapi"
	"github.com/cloudx-io/auctionhouse/validation"
)

// plainTextHandler writes bare messages to stdout for CLI output
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
	var (
		certificatePath = flag.String("certificate", "", "Path to certificate response JSON file")
		certificateGzip = flag.String("certificate-gzip", "", "Compressed certificate from a winner notice")
		publicKeyPath   = flag.String("public-key", "", "Path to certificate public key PEM or keys response JSON (required)")
		resultsPath     = flag.String("results", "", "Path to results response JSON file (required)")
		receipt         = flag.String("receipt", "", "Bid receipt to look up in the certificate")
		outputFormat    = flag.String("format", "text", "Output format: text or json")
		help            = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	missing := (*certificatePath == "") == (*certificateGzip == "") || *publicKeyPath == "" || *resultsPath == ""
	if *help || missing {
		showUsage()
		if missing {
			os.Exit(1)
		}
		os.Exit(0)
	}

	coseBytes, err := readCertificate(*certificatePath, *certificateGzip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading certificate: %v\n", err)
		os.Exit(2)
	}

	input, err := readInput(coseBytes, *publicKeyPath, *resultsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(2)
	}
	input.Receipt = strings.TrimSpace(*receipt)

	result, err := validation.ValidateSettlement(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Auction House Settlement Validator")
	logger.Info("")
	logger.Info("Verifies a signed settlement certificate and recomputes the auction")
	logger.Info("outcome from the disclosed results.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  settlement-validator --certificate <path> --public-key <path> --results <path> [options]")
	logger.Info("  settlement-validator --certificate-gzip <value> --public-key <path> --results <path> [options]")
	logger.Info("")
	logger.Info("Required Flags (one of --certificate or --certificate-gzip):")
	logger.Info("  --certificate <path>              Certificate response JSON (/api/v1/items/{id}/certificate)")
	logger.Info("  --certificate-gzip <value>        Compressed certificate carried by a winner notice")
	logger.Info("  --public-key <path>               Certificate public key PEM, or a keys response JSON")
	logger.Info("  --results <path>                  Results response JSON (/api/v1/items/{id}/results)")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --receipt <hash>                  Sealed bid receipt to look up")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON %s: %w", path, err)
	}
	return nil
}

// readPublicKey accepts a bare PEM file or a saved keys response
func readPublicKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		return trimmed, nil
	}

	var keys auctionapi.KeysResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		return "", fmt.Errorf("public key is neither PEM nor a keys response: %w", err)
	}
	if keys.CertificatePublicKey == "" {
		return "", fmt.Errorf("missing certificate_public_key field in keys response")
	}
	return keys.CertificatePublicKey, nil
}

func readCertificate(certificatePath, certificateGzip string) (auctionapi.CertificateCOSE, error) {
	if certificateGzip != "" {
		return auctionapi.CertificateCOSEGzip(strings.TrimSpace(certificateGzip)).Decompress()
	}

	var certResponse auctionapi.CertificateResponse
	if err := readJSON(certificatePath, &certResponse); err != nil {
		return nil, err
	}
	if certResponse.CertificateCOSEBase64 == "" {
		return nil, fmt.Errorf("missing certificate_cose_base64 field in certificate response")
	}
	return certResponse.CertificateCOSEBase64.Decode()
}

func readInput(coseBytes auctionapi.CertificateCOSE, publicKeyPath, resultsPath string) (*validation.SettlementInput, error) {
	publicKey, err := readPublicKey(publicKeyPath)
	if err != nil {
		return nil, err
	}

	var results auctionapi.ResultsResponse
	if err := readJSON(resultsPath, &results); err != nil {
		return nil, err
	}

	return &validation.SettlementInput{
		CertificateCOSE:      coseBytes,
		CertificatePublicKey: publicKey,
		Disclosed:            &results,
	}, nil
}

func outputText(result *validation.SettlementValidationResult) {
	logger.Info("Auction House Settlement Validator")
	logger.Info("==================================")
	logger.Info("")

	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info("  " + detail)
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  Signature Valid:   %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Status Valid:      %v", result.StatusValid))
	logger.Info(fmt.Sprintf("  Bid Hashes Valid:  %v", result.BidHashesValid))
	logger.Info(fmt.Sprintf("  Winner Valid:      %v", result.WinnerValid))
	logger.Info(fmt.Sprintf("  Runner-ups Valid:  %v", result.RunnerUpsValid))
	logger.Info(fmt.Sprintf("  Counts Valid:      %v", result.CountsValid))
	logger.Info(fmt.Sprintf("  Digest Valid:      %v", result.DigestValid))
	if result.ReceiptChecked {
		logger.Info(fmt.Sprintf("  Receipt Included:  %v", result.ReceiptIncluded))
	}

	logger.Info("")
	logger.Info("==================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.SettlementValidationResult) error {
	output := map[string]any{
		"valid":            result.IsValid(),
		"signature_valid":  result.SignatureValid,
		"status_valid":     result.StatusValid,
		"bid_hashes_valid": result.BidHashesValid,
		"winner_valid":     result.WinnerValid,
		"runner_ups_valid": result.RunnerUpsValid,
		"counts_valid":     result.CountsValid,
		"digest_valid":     result.DigestValid,
		"details":          result.ValidationDetails,
	}
	if result.ReceiptChecked {
		output["receipt_included"] = result.ReceiptIncluded
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
