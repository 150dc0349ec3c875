package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// CertificateCOSE holds raw untagged COSE_Sign1 bytes of a settlement certificate
type CertificateCOSE []byte

// CertificateCOSEBase64 is the standard base64 form used in JSON responses
type CertificateCOSEBase64 string

// CertificateCOSEGzip is gzip-compressed COSE bytes in unpadded URL-safe base64.
// Winner notices carry this form.
type CertificateCOSEGzip string

// EncodeBase64 encodes the COSE bytes with standard base64
func (c CertificateCOSE) EncodeBase64() CertificateCOSEBase64 {
	return CertificateCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

// CompressGzip compresses the COSE bytes and encodes them URL-safe
func (c CertificateCOSE) CompressGzip() (CertificateCOSEGzip, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(c); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return CertificateCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (b CertificateCOSEBase64) String() string {
	return string(b)
}

// Decode accepts standard base64. Unpadded URL-safe input is also accepted.
func (b CertificateCOSEBase64) Decode() (CertificateCOSE, error) {
	data, err := decodeBase64(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return CertificateCOSE(data), nil
}

func (g CertificateCOSEGzip) String() string {
	return string(g)
}

// Decompress reverses CompressGzip
func (g CertificateCOSEGzip) Decompress() (CertificateCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode gzip base64: %w", err)
	}

	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return CertificateCOSE(data), nil
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawURLEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
