package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Request is sent to the advisor for every otherwise-accepted sealed bid
type Request struct {
	BidAmount       decimal.Decimal `json:"bid_amount"`
	MaxAllowedValue decimal.Decimal `json:"max_allowed_value"`
	ItemDescription string          `json:"item_description"`
}

// Verdict is the advisor's answer
type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// Advisor reviews sealed bids before they are stored
type Advisor interface {
	Review(ctx context.Context, req Request) (*Verdict, error)
}

// HTTPAdvisor posts review requests to an external HTTP service
type HTTPAdvisor struct {
	url    string
	client *http.Client
}

// NewHTTPAdvisor creates an advisor client for the given endpoint
func NewHTTPAdvisor(url string, timeout time.Duration) *HTTPAdvisor {
	return &HTTPAdvisor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAdvisor) Review(ctx context.Context, req Request) (*Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal advisor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build advisor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("advisor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("failed to decode advisor verdict: %w", err)
	}
	return &verdict, nil
}

// Approve is an Advisor that accepts every bid
type Approve struct{}

func (Approve) Review(context.Context, Request) (*Verdict, error) {
	return &Verdict{IsValid: true}, nil
}
