package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RiskRateBot is the verifier's verdict for traffic it considers automated
const RiskRateBot = "bot"

// VerificationResult is the verifier's assessment of one challenge token
type VerificationResult struct {
	Pass     bool
	RiskRate string
	Identity string
}

// Suspicious reports whether the assessment should count against the caller
func (r *VerificationResult) Suspicious() bool {
	return !r.Pass || r.RiskRate == RiskRateBot
}

// BotVerifier checks a client-supplied access token against the external
// risk-assessment service and returns the verdict plus the caller identity
// the service resolved for the token.
type BotVerifier interface {
	Verify(ctx context.Context, token string) (*VerificationResult, error)
}

// HTTPBotVerifier talks to the verification endpoint over HTTP
type HTTPBotVerifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPBotVerifier creates a verifier client for the given endpoint
func NewHTTPBotVerifier(endpoint string, timeout time.Duration) *HTTPBotVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBotVerifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Pass     bool   `json:"pass"`
	RiskRate string `json:"risk_rate"`
	UserData struct {
		IP string `json:"ip"`
	} `json:"user_data"`
}

// Verify posts the token to the verification service and decodes the verdict
func (v *HTTPBotVerifier) Verify(ctx context.Context, token string) (*VerificationResult, error) {
	payload, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verification service returned status %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	return &VerificationResult{
		Pass:     body.Pass,
		RiskRate: body.RiskRate,
		Identity: body.UserData.IP,
	}, nil
}

// MockBotVerifier implements BotVerifier for development and testing
type MockBotVerifier struct {
	// Result is returned for every call unless ResultFn is set
	Result   VerificationResult
	ResultFn func(token string) (*VerificationResult, error)
	Calls    []string
}

// NewMockBotVerifier returns a mock that passes every token with the given identity
func NewMockBotVerifier(identity string) *MockBotVerifier {
	return &MockBotVerifier{
		Result: VerificationResult{Pass: true, RiskRate: "low", Identity: identity},
	}
}

func (m *MockBotVerifier) Verify(ctx context.Context, token string) (*VerificationResult, error) {
	m.Calls = append(m.Calls, token)
	if m.ResultFn != nil {
		return m.ResultFn(token)
	}
	out := m.Result
	return &out, nil
}
