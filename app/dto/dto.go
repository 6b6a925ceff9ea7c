// Package dto contains request and response shapes for the HTTP API
package dto

// CreateLinkRequest is the body of POST /api/create.
//
// Exactly one access path must be satisfied: captcha_token + captcha_answer +
// token (public flow) or key (trusted API flow). The flow layer enforces the
// combination rules, so none of the fields are individually required here.
type CreateLinkRequest struct {
	URL           string `json:"url" validate:"omitempty,max=2048"`
	Alias         string `json:"alias" validate:"omitempty,max=64"`
	CaptchaToken  string `json:"captchaToken" validate:"omitempty,max=128"`
	CaptchaAnswer string `json:"captchaAnswer" validate:"omitempty,max=32"`
	Token         string `json:"token" validate:"omitempty,max=4096"`
	Key           string `json:"key" validate:"omitempty,max=256"`
}

// CreateLinkResponse returns the absolute short URL
type CreateLinkResponse struct {
	URL string `json:"url"`
}

// CaptchaResponse returns a fresh challenge: an opaque token and a PNG data URI
type CaptchaResponse struct {
	Token string `json:"token"`
	Image string `json:"image"`
}

// ErrorDetail is the machine-readable error payload
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps every non-2xx API response
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// HealthResponse reports service liveness
type HealthResponse struct {
	Status string `json:"status"`
}
