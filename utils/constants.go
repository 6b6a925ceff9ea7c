package utils

import (
	"time"
)

// Captcha challenge constants
const (
	// CaptchaTTL is the time window during which an issued challenge stays valid (5 minutes)
	CaptchaTTL = 5 * time.Minute

	// CaptchaSweepInterval is how often the in-memory challenge store evicts stale entries
	CaptchaSweepInterval = 60 * time.Second

	// CaptchaCodeLength is the number of characters in a challenge code
	CaptchaCodeLength = 6
)

// Short link constants
const (
	// ShortIDLength is the length of generated short identifiers
	ShortIDLength = 7

	// ShortIDAlphabet is the URL-safe alphabet for generated identifiers.
	// Ambiguous glyphs (0/O, 1/l/I) are excluded.
	ShortIDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

	// MaxAliasLength caps caller-chosen aliases at the links.uid column size
	MaxAliasLength = 64
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Context keys used by handlers when building request-scoped contexts
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)
