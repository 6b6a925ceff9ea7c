package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijikai/mijikai/app/dto"
	"github.com/mijikai/mijikai/app/handlers"
	businessflow "github.com/mijikai/mijikai/business_flow"
	"github.com/mijikai/mijikai/config"
)

type stubShortenFlow struct {
	resp *dto.CreateLinkResponse
	err  error
}

func (s *stubShortenFlow) CreateLink(ctx context.Context, req *dto.CreateLinkRequest, metadata *businessflow.ClientMetadata) (*dto.CreateLinkResponse, error) {
	return s.resp, s.err
}

type stubVisitFlow struct {
	target string
	err    error
}

func (s *stubVisitFlow) Resolve(ctx context.Context, uid string) (string, error) {
	return s.target, s.err
}

type stubChallengeFlow struct {
	resp *dto.CaptchaResponse
	err  error
}

func (s *stubChallengeFlow) Issue(ctx context.Context) (*dto.CaptchaResponse, error) {
	return s.resp, s.err
}

func testConfig() *config.ProductionConfig {
	return &config.ProductionConfig{
		Server: config.ServerConfig{
			BodyLimit:    64 * 1024,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Security: config.SecurityConfig{
			AllowedOrigins:  []string{"*"},
			AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:  []string{"Origin", "Content-Type", "Accept"},
			APIRateLimit:    1000,
			RateLimitWindow: time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: false, Path: "/metrics"},
	}
}

func newTestRouter(shorten businessflow.ShortenFlow, visit businessflow.VisitFlow, challenge businessflow.ChallengeFlow) Router {
	r := NewFiberRouter(
		testConfig(),
		handlers.NewCaptchaHandler(challenge),
		handlers.NewCreateLinkHandler(shorten),
		handlers.NewRedirectHandler(visit),
	)
	r.SetupRoutes()
	return r
}

func postCreate(t *testing.T, r Router, body any) (int, dto.ErrorEnvelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/create", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope dto.ErrorEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &envelope)
	return resp.StatusCode, envelope
}

func TestCreateEndpointSuccess(t *testing.T) {
	r := newTestRouter(
		&stubShortenFlow{resp: &dto.CreateLinkResponse{URL: "https://mjk.example/abc1234"}},
		&stubVisitFlow{},
		&stubChallengeFlow{},
	)

	payload, _ := json.Marshal(dto.CreateLinkRequest{URL: "https://example.com", Key: "k"})
	req := httptest.NewRequest("POST", "/api/create", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var out dto.CreateLinkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "https://mjk.example/abc1234", out.URL)
}

func TestCreateEndpointStatusMapping(t *testing.T) {
	cases := []struct {
		code   string
		status int
	}{
		{businessflow.CodeCaptchaMissing, 400},
		{businessflow.CodeURLRequired, 400},
		{businessflow.CodeURLInvalidFormat, 400},
		{businessflow.CodeURLBanned, 400},
		{businessflow.CodeAliasInvalidCharacters, 400},
		{businessflow.CodeAliasBanned, 400},
		{businessflow.CodeAPIMissing, 400},
		{businessflow.CodeAccessMissing, 400},
		{businessflow.CodeCaptchaInvalidToken, 403},
		{businessflow.CodeCaptchaExpired, 403},
		{businessflow.CodeCaptchaFailed, 403},
		{businessflow.CodeAPIInvalidKey, 403},
		{businessflow.CodeBanned, 403},
		{businessflow.CodeAliasAlreadyExists, 409},
		{businessflow.CodeDatabaseInsertFailed, 500},
		{businessflow.CodeInternalServerError, 500},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			r := newTestRouter(
				&stubShortenFlow{err: businessflow.NewBusinessError(tc.code, nil)},
				&stubVisitFlow{},
				&stubChallengeFlow{},
			)

			status, envelope := postCreate(t, r, dto.CreateLinkRequest{URL: "https://example.com"})
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, envelope.Error.Code)
			assert.Equal(t, businessflow.MessageForCode(tc.code), envelope.Error.Message)
		})
	}
}

func TestCaptchaEndpoint(t *testing.T) {
	r := newTestRouter(
		&stubShortenFlow{},
		&stubVisitFlow{},
		&stubChallengeFlow{resp: &dto.CaptchaResponse{Token: "tok", Image: "data:image/png;base64,AA=="}},
	)

	req := httptest.NewRequest("GET", "/api/captcha", nil)
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var out dto.CaptchaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "tok", out.Token)
	assert.NotEmpty(t, out.Image)
}

func TestRedirectEndpoint(t *testing.T) {
	t.Run("known id issues permanent redirect", func(t *testing.T) {
		r := newTestRouter(
			&stubShortenFlow{},
			&stubVisitFlow{target: "https://example.com/landing"},
			&stubChallengeFlow{},
		)

		req := httptest.NewRequest("GET", "/abc1234", nil)
		resp, err := r.GetApp().Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 301, resp.StatusCode)
		assert.Equal(t, "https://example.com/landing", resp.Header.Get("Location"))
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		r := newTestRouter(
			&stubShortenFlow{},
			&stubVisitFlow{err: businessflow.ErrLinkNotFound},
			&stubChallengeFlow{},
		)

		req := httptest.NewRequest("GET", "/missing1", nil)
		resp, err := r.GetApp().Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("api paths never resolve as short ids", func(t *testing.T) {
		r := newTestRouter(
			&stubShortenFlow{},
			&stubVisitFlow{target: "https://example.com/should-not-happen"},
			&stubChallengeFlow{},
		)

		req := httptest.NewRequest("GET", "/api", nil)
		resp, err := r.GetApp().Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 404, resp.StatusCode)
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(&stubShortenFlow{}, &stubVisitFlow{}, &stubChallengeFlow{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := r.GetApp().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var out dto.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
}
