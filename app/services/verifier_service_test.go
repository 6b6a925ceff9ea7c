package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBotVerifierVerify(t *testing.T) {
	var gotBody verifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := verifyResponse{Pass: true, RiskRate: "low"}
		resp.UserData.IP = "hashed-ip-value"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	v := NewHTTPBotVerifier(server.URL, 5*time.Second)
	result, err := v.Verify(context.Background(), "the-token")
	require.NoError(t, err)

	assert.Equal(t, "the-token", gotBody.Token)
	assert.True(t, result.Pass)
	assert.Equal(t, "low", result.RiskRate)
	assert.Equal(t, "hashed-ip-value", result.Identity)
	assert.False(t, result.Suspicious())
}

func TestHTTPBotVerifierBotVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := verifyResponse{Pass: true, RiskRate: RiskRateBot}
		resp.UserData.IP = "hashed-ip-value"
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	v := NewHTTPBotVerifier(server.URL, 5*time.Second)
	result, err := v.Verify(context.Background(), "t")
	require.NoError(t, err)
	assert.True(t, result.Suspicious())
}

func TestHTTPBotVerifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	v := NewHTTPBotVerifier(server.URL, 5*time.Second)
	_, err := v.Verify(context.Background(), "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPBotVerifierContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; without it
		// the client disconnect is never noticed, r.Context() never fires, and
		// the deferred server.Close() deadlocks waiting on this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	v := NewHTTPBotVerifier(server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := v.Verify(ctx, "t")
	require.Error(t, err)
}

func TestMockBotVerifier(t *testing.T) {
	m := NewMockBotVerifier("identity-1")

	result, err := m.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, "identity-1", result.Identity)
	assert.Equal(t, []string{"tok"}, m.Calls)
}
