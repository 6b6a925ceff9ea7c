package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(ttl time.Duration) (CaptchaService, *MemoryChallengeStore) {
	store := NewMemoryChallengeStore(ttl, time.Hour)
	return NewCaptchaService(store, ttl, 6, 240, 80), store
}

func TestGenerateChallenge(t *testing.T) {
	svc, store := newTestService(5 * time.Minute)
	defer store.Stop()

	challenge, err := svc.Generate(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, challenge.Token)
	assert.True(t, strings.HasPrefix(challenge.Image, "data:image/png;base64,"))
	assert.Equal(t, 1, store.Len())

	// two challenges never share a token
	second, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, challenge.Token, second.Token)
}

func TestConsumeExactlyOnce(t *testing.T) {
	svc, store := newTestService(5 * time.Minute)
	defer store.Stop()

	ctx := context.Background()
	challenge, err := svc.Generate(ctx)
	require.NoError(t, err)

	entry, ok, err := store.Take(ctx, challenge.Token)
	require.NoError(t, err)
	require.True(t, ok)

	// re-arm the store with a known answer for the real consume
	require.NoError(t, store.Put(ctx, challenge.Token, entry))

	result, err := svc.Consume(ctx, challenge.Token, entry.Answer)
	require.NoError(t, err)
	assert.Equal(t, VerifyMatch, result)

	// second consumption of the same token fails regardless of the answer
	result, err = svc.Consume(ctx, challenge.Token, entry.Answer)
	require.NoError(t, err)
	assert.Equal(t, VerifyTokenNotFound, result)
}

func TestConsumeCaseInsensitive(t *testing.T) {
	svc, store := newTestService(5 * time.Minute)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "tok", ChallengeEntry{Answer: "AbC234", IssuedAt: time.Now().UTC()}))

	result, err := svc.Consume(ctx, "tok", "abc234")
	require.NoError(t, err)
	assert.Equal(t, VerifyMatch, result)
}

func TestConsumeMismatch(t *testing.T) {
	svc, store := newTestService(5 * time.Minute)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "tok", ChallengeEntry{Answer: "AbC234", IssuedAt: time.Now().UTC()}))

	result, err := svc.Consume(ctx, "tok", "wrong")
	require.NoError(t, err)
	assert.Equal(t, VerifyMismatch, result)

	// a mismatch still consumes the entry
	assert.Equal(t, 0, store.Len())
}

func TestConsumeExpired(t *testing.T) {
	svc, store := newTestService(time.Minute)
	defer store.Stop()

	ctx := context.Background()
	stale := ChallengeEntry{Answer: "AbC234", IssuedAt: time.Now().UTC().Add(-2 * time.Minute)}
	require.NoError(t, store.Put(ctx, "tok", stale))

	result, err := svc.Consume(ctx, "tok", "AbC234")
	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, result)
}

func TestConsumeUnknownToken(t *testing.T) {
	svc, store := newTestService(time.Minute)
	defer store.Stop()

	result, err := svc.Consume(context.Background(), "never-issued", "x")
	require.NoError(t, err)
	assert.Equal(t, VerifyTokenNotFound, result)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryChallengeStore(time.Minute, time.Hour)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "fresh", ChallengeEntry{Answer: "a", IssuedAt: time.Now().UTC()}))
	require.NoError(t, store.Put(ctx, "stale", ChallengeEntry{Answer: "b", IssuedAt: time.Now().UTC().Add(-2 * time.Minute)}))

	store.sweep(time.Now().UTC())

	assert.Equal(t, 1, store.Len())
	_, ok, err := store.Take(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRandomCodeAlphabet(t *testing.T) {
	code, err := randomCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.Contains(t, captchaAlphabet, string(r))
	}
}
