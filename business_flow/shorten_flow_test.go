package businessflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijikai/mijikai/app/dto"
	"github.com/mijikai/mijikai/app/services"
	"github.com/mijikai/mijikai/models"
	"github.com/mijikai/mijikai/repository"
	"github.com/mijikai/mijikai/utils"
)

// --- In-memory fakes ---

type fakeLinkRepo struct {
	byUID      map[string]*models.Link
	nextID     uint
	insertErr  error
	insertSeen []*models.Link
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{byUID: make(map[string]*models.Link)}
}

func (f *fakeLinkRepo) ByUID(ctx context.Context, uid string) (*models.Link, error) {
	return f.byUID[uid], nil
}

func (f *fakeLinkRepo) ByTarget(ctx context.Context, target string) (*models.Link, error) {
	var oldest *models.Link
	for _, l := range f.byUID {
		if l.TargetURL == target && (oldest == nil || l.ID < oldest.ID) {
			oldest = l
		}
	}
	return oldest, nil
}

func (f *fakeLinkRepo) ByFilter(ctx context.Context, filter models.LinkFilter, orderBy string, limit, offset int) ([]*models.Link, error) {
	var out []*models.Link
	for _, l := range f.byUID {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLinkRepo) Count(ctx context.Context, filter models.LinkFilter) (int64, error) {
	return int64(len(f.byUID)), nil
}

func (f *fakeLinkRepo) Exists(ctx context.Context, filter models.LinkFilter) (bool, error) {
	return len(f.byUID) > 0, nil
}

func (f *fakeLinkRepo) Insert(ctx context.Context, link *models.Link) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, exists := f.byUID[link.UID]; exists {
		return repository.ErrDuplicateKey
	}
	f.nextID++
	link.ID = f.nextID
	f.byUID[link.UID] = link
	f.insertSeen = append(f.insertSeen, link)
	return nil
}

type repEntry struct {
	score    int
	attempts int
}

type fakeReputationRepo struct {
	entries map[string]*repEntry
}

func newFakeReputationRepo() *fakeReputationRepo {
	return &fakeReputationRepo{entries: make(map[string]*repEntry)}
}

func (f *fakeReputationRepo) ByIdentity(ctx context.Context, identity string) (*models.Reputation, error) {
	e, ok := f.entries[identity]
	if !ok {
		return nil, nil
	}
	return &models.Reputation{Identity: identity, Score: e.score, AttemptCount: e.attempts}, nil
}

func (f *fakeReputationRepo) RecordAttempt(ctx context.Context, identity string, scoreDelta int) error {
	e, ok := f.entries[identity]
	if !ok {
		f.entries[identity] = &repEntry{score: scoreDelta, attempts: 1}
		return nil
	}
	e.score += scoreDelta
	e.attempts++
	return nil
}

func (f *fakeReputationRepo) IsBanned(ctx context.Context, identity string, threshold int) (bool, error) {
	e, ok := f.entries[identity]
	if !ok {
		return true, nil
	}
	return e.attempts-e.score >= threshold, nil
}

type fakeCaptchaService struct {
	result   services.VerifyResult
	consumed []string
}

func (f *fakeCaptchaService) Generate(ctx context.Context) (*services.Challenge, error) {
	return &services.Challenge{Token: "tok", Image: "data:image/png;base64,AA=="}, nil
}

func (f *fakeCaptchaService) Consume(ctx context.Context, token, answer string) (services.VerifyResult, error) {
	f.consumed = append(f.consumed, token)
	return f.result, nil
}

// --- Fixture ---

type flowFixture struct {
	links    *fakeLinkRepo
	rep      *fakeReputationRepo
	captcha  *fakeCaptchaService
	verifier *services.MockBotVerifier
	flow     ShortenFlow
}

func newFlowFixture(mutate ...func(*flowFixture)) *flowFixture {
	f := &flowFixture{
		links:    newFakeLinkRepo(),
		rep:      newFakeReputationRepo(),
		captcha:  &fakeCaptchaService{result: services.VerifyMatch},
		verifier: services.NewMockBotVerifier("203.0.113.7"),
	}
	for _, m := range mutate {
		m(f)
	}
	denylist := NewDenylist(
		[]string{"casino"},
		[]string{"evil.example"},
		[]string{"admin"},
		"mjk.example",
		false,
	)
	f.flow = NewShortenFlow(f.links, f.rep, f.captcha, f.verifier, denylist, ShortenConfig{
		Domain:         "mjk.example",
		APIKey:         "secret-key",
		BanThreshold:   3,
		IdentityPepper: "pepper",
	})
	return f
}

func captchaRequest(url, alias string) *dto.CreateLinkRequest {
	return &dto.CreateLinkRequest{
		URL:           url,
		Alias:         alias,
		CaptchaToken:  "ct",
		CaptchaAnswer: "answer",
		Token:         "verifier-token",
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	be, ok := AsBusinessError(err)
	require.True(t, ok, "expected BusinessError, got %v", err)
	assert.Equal(t, code, be.Code)
}

// --- Tests ---

func TestCreateLinkHappyPath(t *testing.T) {
	f := newFlowFixture()
	meta := NewClientMetadata("198.51.100.1", "test-agent")

	resp, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/page", ""), meta)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(resp.URL, "https://mjk.example/"))
	uid := strings.TrimPrefix(resp.URL, "https://mjk.example/")
	assert.Len(t, uid, utils.ShortIDLength)
	for _, r := range uid {
		assert.Contains(t, utils.ShortIDAlphabet, string(r))
	}

	require.Len(t, f.links.insertSeen, 1)
	assert.Equal(t, "https://example.com/page", f.links.insertSeen[0].TargetURL)

	// successful attempt credits the ledger
	require.Len(t, f.rep.entries, 1)
	for _, e := range f.rep.entries {
		assert.Equal(t, 1, e.score)
		assert.Equal(t, 1, e.attempts)
	}
}

func TestCreateLinkNormalization(t *testing.T) {
	f := newFlowFixture()

	t.Run("hostname lowercased and trailing slash stripped", func(t *testing.T) {
		resp, err := f.flow.CreateLink(context.Background(), captchaRequest("https://Example.COM/Path/", ""), nil)
		require.NoError(t, err)
		require.NotNil(t, resp)
		require.Len(t, f.links.insertSeen, 1)
		assert.Equal(t, "https://example.com/Path", f.links.insertSeen[0].TargetURL)
	})

	t.Run("unicode hostname becomes punycode", func(t *testing.T) {
		resp, err := f.flow.CreateLink(context.Background(), captchaRequest("https://日本語.jp", ""), nil)
		require.NoError(t, err)
		require.NotNil(t, resp)
		last := f.links.insertSeen[len(f.links.insertSeen)-1]
		assert.Contains(t, last.TargetURL, "xn--")
		assert.NotContains(t, last.TargetURL, "日本語")
	})

	t.Run("userinfo and port survive host rewrite", func(t *testing.T) {
		resp, err := f.flow.CreateLink(context.Background(), captchaRequest("https://User:pw@Example.COM:8443/q", ""), nil)
		require.NoError(t, err)
		require.NotNil(t, resp)
		last := f.links.insertSeen[len(f.links.insertSeen)-1]
		assert.Equal(t, "https://User:pw@example.com:8443/q", last.TargetURL)
	})
}

func TestCreateLinkDedupIdempotency(t *testing.T) {
	f := newFlowFixture()

	first, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/a", ""), nil)
	require.NoError(t, err)

	// same target, including normalization variants, returns the same URL
	second, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/a/", ""), nil)
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	assert.Len(t, f.links.insertSeen, 1)
}

func TestCreateLinkURLValidation(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("", ""), nil)
		assertCode(t, err, CodeURLRequired)
	})

	t.Run("banned word beats parsing", func(t *testing.T) {
		f := newFlowFixture()
		// not even a parseable URL, the word check still fires first
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("::casino::", ""), nil)
		assertCode(t, err, CodeURLBanned)
		// rejected before any captcha consumption
		assert.Empty(t, f.captcha.consumed)
	})

	t.Run("unparseable url", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("not a url", ""), nil)
		assertCode(t, err, CodeURLInvalidFormat)
	})

	t.Run("relative url", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("/just/a/path", ""), nil)
		assertCode(t, err, CodeURLInvalidFormat)
	})

	t.Run("hostname without tld", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://localhost/x", ""), nil)
		assertCode(t, err, CodeURLInvalidFormat)
	})

	t.Run("self domain", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://mjk.example/abc", ""), nil)
		assertCode(t, err, CodeURLBanned)
	})

	t.Run("banned domain and subdomain", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://evil.example/x", ""), nil)
		assertCode(t, err, CodeURLBanned)

		_, err = f.flow.CreateLink(context.Background(), captchaRequest("https://sub.evil.example/x", ""), nil)
		assertCode(t, err, CodeURLBanned)
	})
}

func TestCreateLinkCaptchaAccess(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), &dto.CreateLinkRequest{URL: "https://example.com"}, nil)
		assertCode(t, err, CodeCaptchaMissing)
	})

	t.Run("partial captcha credentials", func(t *testing.T) {
		f := newFlowFixture()
		req := &dto.CreateLinkRequest{URL: "https://example.com", CaptchaToken: "ct"}
		_, err := f.flow.CreateLink(context.Background(), req, nil)
		assertCode(t, err, CodeCaptchaMissing)
	})

	t.Run("unknown token rejects before verifier call", func(t *testing.T) {
		f := newFlowFixture(func(f *flowFixture) {
			f.captcha.result = services.VerifyTokenNotFound
		})
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
		assertCode(t, err, CodeCaptchaInvalidToken)
		assert.Empty(t, f.verifier.Calls)
	})

	t.Run("expired token rejects before verifier call", func(t *testing.T) {
		f := newFlowFixture(func(f *flowFixture) {
			f.captcha.result = services.VerifyExpired
		})
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
		assertCode(t, err, CodeCaptchaExpired)
		assert.Empty(t, f.verifier.Calls)
	})

	t.Run("missing verifier token", func(t *testing.T) {
		f := newFlowFixture()
		req := captchaRequest("https://example.com", "")
		req.Token = ""
		_, err := f.flow.CreateLink(context.Background(), req, nil)
		assertCode(t, err, CodeCaptchaInvalidToken)
		// the challenge was still consumed
		assert.Len(t, f.captcha.consumed, 1)
	})

	t.Run("wrong answer still records the attempt", func(t *testing.T) {
		f := newFlowFixture(func(f *flowFixture) {
			f.captcha.result = services.VerifyMismatch
		})
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
		assertCode(t, err, CodeCaptchaFailed)

		// attempt recorded with zero score
		require.Len(t, f.rep.entries, 1)
		for _, e := range f.rep.entries {
			assert.Equal(t, 0, e.score)
			assert.Equal(t, 1, e.attempts)
		}
	})

	t.Run("verifier flags bot", func(t *testing.T) {
		f := newFlowFixture(func(f *flowFixture) {
			f.verifier.Result = services.VerificationResult{Pass: true, RiskRate: services.RiskRateBot, Identity: "203.0.113.7"}
		})
		// threshold 3 and one failed attempt keeps the identity below the ban
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
		assertCode(t, err, CodeCaptchaFailed)
	})

	t.Run("ban takes precedence over a solved captcha", func(t *testing.T) {
		f := newFlowFixture()

		// burn the identity below the threshold with bot verdicts
		f.verifier.Result = services.VerificationResult{Pass: false, RiskRate: "high", Identity: "203.0.113.7"}
		for i := 0; i < 3; i++ {
			_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
			require.Error(t, err)
		}

		// now a fully valid attempt still gets rejected as banned
		f.verifier.Result = services.VerificationResult{Pass: true, RiskRate: "low", Identity: "203.0.113.7"}
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
		assertCode(t, err, CodeBanned)
		assert.Empty(t, f.links.insertSeen)
	})
}

func TestCreateLinkAPIKeyAccess(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		f := newFlowFixture()
		req := &dto.CreateLinkRequest{URL: "https://example.com", Key: "secret-key"}
		resp, err := f.flow.CreateLink(context.Background(), req, nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp.URL, "https://mjk.example/"))
		// no captcha consumed, no verifier call, no ledger write
		assert.Empty(t, f.captcha.consumed)
		assert.Empty(t, f.verifier.Calls)
		assert.Empty(t, f.rep.entries)
	})

	t.Run("wrong key", func(t *testing.T) {
		f := newFlowFixture()
		req := &dto.CreateLinkRequest{URL: "https://example.com", Key: "wrong"}
		_, err := f.flow.CreateLink(context.Background(), req, nil)
		assertCode(t, err, CodeAPIInvalidKey)
	})
}

func TestCreateLinkAlias(t *testing.T) {
	t.Run("custom alias used as uid", func(t *testing.T) {
		f := newFlowFixture()
		resp, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", "my-page"), nil)
		require.NoError(t, err)
		assert.Equal(t, "https://mjk.example/my-page", resp.URL)
	})

	t.Run("invalid characters", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", "bad alias!"), nil)
		assertCode(t, err, CodeAliasInvalidCharacters)
	})

	t.Run("reserved aliases", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", "api"), nil)
		assertCode(t, err, CodeAliasBanned)

		_, err = f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", "Admin"), nil)
		assertCode(t, err, CodeAliasBanned)
	})

	t.Run("alias already taken", func(t *testing.T) {
		f := newFlowFixture()
		_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/a", "taken"), nil)
		require.NoError(t, err)

		_, err = f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/b", "taken"), nil)
		assertCode(t, err, CodeAliasAlreadyExists)
	})

	t.Run("alias skips target dedup", func(t *testing.T) {
		f := newFlowFixture()
		first, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/same", ""), nil)
		require.NoError(t, err)

		second, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com/same", "explicit"), nil)
		require.NoError(t, err)

		assert.NotEqual(t, first.URL, second.URL)
		assert.Equal(t, "https://mjk.example/explicit", second.URL)
	})
}

func TestCreateLinkInsertRace(t *testing.T) {
	f := newFlowFixture(func(f *flowFixture) {
		f.links.insertErr = repository.ErrDuplicateKey
	})
	_, err := f.flow.CreateLink(context.Background(), captchaRequest("https://example.com", ""), nil)
	assertCode(t, err, CodeDatabaseInsertFailed)
}

func TestVisitFlowResolve(t *testing.T) {
	links := newFakeLinkRepo()
	require.NoError(t, links.Insert(context.Background(), &models.Link{UID: "abc1234", TargetURL: "https://example.com/x"}))
	flow := NewVisitFlow(links)

	target, err := flow.Resolve(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", target)

	_, err = flow.Resolve(context.Background(), "missing")
	assert.True(t, IsLinkNotFound(err))
}
