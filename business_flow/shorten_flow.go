package businessflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/idna"

	"github.com/mijikai/mijikai/app/dto"
	"github.com/mijikai/mijikai/app/services"
	"github.com/mijikai/mijikai/models"
	"github.com/mijikai/mijikai/repository"
	"github.com/mijikai/mijikai/utils"
)

var (
	linksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortener_links_created_total",
		Help: "Number of short links persisted",
	})
	captchaVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_captcha_verifications_total",
		Help: "Captcha consumption outcomes",
	}, []string{"result"})
	verifierCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortener_verifier_calls_total",
		Help: "External bot verifier call outcomes",
	}, []string{"outcome"})
)

// ShortenFlow is the link creation pipeline. A request moves through input
// normalization, access verification (captcha or API key), content
// validation, alias resolution, and persistence; the first failed check
// rejects with a coded BusinessError.
type ShortenFlow interface {
	CreateLink(ctx context.Context, req *dto.CreateLinkRequest, metadata *ClientMetadata) (*dto.CreateLinkResponse, error)
}

// ShortenConfig carries the flow's tunables, derived from the service config
type ShortenConfig struct {
	Domain         string
	APIKey         string
	BanThreshold   int
	IdentityPepper string
}

type ShortenFlowImpl struct {
	linkRepo repository.LinkRepository
	repRepo  repository.ReputationRepository
	captcha  services.CaptchaService
	verifier services.BotVerifier
	denylist *Denylist
	cfg      ShortenConfig
}

func NewShortenFlow(
	linkRepo repository.LinkRepository,
	repRepo repository.ReputationRepository,
	captcha services.CaptchaService,
	verifier services.BotVerifier,
	denylist *Denylist,
	cfg ShortenConfig,
) ShortenFlow {
	return &ShortenFlowImpl{
		linkRepo: linkRepo,
		repRepo:  repRepo,
		captcha:  captcha,
		verifier: verifier,
		denylist: denylist,
		cfg:      cfg,
	}
}

func (s *ShortenFlowImpl) CreateLink(ctx context.Context, req *dto.CreateLinkRequest, metadata *ClientMetadata) (*dto.CreateLinkResponse, error) {
	if req == nil {
		return nil, NewBusinessError(CodeURLRequired, ErrURLRequired)
	}

	target, err := s.normalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	if err := s.verifyAccess(ctx, req); err != nil {
		return nil, err
	}

	if err := s.validateTarget(target); err != nil {
		return nil, err
	}

	uid, existing, err := s.resolveAlias(ctx, req.Alias, target)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.CreateLinkResponse{URL: s.shortURL(existing.UID)}, nil
	}

	link := &models.Link{
		UID:       uid,
		TargetURL: target,
		CreatedAt: utils.UTCNow(),
	}
	if err := s.linkRepo.Insert(ctx, link); err != nil {
		// Collisions lost to a concurrent writer land here; the pre-checks
		// above are advisory, the unique index is the authority.
		return nil, NewBusinessError(CodeDatabaseInsertFailed, err)
	}

	linksCreatedTotal.Inc()
	return &dto.CreateLinkResponse{URL: s.shortURL(link.UID)}, nil
}

// normalizeURL parses the raw URL, converts the hostname to its punycode
// form, and strips a single trailing slash so dedup treats the variants as
// one target. The banned-word check runs on the raw input, before parsing.
func (s *ShortenFlowImpl) normalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", NewBusinessError(CodeURLRequired, ErrURLRequired)
	}
	if s.denylist.ContainsBannedWord(raw) {
		return "", NewBusinessError(CodeURLBanned, ErrURLBanned)
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Hostname() == "" {
		return "", NewBusinessError(CodeURLInvalidFormat, ErrURLInvalidFormat)
	}

	host, err := idna.Lookup.ToASCII(strings.ToLower(parsed.Hostname()))
	if err != nil {
		return "", NewBusinessError(CodeURLInvalidFormat, ErrURLInvalidFormat)
	}
	if !s.denylist.IsValidHostname(host) {
		return "", NewBusinessError(CodeURLInvalidFormat, ErrURLInvalidFormat)
	}

	if port := parsed.Port(); port != "" {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}

	normalized := strings.TrimSuffix(parsed.String(), "/")
	return normalized, nil
}

// verifyAccess enforces exactly one access mode: a solved captcha plus a
// verifier token, or the configured API key.
func (s *ShortenFlowImpl) verifyAccess(ctx context.Context, req *dto.CreateLinkRequest) error {
	hasCaptcha := req.CaptchaToken != "" && req.CaptchaAnswer != ""

	if req.Key == "" && !hasCaptcha {
		return NewBusinessError(CodeCaptchaMissing, ErrCaptchaMissing)
	}

	if hasCaptcha {
		return s.verifyCaptcha(ctx, req)
	}

	if s.cfg.APIKey != "" {
		if req.Key == "" {
			return NewBusinessError(CodeAPIMissing, ErrAPIMissing)
		}
		if subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.cfg.APIKey)) != 1 {
			return NewBusinessError(CodeAPIInvalidKey, ErrAPIInvalidKey)
		}
		return nil
	}

	return NewBusinessError(CodeAccessMissing, ErrAccessMissing)
}

// verifyCaptcha consumes the challenge, asks the external verifier for a
// risk verdict, and records the attempt in the reputation ledger.
//
// An answer mismatch does not reject immediately: the attempt is still
// recorded against the caller identity (with a zero score) so repeated wrong
// answers build up toward the ban threshold. Unknown and expired tokens
// reject before the verifier call since no identity is available yet.
func (s *ShortenFlowImpl) verifyCaptcha(ctx context.Context, req *dto.CreateLinkRequest) error {
	result, err := s.captcha.Consume(ctx, req.CaptchaToken, req.CaptchaAnswer)
	if err != nil {
		return NewBusinessError(CodeInternalServerError, err)
	}

	failed := false
	switch result {
	case services.VerifyTokenNotFound:
		captchaVerificationsTotal.WithLabelValues("unknown_token").Inc()
		return NewBusinessError(CodeCaptchaInvalidToken, ErrCaptchaInvalidToken)
	case services.VerifyExpired:
		captchaVerificationsTotal.WithLabelValues("expired").Inc()
		return NewBusinessError(CodeCaptchaExpired, ErrCaptchaExpired)
	case services.VerifyMismatch:
		captchaVerificationsTotal.WithLabelValues("mismatch").Inc()
		failed = true
	case services.VerifyMatch:
		captchaVerificationsTotal.WithLabelValues("match").Inc()
	}

	if req.Token == "" {
		return NewBusinessError(CodeCaptchaInvalidToken, ErrCaptchaInvalidToken)
	}

	verdict, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		verifierCallsTotal.WithLabelValues("error").Inc()
		return NewBusinessError(CodeInternalServerError, err)
	}
	verifierCallsTotal.WithLabelValues("ok").Inc()

	identity := s.deriveIdentity(verdict.Identity)
	success := !verdict.Suspicious()

	scoreDelta := 0
	if !failed && success {
		scoreDelta = 1
	}
	if err := s.repRepo.RecordAttempt(ctx, identity, scoreDelta); err != nil {
		return NewBusinessError(CodeInternalServerError, err)
	}

	banned, err := s.repRepo.IsBanned(ctx, identity, s.cfg.BanThreshold)
	if err != nil {
		return NewBusinessError(CodeInternalServerError, err)
	}
	if banned {
		return NewBusinessError(CodeBanned, ErrBanned)
	}
	if !success {
		return NewBusinessError(CodeCaptchaFailed, ErrCaptchaFailed)
	}
	if failed {
		return NewBusinessError(CodeCaptchaFailed, ErrCaptchaFailed)
	}
	return nil
}

func (s *ShortenFlowImpl) validateTarget(target string) error {
	parsed, err := url.Parse(target)
	if err != nil {
		return NewBusinessError(CodeURLInvalidFormat, ErrURLInvalidFormat)
	}
	host := parsed.Hostname()
	if s.denylist.IsSelfDomain(host) {
		return NewBusinessError(CodeURLBanned, ErrURLBanned)
	}
	if s.denylist.IsDomainBanned(host) {
		return NewBusinessError(CodeURLBanned, ErrURLBanned)
	}
	return nil
}

// resolveAlias validates a requested alias or, absent one, returns any
// existing row for the same target so repeat requests stay idempotent.
// Without alias or existing row it generates a fresh random uid.
func (s *ShortenFlowImpl) resolveAlias(ctx context.Context, alias, target string) (string, *models.Link, error) {
	if alias != "" {
		if !s.denylist.HasValidAliasCharacters(alias) {
			return "", nil, NewBusinessError(CodeAliasInvalidCharacters, ErrAliasInvalidCharacters)
		}
		if len(alias) > utils.MaxAliasLength {
			return "", nil, NewBusinessError(CodeAliasInvalidCharacters, ErrAliasInvalidCharacters)
		}
		if s.denylist.IsAliasBanned(alias) {
			return "", nil, NewBusinessError(CodeAliasBanned, ErrAliasBanned)
		}
		existing, err := s.linkRepo.ByUID(ctx, alias)
		if err != nil {
			return "", nil, NewBusinessError(CodeInternalServerError, err)
		}
		if existing != nil {
			return "", nil, NewBusinessError(CodeAliasAlreadyExists, ErrAliasAlreadyExists)
		}
		return alias, nil, nil
	}

	existing, err := s.linkRepo.ByTarget(ctx, target)
	if err != nil {
		return "", nil, NewBusinessError(CodeInternalServerError, err)
	}
	if existing != nil {
		return "", existing, nil
	}

	uid, err := generateUID(utils.ShortIDLength)
	if err != nil {
		return "", nil, NewBusinessError(CodeInternalServerError, err)
	}
	return uid, nil, nil
}

// deriveIdentity hashes the verifier-resolved identity with the configured
// pepper so the ledger never stores a raw network identity.
func (s *ShortenFlowImpl) deriveIdentity(raw string) string {
	sum := blake2b.Sum256([]byte(s.cfg.IdentityPepper + raw))
	return hex.EncodeToString(sum[:])
}

func (s *ShortenFlowImpl) shortURL(uid string) string {
	return fmt.Sprintf("https://%s/%s", s.cfg.Domain, uid)
}

// generateUID draws n characters from the unambiguous alphabet with
// crypto/rand. Rejection sampling keeps the distribution uniform.
func generateUID(n int) (string, error) {
	const alphabet = utils.ShortIDAlphabet
	max := byte(256 - (256 % len(alphabet)))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
