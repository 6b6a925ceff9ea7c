// Package services provides external service integrations and technical concerns like captcha challenges and bot-risk verification
package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mijikai/mijikai/utils"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// VerifyResult is the outcome of consuming a challenge
type VerifyResult int

const (
	VerifyMatch VerifyResult = iota
	VerifyMismatch
	VerifyTokenNotFound
	VerifyExpired
)

// Challenge is the client-facing half of an issued captcha
type Challenge struct {
	Token string
	Image string // PNG data URI
}

// CaptchaService issues human-solvable challenges and verifies answers.
//
// Flow:
// - Generate: renders a short code onto a noisy image, stores the expected
//   answer under a fresh token, returns token + image to the caller
// - Consume: removes the stored entry (one shot, whatever the outcome) and
//   compares the candidate answer case-insensitively
type CaptchaService interface {
	Generate(ctx context.Context) (*Challenge, error)
	Consume(ctx context.Context, token, answer string) (VerifyResult, error)
}

type captchaServiceImpl struct {
	store      ChallengeStore
	ttl        time.Duration
	codeLength int
	width      int
	height     int
}

// NewCaptchaService constructs a CaptchaService on top of the given store.
// ttl: time window during which a challenge remains valid
// codeLength: number of characters in the challenge code
func NewCaptchaService(store ChallengeStore, ttl time.Duration, codeLength, width, height int) CaptchaService {
	if codeLength <= 0 {
		codeLength = utils.CaptchaCodeLength
	}
	if width <= 0 {
		width = 240
	}
	if height <= 0 {
		height = 80
	}
	return &captchaServiceImpl{
		store:      store,
		ttl:        ttl,
		codeLength: codeLength,
		width:      width,
		height:     height,
	}
}

// captchaAlphabet avoids glyphs that are hard to tell apart on a noisy image
const captchaAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz"

func (s *captchaServiceImpl) Generate(ctx context.Context) (*Challenge, error) {
	code, err := randomCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge code: %w", err)
	}

	img, err := renderCaptchaImage(code, s.width, s.height)
	if err != nil {
		return nil, err
	}

	token := uuid.New().String()
	if err := s.store.Put(ctx, token, ChallengeEntry{
		Answer:   code,
		IssuedAt: utils.UTCNow(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return &Challenge{Token: token, Image: img}, nil
}

func (s *captchaServiceImpl) Consume(ctx context.Context, token, answer string) (VerifyResult, error) {
	entry, ok, err := s.store.Take(ctx, token)
	if err != nil {
		return VerifyTokenNotFound, err
	}
	if !ok {
		return VerifyTokenNotFound, nil
	}
	if utils.IsExpired(entry.IssuedAt.Add(s.ttl)) {
		return VerifyExpired, nil
	}
	if !strings.EqualFold(entry.Answer, answer) {
		return VerifyMismatch, nil
	}
	return VerifyMatch, nil
}

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = captchaAlphabet[int(b)%len(captchaAlphabet)]
	}
	return string(out), nil
}

// --- Image rendering ---

// renderCaptchaImage draws the code in large glyphs over a noise-gradient
// background, adds strike-through lines, and returns a PNG data URI.
func renderCaptchaImage(code string, w, h int) (string, error) {
	img := newNoiseGradientImage(w, h)

	// Draw the code small with the bitmap face, then upscale so the glyphs
	// fill the image and pick up blocky distortion for free.
	face := basicfont.Face7x13
	textW := len(code) * face.Advance
	small := image.NewRGBA(image.Rect(0, 0, textW+4, face.Height+4))
	drawer := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.RGBA{R: 20, G: 20, B: 60, A: 255}),
		Face: face,
		Dot:  fixed.P(2, face.Ascent+2),
	}
	drawer.DrawString(code)

	margin := w / 12
	target := image.Rect(margin, h/6, w-margin, h-h/6)
	xdraw.NearestNeighbor.Scale(img, target, small, small.Bounds(), xdraw.Over, nil)

	addNoiseLines(img, 4)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode captcha image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func newNoiseGradientImage(w, h int) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// simple radial gradient + noise
			dx := float64(x - w/2)
			dy := float64(y - h/2)
			dist := math.Sqrt(dx*dx + dy*dy)
			t := dist / float64(w/2)
			if t > 1 {
				t = 1
			}
			base := uint8(220 - int(40*t))
			noise := uint8(mrand.Intn(30))
			rgba.Set(x, y, color.RGBA{R: base + noise/3, G: base, B: base + noise/2, A: 255})
		}
	}
	return rgba
}

func addNoiseLines(img *image.RGBA, n int) {
	b := img.Bounds()
	for i := 0; i < n; i++ {
		y0 := mrand.Intn(b.Dy())
		y1 := mrand.Intn(b.Dy())
		c := color.RGBA{R: uint8(mrand.Intn(120)), G: uint8(mrand.Intn(120)), B: uint8(mrand.Intn(120)), A: 200}
		for x := 0; x < b.Dx(); x++ {
			y := y0 + (y1-y0)*x/b.Dx()
			img.Set(x, y, c)
		}
	}
}
