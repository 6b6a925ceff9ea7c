package businessflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mijikai/mijikai/app/dto"
	"github.com/mijikai/mijikai/app/services"
)

var captchaIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shortener_captcha_issued_total",
	Help: "Number of captcha challenges issued",
})

// ChallengeFlow issues captcha challenges for the public creation flow
type ChallengeFlow interface {
	Issue(ctx context.Context) (*dto.CaptchaResponse, error)
}

type ChallengeFlowImpl struct {
	captcha services.CaptchaService
}

func NewChallengeFlow(captcha services.CaptchaService) ChallengeFlow {
	return &ChallengeFlowImpl{captcha: captcha}
}

func (c *ChallengeFlowImpl) Issue(ctx context.Context) (*dto.CaptchaResponse, error) {
	challenge, err := c.captcha.Generate(ctx)
	if err != nil {
		return nil, NewBusinessError(CodeInternalServerError, err)
	}
	captchaIssuedTotal.Inc()
	return &dto.CaptchaResponse{Token: challenge.Token, Image: challenge.Image}, nil
}
