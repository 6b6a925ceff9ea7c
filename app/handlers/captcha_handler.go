package handlers

import (
	"log"

	"github.com/gofiber/fiber/v3"

	businessflow "github.com/mijikai/mijikai/business_flow"
)

// CaptchaHandlerInterface defines the contract for issuing challenges
type CaptchaHandlerInterface interface {
	Issue(c fiber.Ctx) error
}

type CaptchaHandler struct {
	flow businessflow.ChallengeFlow
}

func NewCaptchaHandler(flow businessflow.ChallengeFlow) CaptchaHandlerInterface {
	return &CaptchaHandler{flow: flow}
}

// Issue returns a fresh challenge token and image
// @Summary Issue Captcha Challenge
// @Tags Captcha
// @Produce json
// @Success 200 {object} dto.CaptchaResponse
// @Failure 500 {object} dto.ErrorEnvelope
// @Router /api/captcha [get]
func (h *CaptchaHandler) Issue(c fiber.Ctx) error {
	resp, err := h.flow.Issue(createRequestContext(c, "/api/captcha"))
	if err != nil {
		log.Println("captcha issue failed:", err)
		return BusinessErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
