// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/mijikai/mijikai/app/dto"
	businessflow "github.com/mijikai/mijikai/business_flow"
	"github.com/mijikai/mijikai/utils"
)

// statusForCode maps business error codes to HTTP statuses
func statusForCode(code string) int {
	switch code {
	case businessflow.CodeCaptchaMissing,
		businessflow.CodeAPIMissing,
		businessflow.CodeAccessMissing,
		businessflow.CodeURLRequired,
		businessflow.CodeURLInvalidFormat,
		businessflow.CodeURLBanned,
		businessflow.CodeAliasInvalidCharacters,
		businessflow.CodeAliasBanned:
		return fiber.StatusBadRequest
	case businessflow.CodeCaptchaInvalidToken,
		businessflow.CodeCaptchaExpired,
		businessflow.CodeCaptchaFailed,
		businessflow.CodeAPIInvalidKey,
		businessflow.CodeBanned:
		return fiber.StatusForbidden
	case businessflow.CodeAliasAlreadyExists:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorResponse writes the error envelope for a code
func ErrorResponse(c fiber.Ctx, code string) error {
	return c.Status(statusForCode(code)).JSON(dto.ErrorEnvelope{
		Error: dto.ErrorDetail{
			Code:    code,
			Message: businessflow.MessageForCode(code),
		},
	})
}

// BusinessErrorResponse writes the envelope for a flow error, collapsing
// anything that is not a BusinessError into INTERNAL_SERVER_ERROR
func BusinessErrorResponse(c fiber.Ctx, err error) error {
	if be, ok := businessflow.AsBusinessError(err); ok {
		return ErrorResponse(c, be.Code)
	}
	return ErrorResponse(c, businessflow.CodeInternalServerError)
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "url":
		return err.Field() + " must be a valid URL"
	default:
		return err.Field() + " is invalid"
	}
}

func createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
