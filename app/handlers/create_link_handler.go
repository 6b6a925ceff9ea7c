package handlers

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/mijikai/mijikai/app/dto"
	businessflow "github.com/mijikai/mijikai/business_flow"
)

// CreateLinkHandlerInterface defines the contract for link creation
type CreateLinkHandlerInterface interface {
	Create(c fiber.Ctx) error
}

type CreateLinkHandler struct {
	flow      businessflow.ShortenFlow
	validator *validator.Validate
}

func NewCreateLinkHandler(flow businessflow.ShortenFlow) CreateLinkHandlerInterface {
	return &CreateLinkHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// Create runs the creation pipeline and returns the short URL
// @Summary Create Short Link
// @Tags Links
// @Accept json
// @Produce json
// @Param request body dto.CreateLinkRequest true "Creation request"
// @Success 200 {object} dto.CreateLinkResponse
// @Failure 400 {object} dto.ErrorEnvelope
// @Failure 403 {object} dto.ErrorEnvelope
// @Failure 409 {object} dto.ErrorEnvelope
// @Failure 500 {object} dto.ErrorEnvelope
// @Router /api/create [post]
func (h *CreateLinkHandler) Create(c fiber.Ctx) error {
	var req dto.CreateLinkRequest
	if err := c.Bind().Body(&req); err != nil {
		return ErrorResponse(c, businessflow.CodeURLInvalidFormat)
	}

	if err := h.validator.Struct(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			log.Println("create link validation failed:", getValidationErrorMessage(fieldErrs[0]))
		}
		return ErrorResponse(c, businessflow.CodeURLInvalidFormat)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get(businessflow.RequestIDKey))

	resp, err := h.flow.CreateLink(createRequestContext(c, "/api/create"), &req, metadata)
	if err != nil {
		if be, ok := businessflow.AsBusinessError(err); ok {
			if be.Code == businessflow.CodeInternalServerError || be.Code == businessflow.CodeDatabaseInsertFailed {
				log.Println("create link failed:", err)
			}
		} else {
			log.Println("create link failed:", err)
		}
		return BusinessErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
