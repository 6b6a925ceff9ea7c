package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v3"

	businessflow "github.com/mijikai/mijikai/business_flow"
)

// RedirectHandlerInterface defines the contract for short link resolution
type RedirectHandlerInterface interface {
	Visit(c fiber.Ctx) error
}

type RedirectHandler struct {
	flow businessflow.VisitFlow
}

func NewRedirectHandler(flow businessflow.VisitFlow) RedirectHandlerInterface {
	return &RedirectHandler{flow: flow}
}

// Visit resolves the short id and issues a permanent redirect. The API
// prefix and the empty path are never treated as short ids.
// @Summary Visit Short Link
// @Tags Links
// @Param uid path string true "Short link id"
// @Success 301 {string} string "Redirect"
// @Failure 404 {object} any
// @Router /{uid} [get]
func (h *RedirectHandler) Visit(c fiber.Ctx) error {
	uid := c.Params("uid")
	if uid == "" || strings.HasPrefix(uid, "api") {
		return c.SendStatus(fiber.StatusNotFound)
	}

	target, err := h.flow.Resolve(createRequestContext(c, "/"+uid), uid)
	if err != nil {
		if businessflow.IsLinkNotFound(err) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		log.Println("resolve short link failed:", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Redirect().Status(fiber.StatusMovedPermanently).To(target)
}
