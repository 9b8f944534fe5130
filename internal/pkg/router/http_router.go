package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nrehberg/plansync/app/controllers"
	"github.com/nrehberg/plansync/internal/pkg/constants"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhook ingestion. Signature verification is the authentication for
	// this endpoint, so it sits outside the token-guarded API group.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
