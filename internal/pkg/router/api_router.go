package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nrehberg/plansync/app/controllers"
	"github.com/nrehberg/plansync/internal/pkg/constants"
	"github.com/nrehberg/plansync/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(), middleware.APIKeyAuthMiddleware())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get(constants.EntitlementsRoute, controllers.HandleGetEntitlement)
	v1.Get("/metrics/webhooks", controllers.HandleWebhookMetrics)
	v1.Get("/metrics/subscriptions", controllers.HandleSubscriptionMetrics)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
