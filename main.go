package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nrehberg/plansync/app/repository"
	"github.com/nrehberg/plansync/internal/pkg/cache"
	"github.com/nrehberg/plansync/internal/pkg/database"
	"github.com/nrehberg/plansync/internal/pkg/env"
	"github.com/nrehberg/plansync/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4100")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		BodyLimit:             1 << 20, // webhook payloads are small, 1 MiB is generous
		DisableStartupMessage: !env.IsDev(),
	})
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
