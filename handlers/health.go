package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/utils/response"
)

func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		log.Printf("[HEALTH] database check failed: %v", err)
		return response.ServiceUnavailable(c, "Database unreachable", err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
