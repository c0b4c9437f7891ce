package utils

import (
	"log"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/database"
)

// MakeHTTPHandleFunc adapts a handler that needs the store to a fiber handler
func MakeHTTPHandleFunc(handler func(c *fiber.Ctx, store database.Storage) error, store database.Storage) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := handler(c, store); err != nil {
			log.Printf("handler error on %s %s: %v", c.Method(), c.Path(), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return nil
	}
}
