package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils/response"
)

// ServiceError maps the service error taxonomy onto HTTP responses
func ServiceError(c *fiber.Ctx, err error) error {
	var (
		ve  *services.ValidationError
		de  *services.DuplicateError
		re  *services.ReferentialBlockError
		nf  *services.NotFoundError
		ise *services.InvoiceStateError
		tf  *services.TransactionFailure
	)

	switch {
	case errors.As(err, &ve):
		return response.ValidationFields(c, "Validation failed", ve.Fields)
	case errors.As(err, &de):
		return response.ConflictWithDetails(c, de.Error(), "DUPLICATE", fiber.Map{
			"entity": de.Entity,
			"field":  de.Field,
			"value":  de.Value,
		})
	case errors.As(err, &re):
		return response.ConflictWithDetails(c, re.Error(), "BLOCKED", fiber.Map{
			"entity":  re.Entity,
			"id":      re.ID,
			"reasons": re.Reasons,
		})
	case errors.As(err, &ise):
		return response.Error(c, fiber.StatusConflict, ise.Error(), "INVALID_STATE")
	case errors.As(err, &nf):
		return response.NotFound(c, nf.Error())
	case errors.Is(err, services.ErrForbidden):
		return response.Forbidden(c, "Insufficient permissions")
	case errors.As(err, &tf):
		return response.InternalServerError(c, tf.Op+" failed")
	default:
		log.Printf("unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return response.InternalServerError(c, "")
	}
}

// ParseID reads a positive integer route parameter
func ParseID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ParsePage reads page and limit query parameters
func ParsePage(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
