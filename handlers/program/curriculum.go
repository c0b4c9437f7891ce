package program

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/handlers"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils/middleware"
	"github.com/sahilchouksey/school-backoffice/utils/response"
)

// CreateCourse handles POST /api/v1/programs/:id/courses
func (h *ProgramHandler) CreateCourse(c *fiber.Ctx) error {
	programID, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	var req services.CourseInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	course, err := h.curriculum.CreateCourse(c.UserContext(), middleware.GetAuthContext(c), programID, req)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, course)
}

// RemoveCourse handles DELETE /api/v1/programs/:id/courses/:courseId?hard=true
func (h *ProgramHandler) RemoveCourse(c *fiber.Ctx) error {
	programID, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}
	courseID, ok := handlers.ParseID(c, "courseId")
	if !ok {
		return response.BadRequest(c, "Invalid course id")
	}

	result, err := h.curriculum.RemoveCourse(c.UserContext(), middleware.GetAuthContext(c), programID, courseID, c.QueryBool("hard"))
	if err != nil {
		return handlers.ServiceError(c, err)
	}

	message := "Course deactivated"
	if result.Hard {
		message = "Course deleted"
	}
	return response.SuccessWithMessage(c, message, result)
}

// GetRequirements handles GET /api/v1/programs/:id/requirements
func (h *ProgramHandler) GetRequirements(c *fiber.Ctx) error {
	programID, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	view, err := h.curriculum.GetRequirements(c.UserContext(), middleware.GetAuthContext(c), programID)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, view)
}

// UpdateRequirements handles PUT /api/v1/programs/:id/requirements
func (h *ProgramHandler) UpdateRequirements(c *fiber.Ctx) error {
	programID, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	var req services.RequirementsInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.curriculum.UpdateRequirements(c.UserContext(), middleware.GetAuthContext(c), programID, req)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Requirements updated", result)
}
