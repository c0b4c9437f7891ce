package program

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/handlers"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils/middleware"
	"github.com/sahilchouksey/school-backoffice/utils/response"
)

// ProgramHandler handles program, curriculum and bulk requests
type ProgramHandler struct {
	programs   *services.ProgramService
	curriculum *services.CurriculumService
	bulk       *services.BulkService
}

// NewProgramHandler creates a new program handler
func NewProgramHandler(programs *services.ProgramService, curriculum *services.CurriculumService, bulk *services.BulkService) *ProgramHandler {
	return &ProgramHandler{
		programs:   programs,
		curriculum: curriculum,
		bulk:       bulk,
	}
}

// ListPrograms handles GET /api/v1/programs
func (h *ProgramHandler) ListPrograms(c *fiber.Ctx) error {
	page, limit := handlers.ParsePage(c)
	filter := services.ProgramFilter{
		Status:      model.ProgramStatus(c.Query("status")),
		ProgramType: model.ProgramType(c.Query("program_type")),
		Page:        page,
		Limit:       limit,
	}
	actor := middleware.GetAuthContext(c)
	if actor.SchoolID != nil {
		filter.SchoolID = actor.SchoolID
	}

	programs, total, err := h.programs.ListPrograms(c.UserContext(), actor, filter)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Paginated(c, programs, response.CalculatePagination(page, limit, total))
}

// GetProgram handles GET /api/v1/programs/:id
func (h *ProgramHandler) GetProgram(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	program, err := h.programs.GetProgram(c.UserContext(), middleware.GetAuthContext(c), id)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, program)
}

// SuggestCode handles GET /api/v1/programs/suggest-code?name=
func (h *ProgramHandler) SuggestCode(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return response.BadRequest(c, "name is required")
	}

	code, err := h.programs.SuggestProgramCode(c.UserContext(), name)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, fiber.Map{"code": code})
}

// CreateProgram handles POST /api/v1/programs
func (h *ProgramHandler) CreateProgram(c *fiber.Ctx) error {
	var req services.ProgramInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	program, err := h.programs.CreateProgram(c.UserContext(), middleware.GetAuthContext(c), req)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, program)
}

// UpdateProgram handles PUT /api/v1/programs/:id
func (h *ProgramHandler) UpdateProgram(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	var req services.ProgramInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	program, err := h.programs.UpdateProgram(c.UserContext(), middleware.GetAuthContext(c), id, req)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Program updated successfully", program)
}

// StatusRequest changes a program's lifecycle status
type StatusRequest struct {
	Status model.ProgramStatus `json:"status"`
}

// SetStatus handles PATCH /api/v1/programs/:id/status
func (h *ProgramHandler) SetStatus(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.programs.SetProgramStatus(c.UserContext(), middleware.GetAuthContext(c), id, req.Status); err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Program status updated", fiber.Map{"id": id, "status": req.Status})
}

// CloneProgram handles POST /api/v1/programs/:id/clone
func (h *ProgramHandler) CloneProgram(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	clone, err := h.programs.CloneProgram(c.UserContext(), middleware.GetAuthContext(c), id)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, clone)
}

// DeleteProgram handles DELETE /api/v1/programs/:id
func (h *ProgramHandler) DeleteProgram(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid program id")
	}

	if err := h.programs.DeleteProgram(c.UserContext(), middleware.GetAuthContext(c), id); err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Program deleted successfully", nil)
}

// BulkRequest applies one action to many programs
type BulkRequest struct {
	Action services.BulkAction `json:"action"`
	IDs    []uint              `json:"ids"`
}

// Bulk handles POST /api/v1/programs/bulk. Partial failure still answers 200.
func (h *ProgramHandler) Bulk(c *fiber.Ctx) error {
	var req BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.bulk.ApplyBulkAction(c.UserContext(), middleware.GetAuthContext(c), req.Action, req.IDs)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, result)
}
