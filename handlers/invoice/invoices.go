package invoice

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/handlers"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils/middleware"
	"github.com/sahilchouksey/school-backoffice/utils/response"
	"github.com/shopspring/decimal"
)

// InvoiceHandler handles invoice and payment requests
type InvoiceHandler struct {
	ledger *services.LedgerService
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(ledger *services.LedgerService) *InvoiceHandler {
	return &InvoiceHandler{ledger: ledger}
}

// CreateInvoiceRequest accepts due_date as YYYY-MM-DD or RFC 3339
type CreateInvoiceRequest struct {
	StudentID    uint              `json:"student_id"`
	ClassBatchID uint              `json:"class_batch_id"`
	InvoiceType  model.InvoiceType `json:"invoice_type"`
	Amount       decimal.Decimal   `json:"amount"`
	DueDate      string            `json:"due_date"`
	Description  string            `json:"description"`
}

func parseDueDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, err == nil
}

// CreateInvoice handles POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *fiber.Ctx) error {
	var req CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	due, ok := parseDueDate(req.DueDate)
	if !ok {
		return handlers.ServiceError(c, services.NewValidationError("due_date", "due_date must be YYYY-MM-DD or RFC 3339"))
	}

	invoice, err := h.ledger.CreateInvoice(c.UserContext(), middleware.GetAuthContext(c), services.InvoiceInput{
		StudentID:    req.StudentID,
		ClassBatchID: req.ClassBatchID,
		InvoiceType:  req.InvoiceType,
		Amount:       req.Amount,
		DueDate:      due,
		Description:  req.Description,
	})
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, invoice)
}

// GenerateRequest selects the enrollment to bill
type GenerateRequest struct {
	StudentID    uint `json:"student_id"`
	ClassBatchID uint `json:"class_batch_id"`
}

// GenerateEnrollmentInvoices handles POST /api/v1/invoices/generate
func (h *InvoiceHandler) GenerateEnrollmentInvoices(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.StudentID == 0 || req.ClassBatchID == 0 {
		return handlers.ServiceError(c, services.NewValidationError("student_id", "student_id and class_batch_id are required"))
	}

	invoices, err := h.ledger.GenerateEnrollmentInvoices(c.UserContext(), middleware.GetAuthContext(c), req.StudentID, req.ClassBatchID)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, invoices)
}

// ListInvoices handles GET /api/v1/invoices
func (h *InvoiceHandler) ListInvoices(c *fiber.Ctx) error {
	page, limit := handlers.ParsePage(c)
	studentID, _ := strconv.ParseUint(c.Query("student_id"), 10, 64)
	classID, _ := strconv.ParseUint(c.Query("class_batch_id"), 10, 64)

	invoices, total, err := h.ledger.ListInvoices(c.UserContext(), middleware.GetAuthContext(c), services.InvoiceFilter{
		StudentID:    uint(studentID),
		ClassBatchID: uint(classID),
		Status:       model.InvoiceStatus(c.Query("status")),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Paginated(c, invoices, response.CalculatePagination(page, limit, total))
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid invoice id")
	}

	invoice, err := h.ledger.GetInvoice(c.UserContext(), middleware.GetAuthContext(c), id)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, invoice)
}

// RecordPayment handles POST /api/v1/invoices/:id/payments
func (h *InvoiceHandler) RecordPayment(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid invoice id")
	}

	var req services.PaymentInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	invoice, err := h.ledger.RecordPayment(c.UserContext(), middleware.GetAuthContext(c), id, req)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Payment recorded", invoice)
}

// CompleteTransaction handles POST /api/v1/transactions/:id/complete
func (h *InvoiceHandler) CompleteTransaction(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid transaction id")
	}

	invoice, err := h.ledger.CompleteTransaction(c.UserContext(), middleware.GetAuthContext(c), id)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Transaction completed", invoice)
}

// ReasonRequest carries the free-text reason admins must give
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// FailTransaction handles POST /api/v1/transactions/:id/fail
func (h *InvoiceHandler) FailTransaction(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid transaction id")
	}

	var req ReasonRequest
	_ = c.BodyParser(&req)

	if err := h.ledger.FailTransaction(c.UserContext(), middleware.GetAuthContext(c), id, req.Reason); err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Transaction marked failed", nil)
}

// OverrideRequest sets an invoice status by hand
type OverrideRequest struct {
	Status model.InvoiceStatus `json:"status"`
	Reason string              `json:"reason"`
}

// OverrideStatus handles PATCH /api/v1/invoices/:id/status
func (h *InvoiceHandler) OverrideStatus(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid invoice id")
	}

	var req OverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	invoice, err := h.ledger.OverrideInvoiceStatus(c.UserContext(), middleware.GetAuthContext(c), id, req.Status, req.Reason)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Invoice status overridden", invoice)
}

// CancelInvoice handles POST /api/v1/invoices/:id/cancel
func (h *InvoiceHandler) CancelInvoice(c *fiber.Ctx) error {
	id, ok := handlers.ParseID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid invoice id")
	}

	var req ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	invoice, err := h.ledger.CancelInvoice(c.UserContext(), middleware.GetAuthContext(c), id, req.Reason)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.SuccessWithMessage(c, "Invoice cancelled", invoice)
}
