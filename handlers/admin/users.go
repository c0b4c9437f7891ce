package admin

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/handlers"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/utils/auth"
	"github.com/sahilchouksey/school-backoffice/utils/response"
	"github.com/sahilchouksey/school-backoffice/utils/validation"
	"gorm.io/gorm"
)

// CreateUserRequest represents the request body for adding a staff account
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=super_admin admin finance registrar teacher"`
	SchoolID *uint  `json:"school_id"`
}

// ListUsers retrieves staff accounts
// GET /admin/users
func ListUsers(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	page, limit := handlers.ParsePage(c)
	query := db.WithContext(c.UserContext()).Model(&model.User{})
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	var users []model.User
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}
	return response.Paginated(c, users, response.CalculatePagination(page, limit, total))
}

// CreateUser adds a staff account. Only super admins may create other admins.
// POST /admin/users
func CreateUser(c *fiber.Ctx, store database.Storage) error {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return response.InternalServerError(c, "Database connection error")
	}

	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	v := validation.NewValidator()
	if err := v.ValidateStruct(&req); err != nil {
		return response.ValidationFields(c, "Validation failed", validation.FormatValidationErrors(err))
	}

	callerRole, _ := c.Locals("user_role").(string)
	if (req.Role == model.RoleAdmin || req.Role == model.RoleSuperAdmin) && callerRole != model.RoleSuperAdmin {
		return response.Forbidden(c, "Only super admins can create admin accounts")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	user := model.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         req.Role,
		SchoolID:     req.SchoolID,
	}
	if err := db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return response.Conflict(c, "A user with this email already exists")
		}
		return response.InternalServerError(c, "Failed to create user")
	}

	return response.Created(c, user)
}
