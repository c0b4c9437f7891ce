package router

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/handlers"
	admin_handlers "github.com/sahilchouksey/school-backoffice/handlers/admin"
	auth_handlers "github.com/sahilchouksey/school-backoffice/handlers/auth"
	invoice_handlers "github.com/sahilchouksey/school-backoffice/handlers/invoice"
	program_handlers "github.com/sahilchouksey/school-backoffice/handlers/program"
	"github.com/sahilchouksey/school-backoffice/model"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/utils"
	"github.com/sahilchouksey/school-backoffice/utils/auth"
	"github.com/sahilchouksey/school-backoffice/utils/cache"
	"github.com/sahilchouksey/school-backoffice/utils/middleware"
	"gorm.io/gorm"
)

// Services bundles the core services shared by the routes and the cron jobs
type Services struct {
	Activity   *services.ActivityService
	Programs   *services.ProgramService
	Curriculum *services.CurriculumService
	Bulk       *services.BulkService
	Ledger     *services.LedgerService
}

// NewServices wires the core services. notifier may be nil.
func NewServices(db *gorm.DB, notifier services.InvoiceNotifier) *Services {
	activity := services.NewActivityService(db)
	programs := services.NewProgramService(db, activity)
	return &Services{
		Activity:   activity,
		Programs:   programs,
		Curriculum: services.NewCurriculumService(db, activity),
		Bulk:       services.NewBulkService(programs, activity),
		Ledger:     services.NewLedgerService(db, activity, notifier),
	}
}

// Options carries what SetupRoutes needs besides the store
type Options struct {
	JWTManager *auth.JWTManager
	// Cache enables login lockouts when set
	Cache    *cache.RedisCache
	Security *middleware.SecurityConfig
}

func SetupRoutes(app *fiber.App, store database.Storage, svc *Services, opts Options) {
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	var bruteForceProtection *middleware.BruteForceProtection
	if opts.Cache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(opts.Cache)
	} else {
		log.Println("Warning: Redis not configured. Brute force protection will be disabled.")
	}

	authMiddleware := middleware.NewAuthMiddleware(opts.JWTManager, db)
	authHandler := auth_handlers.NewAuthHandler(db, opts.JWTManager, bruteForceProtection)
	programHandler := program_handlers.NewProgramHandler(svc.Programs, svc.Curriculum, svc.Bulk)
	invoiceHandler := invoice_handlers.NewInvoiceHandler(svc.Ledger)

	if opts.Security != nil {
		if opts.Security.RateLimitWindow == 0 {
			opts.Security.RateLimitWindow = time.Minute
		}
		middleware.SetupSecurity(app, *opts.Security)
	}

	// Health check endpoint (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	api := app.Group("/api/v1")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.Me)

	// Programs: reads for any staff, writes gated by the services
	programs := api.Group("/programs", authMiddleware.Required())
	programs.Get("/", programHandler.ListPrograms)
	programs.Post("/", programHandler.CreateProgram)
	programs.Get("/suggest-code", programHandler.SuggestCode)
	programs.Post("/bulk", programHandler.Bulk)
	programs.Get("/:id", programHandler.GetProgram)
	programs.Put("/:id", programHandler.UpdateProgram)
	programs.Patch("/:id/status", programHandler.SetStatus)
	programs.Post("/:id/clone", programHandler.CloneProgram)
	programs.Delete("/:id", programHandler.DeleteProgram)
	programs.Post("/:id/courses", programHandler.CreateCourse)
	programs.Delete("/:id/courses/:courseId", programHandler.RemoveCourse)
	programs.Get("/:id/requirements", programHandler.GetRequirements)
	programs.Put("/:id/requirements", programHandler.UpdateRequirements)

	// Invoices and payments
	invoices := api.Group("/invoices", authMiddleware.Required())
	invoices.Get("/", invoiceHandler.ListInvoices)
	invoices.Post("/", invoiceHandler.CreateInvoice)
	invoices.Post("/generate", invoiceHandler.GenerateEnrollmentInvoices)
	invoices.Get("/:id", invoiceHandler.GetInvoice)
	invoices.Post("/:id/payments", invoiceHandler.RecordPayment)
	invoices.Patch("/:id/status", invoiceHandler.OverrideStatus)
	invoices.Post("/:id/cancel", invoiceHandler.CancelInvoice)

	transactions := api.Group("/transactions", authMiddleware.Required())
	transactions.Post("/:id/complete", invoiceHandler.CompleteTransaction)
	transactions.Post("/:id/fail", invoiceHandler.FailTransaction)

	// Admin routes
	admin := api.Group("/admin", authMiddleware.Required(), authMiddleware.RequireRole(model.RoleAdmin, model.RoleSuperAdmin))
	admin.Get("/activity-logs", utils.MakeHTTPHandleFunc(admin_handlers.ListActivityLogs, store))
	admin.Get("/cron-logs", utils.MakeHTTPHandleFunc(admin_handlers.ListCronLogs, store))
	admin.Get("/invoices/:id/notifications", utils.MakeHTTPHandleFunc(admin_handlers.ListInvoiceNotifications, store))
	admin.Get("/users", utils.MakeHTTPHandleFunc(admin_handlers.ListUsers, store))
	admin.Post("/users", utils.MakeHTTPHandleFunc(admin_handlers.CreateUser, store))
}
