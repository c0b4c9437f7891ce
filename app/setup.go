package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/school-backoffice/api"
	"github.com/sahilchouksey/school-backoffice/config"
	"github.com/sahilchouksey/school-backoffice/database"
	"github.com/sahilchouksey/school-backoffice/router"
	"github.com/sahilchouksey/school-backoffice/services"
	"github.com/sahilchouksey/school-backoffice/services/cron"
	"github.com/sahilchouksey/school-backoffice/services/sms"
	"github.com/sahilchouksey/school-backoffice/utils/auth"
	"github.com/sahilchouksey/school-backoffice/utils/cache"
	"github.com/sahilchouksey/school-backoffice/utils/middleware"
	"gorm.io/gorm"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}
	if getEnv.JWT_SECRET == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		return err
	}
	defer store.Close()

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		return fmt.Errorf("failed to get GORM DB instance")
	}

	// Redis is optional: without it logins are not rate limited and notifications are not de-duplicated
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	notifier := buildNotifier(db, getEnv, redisCache)
	svc := router.NewServices(db, notifier)

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager = cron.NewCronManager(db, svc.Ledger, auth.NewBlacklistService(db))
		if err := cronManager.Start(); err != nil {
			log.Printf("Warning: Failed to start cron jobs: %v", err)
			cronManager = nil
		}
	}
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
	}()

	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	router.SetupRoutes(app, store, svc, router.Options{
		JWTManager: auth.NewJWTManager(auth.JWTConfig{
			Secret: getEnv.JWT_SECRET,
			Expiry: time.Duration(getEnv.JWT_EXPIRY_HOURS) * time.Hour,
			Issuer: getEnv.JWT_ISSUER,
		}),
		Cache: redisCache,
		Security: &middleware.SecurityConfig{
			AllowedOrigins:    getEnv.ALLOWED_ORIGINS,
			RateLimitRequests: getEnv.RATE_LIMIT,
			RateLimitWindow:   time.Minute,
		},
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down API Server")
		if err := server.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	return server.Run()
}

// buildNotifier wires email and SMS delivery from the environment
func buildNotifier(db *gorm.DB, env *config.EnviornmentVariable, redisCache *cache.RedisCache) services.InvoiceNotifier {
	var email services.EmailSender
	emailService := services.NewEmailService(env)
	if emailService.IsConfigured() {
		email = emailService
	} else {
		log.Println("[NOTIFY] SMTP not configured, invoice emails disabled")
	}

	var smsSender services.SMSSender
	if env.SMS_ENABLED {
		client, err := sms.NewSNSClient(sms.Config{Region: env.AWS_REGION, SenderID: env.SMS_SENDER_ID})
		if err != nil {
			log.Printf("[NOTIFY] SMS disabled: %v", err)
		} else {
			smsSender = client
		}
	}

	if email == nil && smsSender == nil {
		return services.NoopNotifier{}
	}

	var dedup services.Deduper
	if redisCache != nil {
		dedup = redisCache
	}
	return services.NewNotificationDispatcher(db, email, smsSender, dedup)
}
