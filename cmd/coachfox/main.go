package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/cache"
	"github.com/ManuelReschke/CoachFox/internal/pkg/database"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
	"github.com/ManuelReschke/CoachFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CoachFox/internal/pkg/mail"
	"github.com/ManuelReschke/CoachFox/internal/pkg/router"
)

func main() {
	app, jobs := NewApplication()
	jobs.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Printf("Shutting down...")
		jobs.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
	_ = cache.Close()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	cfg := billing.LoadConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Printf("Warning: billing configuration incomplete: %v", err)
	}

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/coachfox to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	jobs := jobqueue.NewManager(cache.GetClient(), env.GetEnvInt("JOBQUEUE_WORKERS", 3), mail.NewSMTPMailerFromEnv(), nil)
	svc := billing.NewService(
		repos.Billing,
		billing.NewStripeGateway(cfg.SecretKey, cfg.GatewayTimeout),
		cfg.Catalog(),
		cfg,
		billing.WithNotifier(jobs.Notifier()),
	)
	jobs.RegisterResyncer(svc)

	var limiterStorage fiber.Storage
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cache.Ping(pingCtx); err == nil {
		limiterStorage = cache.NewLimiterStorage()
	} else {
		log.Printf("Warning: rate limiter falls back to in-memory storage: %v", err)
	}
	cancel()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "CoachFox",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Printf("Warning: openapi.yml not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Repositories:   repos,
		Billing:        svc,
		Reconciler:     billing.NewReconciler(svc, cfg.WebhookSecret),
		Gate:           entitlements.NewGate(repos.Billing, repos.Client, cfg.Catalog()),
		Resync:         jobs,
		LimiterStorage: limiterStorage,
		RateLimit:      env.GetEnvInt("API_RATE_LIMIT", 120),
		RateWindow:     env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
		RequestTimeout: cfg.GatewayTimeout + 5*time.Second,
	})

	return app, jobs
}
