package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/api/handlers"
	"github.com/maheshrc27/postqueue/internal/api/middleware"
	job "github.com/maheshrc27/postqueue/internal/jobs"
	"github.com/maheshrc27/postqueue/internal/lock"
	"github.com/maheshrc27/postqueue/internal/metrics"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/publisher"
	"github.com/maheshrc27/postqueue/internal/queue"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/migrations"
	"github.com/maheshrc27/postqueue/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

const platformAPITimeout = 10 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	metrics.SetEnabled(cfg.MetricsEnabled)

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	queueRepo := repository.NewQueueRepository(db)
	postRepo := repository.NewPostRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)

	registry := newPublisherRegistry(ctx, cfg, postRepo, postMediaRepo, socialAccountRepo)

	tickScheduler := queue.NewAsynqTickScheduler(client)
	locker := lock.NewRedisLocker(rdb)

	managers := func(organizationID, timezone string) *queue.Manager {
		if timezone == "" {
			timezone = cfg.Queue.DefaultTimezone
		}
		return queue.NewManager(organizationID, timezone, queueRepo, postRepo, registry, queue.Options{
			MaxDeferrals: cfg.Queue.MaxDeferrals,
			ProcessBatch: cfg.Queue.ProcessBatch,
			Locker:       locker,
			LockTTL:      cfg.Queue.TickLockTTL,
			ClaimTimeout: cfg.Queue.ClaimTimeout,
			Scheduler:    tickScheduler,
		})
	}

	worker := queue.NewWorker(managers, cfg.Queue.DefaultTimezone)

	// cron jobs
	sweepJob := job.NewQueueSweepJob(queueRepo, worker, managers, cfg.Queue.DefaultTimezone, cfg.Queue.RetentionDays, cfg.Queue.ClaimTimeout)

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Queue.SweepInterval), sweepJob.ProcessDueQueues); err != nil {
		log.Fatalf("Invalid sweep interval: %v", err)
	}
	if err := c.AddFunc("@daily", sweepJob.ClearCompleted); err != nil {
		log.Fatalf("Invalid retention schedule: %v", err)
	}
	c.Start()

	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})

	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeProcessQueue, worker.HandleProcessQueueTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(fiber.StatusOK)
	})
	if cfg.MetricsEnabled {
		app.Get("/metrics", func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
			metrics.WritePrometheus(c.Response().BodyWriter())
			return nil
		})
	}

	orgMiddleware := middleware.NewOrganizationMiddleware(cfg.SecretKey, cfg.Queue.DefaultTimezone)

	api := app.Group("/api")
	api.Use(orgMiddleware.Handler())

	queueHandler := handlers.NewQueueHandler(managers)
	queueHandler.Register(api)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, server, c, db)
}

func newPublisherRegistry(
	ctx context.Context,
	cfg *config.Config,
	posts repository.PostRepository,
	media repository.PostMediaRepository,
	accounts repository.SocialAccountRepository) *publisher.Registry {
	registry := publisher.NewRegistry()

	if cfg.Publisher.Simulate {
		registry.SetFallback(publisher.NewSimulated(cfg.Publisher.SimulatedSuccessRate, cfg.Publisher.SimulatedDelay))
	}

	if cfg.SecretKey == "" {
		slog.Warn("SECRET_KEY is not set, platform publishers are disabled")
		return registry
	}
	cipher, err := utils.NewTokenCipher([]byte(cfg.SecretKey))
	if err != nil {
		log.Fatalf("Invalid SECRET_KEY: %v", err)
	}
	content := publisher.NewContentSource(posts, media, accounts, cipher)

	httpClient := func(p models.Platform) *http.Client {
		return publisher.NewThrottledClient(p, cfg.Publisher.PlatformAPIRPS, platformAPITimeout)
	}

	var mediaSource publisher.MediaSource = publisher.NewHTTPMediaSource(httpClient(models.PlatformYoutube))
	if cfg.R2.Enabled() {
		store, err := publisher.NewR2MediaStore(ctx, cfg.R2)
		if err != nil {
			log.Fatalf("Failed to configure R2 media store: %v", err)
		}
		mediaSource = store
	}

	registry.Register(models.PlatformYoutube, publisher.NewYouTube(content, mediaSource, httpClient(models.PlatformYoutube)))
	registry.Register(models.PlatformTiktok, publisher.NewTikTok(content, httpClient(models.PlatformTiktok)))
	registry.Register(models.PlatformInstagram, publisher.NewInstagram(content, httpClient(models.PlatformInstagram)))

	return registry
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
