package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-attendance-service/internal/automation"
	"github.com/vhvplatform/go-attendance-service/internal/browser"
	"github.com/vhvplatform/go-attendance-service/internal/calendar"
	"github.com/vhvplatform/go-attendance-service/internal/consumer"
	"github.com/vhvplatform/go-attendance-service/internal/handler"
	"github.com/vhvplatform/go-attendance-service/internal/middleware"
	"github.com/vhvplatform/go-attendance-service/internal/repository"
	"github.com/vhvplatform/go-attendance-service/internal/scheduler"
	"github.com/vhvplatform/go-attendance-service/internal/secret"
	"github.com/vhvplatform/go-attendance-service/internal/service"
	"github.com/vhvplatform/go-attendance-service/internal/shared/config"
	"github.com/vhvplatform/go-attendance-service/internal/shared/logger"
	"github.com/vhvplatform/go-attendance-service/internal/shared/mongodb"
	"github.com/vhvplatform/go-attendance-service/internal/shared/rabbitmq"
)

// stores bundles the selected persistence backend
type stores struct {
	settings repository.SettingsStore
	history  repository.NotificationStore
	ping     func(ctx context.Context) error
	close    func()
}

func main() {
	// Initialize logger
	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting Attendance Service...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}
	if configured, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err == nil {
		log = configured
		defer log.Sync()
	}

	codec, err := secret.NewCodec(cfg.Secret.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize secret codec", "error", err)
	}

	// Initialize settings store
	st, err := openStores(cfg, log)
	if err != nil {
		log.Fatal("Failed to open settings store", "driver", cfg.Store.Driver, "error", err)
	}
	defer st.close()

	// Initialize RabbitMQ
	var (
		rabbitMQClient *rabbitmq.RabbitMQClient
		publisher      service.EventPublisher
	)
	if cfg.RabbitMQ.Enabled {
		rabbitMQClient, err = rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", "error", err)
		}
		defer rabbitMQClient.Close()
		publisher = rabbitMQClient
	}

	// Leave calendar
	leaveEngine, err := calendar.NewEngine(st.settings, calendar.NewHTTPFetcher(cfg.Calendar.FetchTimeout), calendar.Options{
		TTL:             cfg.Calendar.CacheTTL,
		CacheSize:       cfg.Calendar.CacheSize,
		Keywords:        cfg.Calendar.LeaveKeywords,
		DefaultTimezone: cfg.Schedule.DefaultTimezone,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize leave calendar", "error", err)
	}

	// Portal automation
	launcher := browser.NewLauncher(cfg.Browser, log)
	executor := automation.NewExecutor(st.settings, codec, launcher, cfg.Portal, cfg.Browser, log)

	// Notifications
	templates, err := service.LoadTemplates(cfg.Notification.DefaultLanguage)
	if err != nil {
		log.Fatal("Failed to load notification templates", "error", err)
	}
	notificationService := service.NewNotificationService(st.settings, codec, st.history, publisher, templates, cfg.Notification, log)

	// Initialize Scheduler
	attendanceScheduler := scheduler.NewScheduler(st.settings, leaveEngine, executor, notificationService, cfg.Schedule, log)
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	count, err := attendanceScheduler.InitializeAllSchedules(initCtx)
	initCancel()
	if err != nil {
		log.Error("Failed to initialize schedules", "error", err)
	}
	log.Info("Schedules initialized", "users", count)
	attendanceScheduler.Start()

	settingsService := service.NewSettingsService(st.settings, codec, attendanceScheduler, log)

	// Start RabbitMQ consumer
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if rabbitMQClient != nil {
		eventConsumer := consumer.NewEventConsumer(rabbitMQClient, attendanceScheduler, leaveEngine, log)
		if err := eventConsumer.Setup(); err != nil {
			log.Fatal("Failed to set up event consumer", "error", err)
		}
		go eventConsumer.Run(consumerCtx)
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.Handlers{
		Schedules:     handler.NewScheduleHandler(attendanceScheduler, log),
		Automation:    handler.NewAutomationHandler(attendanceScheduler, st.settings, leaveEngine, cfg.Schedule.DefaultTimezone, log),
		Settings:      handler.NewSettingsHandler(settingsService, log),
		Notifications: handler.NewNotificationHandler(st.history, log),
	}, middleware.NewUserRateLimiter(cfg.Server.RateLimitPerUser, cfg.Server.RateLimitBurst), func(ctx context.Context) error {
		if err := st.ping(ctx); err != nil {
			return err
		}
		if rabbitMQClient != nil && rabbitMQClient.IsClosed() {
			return fmt.Errorf("rabbitmq connection closed")
		}
		return nil
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Attendance Service started", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Attendance Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stopConsumer()
	attendanceScheduler.Stop(ctx)

	log.Info("Attendance Service stopped")
}

// openStores connects the configured settings store and prepares its schema
func openStores(cfg *config.Config, log *logger.Logger) (*stores, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		store, err := repository.OpenSQLite(cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Info("Using SQLite settings store", "path", cfg.SQLite.Path)
		return &stores{
			settings: store,
			history:  store,
			ping:     store.Ping,
			close:    func() { store.Close() },
		}, nil

	default:
		mongoClient, err := mongodb.NewMongoClient(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			return nil, err
		}
		profileRepo := repository.NewProfileRepository(mongoClient, log)
		notificationRepo := repository.NewNotificationRepository(mongoClient)
		if err := profileRepo.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to ensure profile indexes", "error", err)
		}
		if err := notificationRepo.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to ensure notification indexes", "error", err)
		}
		log.Info("Using MongoDB settings store", "database", cfg.MongoDB.Database)
		return &stores{
			settings: profileRepo,
			history:  notificationRepo,
			ping:     mongoClient.Ping,
			close:    func() { mongoClient.Disconnect(context.Background()) },
		}, nil
	}
}
