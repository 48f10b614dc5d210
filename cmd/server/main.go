package main

import (
	"alcyxob/group-coach/internal/api"
	"alcyxob/group-coach/internal/config"
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/notify"
	"alcyxob/group-coach/internal/repository"
	"alcyxob/group-coach/internal/repository/memory"
	"alcyxob/group-coach/internal/repository/mongo"
	"alcyxob/group-coach/internal/service"
	"alcyxob/group-coach/internal/storage"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"
)

// repositories is the storage backend selected by database.driver.
type repositories struct {
	users       repository.UserRepository
	groups      repository.GroupRepository
	assignments repository.AssignmentRepository
	credits     repository.CreditRepository
	uploads     repository.UploadRepository
	close       func()
}

// @title Group Coach API
// @version 1.0
// @description Group workout assignments, athlete review of coach-logged sessions, and credit-metered AI actions.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("Starting Group Coach server", "address", cfg.Server.Address, "db_driver", cfg.Database.Driver)

	if cfg.JWT.Secret == "" {
		logger.Error("jwt.secret must be set")
		os.Exit(1)
	}

	// --- Repositories ---
	repos, err := openRepositories(cfg.Database, logger)
	if err != nil {
		logger.Error("Could not open database", "error", err)
		os.Exit(1)
	}
	defer repos.close()

	// --- Storage / notifications / AI gateway ---
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	var fileStorage storage.FileStorage
	if cfg.S3.BucketName != "" {
		fileStorage, err = storage.NewS3Storage(startupCtx, cfg.S3, logger)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("s3.bucket_name not set; form-check uploads are disabled")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SES.From != "" {
		notifier, err = notify.NewSESNotifier(startupCtx, cfg.SES, logger)
		if err != nil {
			logger.Error("Failed to initialize SES notifier", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Gateway.Endpoint == "" {
		logger.Warn("gateway.endpoint not set; AI actions will fail and be refunded")
	}
	aiClient := gateway.NewHTTPClient(cfg.Gateway.Endpoint, cfg.Gateway.APIKey, cfg.Gateway.Timeout, logger)

	// --- Services ---
	ledger := service.NewLedgerService(repos.credits, cfg.Credits.ExemptUserIDs, logger)
	authService := service.NewAuthService(repos.users, ledger, cfg.Credits.SignupBonus, cfg.JWT.Secret, cfg.JWT.Expiration, logger)
	groupService := service.NewGroupService(repos.users, repos.groups, logger)
	batchService := service.NewBatchService(repos.groups, repos.assignments, logger)
	assignmentService := service.NewAssignmentService(repos.users, repos.groups, repos.assignments, notifier, logger)
	generationService := service.NewGenerationService(ledger, aiClient, batchService, repos.groups, repos.uploads, fileStorage, costTable(cfg.Credits.Costs), logger)

	// --- HTTP ---
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg.JWT.Secret, api.Services{
		Auth:        authService,
		Groups:      groupService,
		Batches:     batchService,
		Assignments: assignmentService,
		Ledger:      ledger,
		Generation:  generationService,
	}, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      corsHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		logger.Info("Server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ListenAndServe failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exiting")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.LevelVar
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.Set(slog.LevelInfo)
	}
	if cfg.Format == "tint" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: &level, TimeFormat: time.Kitchen}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
}

func openRepositories(cfg config.DatabaseConfig, logger *slog.Logger) (*repositories, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory database; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			users:       store.Users,
			groups:      store.Groups,
			assignments: store.Assignments,
			credits:     store.Credits,
			uploads:     store.Uploads,
			close:       func() {},
		}, nil
	}

	client, err := mongo.ConnectDB(cfg.URI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.Name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := mongo.EnsureIndexes(ctx, db, logger); err != nil {
		_ = mongo.DisconnectDB(client)
		return nil, err
	}
	logger.Info("Database connection established", "database", cfg.Name)

	return &repositories{
		users:       mongo.NewMongoUserRepository(db),
		groups:      mongo.NewMongoGroupRepository(db),
		assignments: mongo.NewMongoAssignmentRepository(db),
		credits:     mongo.NewMongoCreditRepository(db),
		uploads:     mongo.NewMongoUploadRepository(db),
		close: func() {
			if err := mongo.DisconnectDB(client); err != nil {
				logger.Error("Failed to disconnect MongoDB", "error", err)
			}
		},
	}, nil
}

func costTable(c config.CostsConfig) domain.CostTable {
	return domain.CostTable{
		Chat:    c.Chat,
		Workout: c.Workout,
		Program: c.Program,
		FormCheck: map[domain.FormCheckTier]int64{
			domain.FormCheckBasic:    c.FormCheckBasic,
			domain.FormCheckStandard: c.FormCheckStandard,
			domain.FormCheckDetailed: c.FormCheckDetailed,
		},
		GroupWorkoutPerAthlete: c.GroupWorkoutPerAthlete,
	}
}
