package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/api/swagger"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/handler"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/middleware"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/models"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/repository"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/service"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/cache"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/config"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/database"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/export"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/lock"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/logger"
	corsmiddleware "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/middleware/cors"
	reqidmiddleware "github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/middleware/requestid"
	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/storage"
)

// @title Heronix Scheduler API
// @version 1.0.0
// @description Scheduling engine for conflict detection, master scheduling and schedule health
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	dayStart, err := models.ParseClock(cfg.Scheduler.DayStart)
	if err != nil {
		logr.Fatal("invalid SCHEDULER_DAY_START", zap.Error(err))
	}

	validate := validator.New()
	locks := lock.NewKeyedMutex()
	metrics := service.NewMetricsService()

	courses := repository.NewCourseRepository(db)
	requests := repository.NewCourseRequestRepository(db)
	matrixRepo := repository.NewConflictMatrixRepository(db)
	rooms := repository.NewRoomRepository(db)
	schedules := repository.NewScheduleRepository(db)
	slots := repository.NewScheduleSlotRepository(db)
	sections := repository.NewSectionRepository(db)
	students := repository.NewStudentRepository(db)
	teachers := repository.NewTeacherRepository(db)
	waitlist := repository.NewWaitlistRepository(db)
	notifier := repository.NewRedisNotifier(rdb, cfg.Scheduler.NotifyChannel, logr)

	heatmaps := service.NewHeatmapCacheService(repository.NewCacheRepository(rdb, "scheduler", logr), metrics, cfg.Scheduler.HeatmapCacheTTL, cfg.Scheduler.CacheEnabled, logr)
	csvExporter := export.NewCSVExporter(',')

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		ClientID:          cfg.Auth.ClientID,
		ClientSecretHash:  cfg.Auth.ClientSecretHash,
		ClientRole:        models.UserRole(cfg.Auth.Role),
	})

	detector := service.NewConflictDetectorService(slots, schedules, db, locks, cfg.Scheduler.LockTimeout, metrics, logr)

	matrix := service.NewConflictMatrixService(requests, courses, matrixRepo, db, heatmaps, csvExporter, locks, service.ConflictMatrixConfig{
		LockTimeout: cfg.Scheduler.LockTimeout,
	}, logr)

	master := service.NewMasterScheduleService(service.MasterScheduleRepositories{
		Sections:   sections,
		Courses:    courses,
		Requests:   requests,
		Singletons: matrixRepo,
		Waitlist:   waitlist,
		Students:   students,
		Slots:      slots,
		Teachers:   teachers,
	}, notifier, db, locks, metrics, service.MasterScheduleConfig{
		PeriodsPerDay:    cfg.Scheduler.PeriodsPerDay,
		BalanceTolerance: cfg.Scheduler.BalanceTolerance,
		LockTimeout:      cfg.Scheduler.LockTimeout,
	}, logr)

	block := service.NewBlockScheduleService(service.BlockScheduleRepositories{
		Schedules: schedules,
		Slots:     slots,
		Courses:   courses,
		Teachers:  teachers,
		Rooms:     rooms,
		Requests:  requests,
	}, db, locks, metrics, validate, service.BlockScheduleConfig{
		Epoch:          cfg.Scheduler.BlockEpoch,
		DayStart:       dayStart,
		BlockMinutes:   cfg.Scheduler.BlockMinutes,
		PassingMinutes: cfg.Scheduler.PassingMinutes,
		BlocksPerDay:   cfg.Scheduler.BlocksPerDay,
		LockTimeout:    cfg.Scheduler.LockTimeout,
	}, logr)

	health, err := service.NewScheduleHealthService(service.ScheduleHealthRepositories{
		Schedules: schedules,
		Slots:     slots,
		Sections:  sections,
		Teachers:  teachers,
		Rooms:     rooms,
		Students:  students,
	}, cfg.Health, metrics, logr)
	if err != nil {
		logr.Fatal("invalid health configuration", zap.Error(err))
	}

	generator := service.NewScheduleGeneratorService(service.ScheduleGeneratorDeps{
		Schedules:  schedules,
		Slots:      slots,
		Sections:   sections,
		Courses:    courses,
		Teachers:   teachers,
		Rooms:      rooms,
		Requests:   requests,
		Matrix:     matrix,
		Singletons: master,
		Conflicts:  detector,
		Health:     health,
		Block:      block,
	}, db, metrics, validate, service.ScheduleGeneratorConfig{
		PeriodsPerDay:      cfg.Scheduler.PeriodsPerDay,
		MinPlanningPeriods: cfg.Scheduler.MinPlanningPeriods,
		SchoolDays:         cfg.Scheduler.SchoolDays,
		DayStart:           dayStart,
		PeriodMinutes:      cfg.Scheduler.PeriodMinutes,
		PassingMinutes:     cfg.Scheduler.PassingMinutes,
		JobTTL:             cfg.Scheduler.JobTTL,
		JobCapacity:        cfg.Scheduler.JobCapacity,
		Workers:            cfg.Scheduler.Workers,
		WorkerRetries:      cfg.Scheduler.WorkerRetries,
	}, logr)
	generator.Start(ctx)
	defer generator.Stop()

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report storage", zap.Error(err))
	}
	reports := service.NewReportService(health, matrix, files,
		storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
		csvExporter, export.NewPDFExporter(),
		service.ReportServiceConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: time.Hour,
		}, logr)
	reports.StartCleanup(ctx)

	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Conflicts: handler.NewConflictHandler(detector),
		Matrix:    handler.NewConflictMatrixHandler(matrix),
		Master: handler.NewMasterScheduleHandler(master, handler.MasterScheduleHandlerConfig{
			BalanceTolerance:   cfg.Scheduler.BalanceTolerance,
			MinPlanningPeriods: cfg.Scheduler.MinPlanningPeriods,
		}),
		Block:     handler.NewBlockScheduleHandler(block),
		Health:    handler.NewScheduleHealthHandler(health),
		Generator: handler.NewScheduleGeneratorHandler(generator),
		Reports:   handler.NewReportHandler(reports),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	handler.RegisterOps(r, handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}))

	if cfg.Env != config.EnvProduction {
		swagger.SwaggerInfo.BasePath = cfg.APIPrefix
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handlers, middleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
