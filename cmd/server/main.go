package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/rs/cors"

	"github.com/iliyamo/course-enrollment/internal/config"
	"github.com/iliyamo/course-enrollment/internal/database"
	"github.com/iliyamo/course-enrollment/internal/handler"
	"github.com/iliyamo/course-enrollment/internal/jobs"
	"github.com/iliyamo/course-enrollment/internal/middleware"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
	"github.com/iliyamo/course-enrollment/internal/router"
	"github.com/iliyamo/course-enrollment/internal/service"
)

func main() {
	logger := log.New("server")
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	db, dialect, err := openDB(cfg.DB)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db, dialect); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			logger.Fatalf("seed admin: %v", err)
		}
		if created {
			logger.Infof("seeded admin account %s", cfg.AdminEmail)
		}
	}

	// Redis backs the enrollment rate limiter and the catalogue cache.  Both
	// are skipped when it is not reachable.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		logger.Fatalf("rate limit config: %v", err)
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		logger.Fatalf("cache config: %v", err)
	}
	cache := middleware.NewResponseCache(cacheCfg, rdb)

	deps := service.Deps{
		Tx:          repository.NewTxManager(db, cfg.DB.MaxAttempts),
		Courses:     repository.NewCourseRepo(db, dialect),
		Enrollments: repository.NewEnrollmentRepo(db),
		Policy:      service.PolicyFromConfig(cfg.Engine),
	}
	if cfg.Queue.URL != "" {
		deps.Events = queue.NewPublisher(cfg.Queue.URL, log.New("rabbitmq"))
	}
	courseDeps, enrollDeps := deps, deps
	courseDeps.Logger = log.New("course")
	enrollDeps.Logger = log.New("enrollment")
	courses := service.NewCourseService(courseDeps)
	enrollments := service.NewEnrollmentService(enrollDeps)
	accounts := service.NewUserService(deps.Tx, users, tokens, nil, log.New("user"))

	if cfg.Queue.AuditConsumer {
		consumer := queue.NewAuditConsumer(cfg.Queue.URL, cfg.Queue.AuditLogPath, log.New("audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("audit consumer stopped: %v", err)
			}
		}()
	}

	scheduler, err := jobs.Schedule(cfg.ReconcileSchedule, jobs.NewReconcileJob(enrollments, time.Minute, log.New("reconcile-job")))
	if err != nil {
		logger.Fatalf("schedule reconcile: %v", err)
	}
	if scheduler != nil {
		defer scheduler.Stop()
		logger.Infof("reconcile job scheduled (%s)", cfg.ReconcileSchedule)
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Validator = handler.NewValidator()
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.Register(e, router.Deps{
		JWTSecret:   cfg.JWTSecret,
		Health:      handler.Health(db),
		Auth:        handler.NewAuthHandler(cfg, users, tokens),
		Courses:     handler.NewCourseHandler(courses, cache),
		Enrollments: handler.NewEnrollmentHandler(enrollments, cache),
		Admin:       handler.NewAdminHandler(enrollments, cache),
		Users:       handler.NewUserHandler(accounts),
		Cache:       middleware.NewRedisCache(cacheCfg, rdb),
		RateLimit:   middleware.NewTokenBucket(rlCfg, rdb),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(cfg.CORSOrigins).Handler(e),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("listening on %s (env=%s, db=%s)", srv.Addr, cfg.Env, dialect)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func openDB(cfg config.DBConfig) (*sql.DB, database.Dialect, error) {
	if cfg.Driver == string(database.SQLite) {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", err
			}
		}
		db, err := database.OpenSQLite(cfg.SQLitePath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
	return db, database.MySQL, err
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", "X-Cache"},
		AllowCredentials: false,
	})
}
