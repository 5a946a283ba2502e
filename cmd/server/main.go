package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"hypertoken/internal/app"
	"hypertoken/internal/handler"
	"hypertoken/internal/logger"
	"hypertoken/internal/service"

	_ "hypertoken/docs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	scheduler := service.NewScheduler(a.Sync, a.Cache, logger.Named("scheduler"), service.SchedulerConfig{
		Spec:       cfg.Cron.TokenSync,
		LockTTL:    cfg.TokenSync.LockTTL,
		RunOnStart: cfg.TokenSync.RunOnStart,
	})

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORSMiddleware(cfg.Server.CORSOrigin))
	engine.Use(handler.AccessLogMiddleware(logger.Named("http")))

	healthHandler := &handler.HealthHandler{Checks: a.ReadinessChecks()}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)
	tokenHandler := &handler.TokenHandler{
		Sync:   scheduler,
		Query:  a.Query,
		Logger: logger,
	}
	tokenHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
		defer scheduler.Stop()
	} else {
		logger.Info("scheduled token sync disabled")
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	_ = awaitShutdown(ctx, stop, errCh, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// awaitShutdown blocks until a signal arrives or the server fails. Either way
// stop cancels ctx, so a running sync cycle aborts before the deferred
// scheduler.Stop waits on it.
func awaitShutdown(ctx context.Context, stop context.CancelFunc, errCh <-chan error, logger *zap.Logger) error {
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		stop()
		return nil
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
		return err
	}
}
