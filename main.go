package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumichat/credit/common/config"
	"github.com/lumichat/credit/common/graceful"
	"github.com/lumichat/credit/common/logger"
	"github.com/lumichat/credit/middleware"
	"github.com/lumichat/credit/model"
	"github.com/lumichat/credit/router"
)

func main() {
	logger.Setup()
	logger.Logger.Info("credit service starting", zap.String("system", config.SystemName))

	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	} else if !config.DebugEnabled {
		gin.SetMode(gin.ReleaseMode)
	}

	model.InitDB()
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("close database", zap.Error(err))
		}
	}()

	if err := model.CreateRootUserIfNeed(os.Getenv("ROOT_ACCESS_TOKEN")); err != nil {
		logger.Logger.Fatal("seed root user", zap.Error(err))
	}

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		middleware.PanicRecover(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)
	server.Use(middleware.RequestId())
	server.Use(middleware.RequestTracker())

	if config.EnablePrometheusMetrics {
		server.GET("/metrics", middleware.AdminAuth(), gin.WrapH(promhttp.Handler()))
		logger.Logger.Info("prometheus metrics endpoint available at /metrics")
	}

	router.SetRouter(server)

	port := config.ServerPort
	if port == "" {
		port = "3000"
	}
	httpServer := &http.Server{Addr: ":" + port, Handler: server}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info("shutdown signal received, draining")
	graceful.SetDraining()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Logger.Error("shutdown HTTP server", zap.Error(err))
	}
	if err := graceful.Drain(ctx); err != nil {
		logger.Logger.Error("drain pending accounting", zap.Error(err))
	}
}
