// Command echolink runs the full-duplex voice conversation server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/code-100-precent/EchoLink/cmd/bootstrap"
	handlers "github.com/code-100-precent/EchoLink/internal/handler"
	"github.com/code-100-precent/EchoLink/pkg/config"
	"github.com/code-100-precent/EchoLink/pkg/logger"
	"github.com/code-100-precent/EchoLink/pkg/middleware"
)

// readHeaderTimeout bounds request header parsing. Established WebSocket
// sessions are hijacked connections and are not affected.
const readHeaderTimeout = 10 * time.Second

// shutdownGrace bounds the HTTP drain and the session drain together.
const shutdownGrace = 10 * time.Second

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.GlobalConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Server.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := bootstrap.PrintBannerFromFile("banner.txt"); err != nil {
		logger.Debug("banner file not printed", zap.Error(err))
	}
	bootstrap.LogConfigInfo()

	mode := config.GlobalConfig.Server.Mode
	if mode != "dev" && mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	h, err := handlers.NewHandlers()
	if err != nil {
		logger.Fatal("init handlers", zap.Error(err))
	}

	engine := gin.New()
	engine.Use(middleware.CorsMiddleware())
	engine.Use(middleware.LoggerMiddleware(logger.Lg))
	engine.Use(gin.Recovery())
	h.Register(engine)

	srv := &http.Server{
		Addr:              config.GlobalConfig.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info("voice server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Close the listener first. WebSocket sessions survive the HTTP drain,
	// so the handler shutdown winds them down afterwards.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := h.Shutdown(ctx); err != nil {
		logger.Warn("session drain incomplete", zap.Error(err))
	}
	logger.Info("server exited")
}
