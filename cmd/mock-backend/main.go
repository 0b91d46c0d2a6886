package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/gateway"
	"github.com/bizmatters/promptlens/internal/mockbackend"
	"github.com/bizmatters/promptlens/internal/telemetry"
)

func main() {
	cfg := config.MustLoad()

	shutdownTelemetry, err := telemetry.Setup(os.Stdout, telemetry.DefaultMetricInterval)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	service := mockbackend.NewService(cfg.Mock, cfg.Server.Environment)
	handler := mockbackend.NewHandler(service)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(gateway.StructuredLoggingMiddleware())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Mock.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s stub backend on port %s (cache ttl %s, %d entries)\n",
			mockbackend.AppName, cfg.Mock.Port, cfg.Mock.CacheTTL, cfg.Mock.CacheSize)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down stub backend...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("Failed to flush telemetry: %v", err)
	}

	log.Println("Stub backend exited")
}
