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

	"github.com/bizmatters/promptlens/internal/auth"
	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/gateway"
	"github.com/bizmatters/promptlens/internal/metrics"
	"github.com/bizmatters/promptlens/internal/reverseapi"
	"github.com/bizmatters/promptlens/internal/telemetry"
)

const (
	maxSessions = 1024
	sessionIdle = 2 * time.Hour
)

func main() {
	cfg := config.MustLoad()

	// Initialize OpenTelemetry
	shutdownTelemetry, err := telemetry.Setup(os.Stdout, telemetry.DefaultMetricInterval)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	analysisMetrics, err := metrics.NewAnalysisMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize analysis metrics: %v", err)
	}

	client := reverseapi.NewClient(cfg.API)
	log.Printf("Using reverse engineering service at %s (timeout %s)", client.BaseURL(), cfg.API.Timeout)

	sessionManager, err := auth.NewSessionManager(cfg.Server.SessionSecret)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}
	if cfg.Server.SessionSecret == "" {
		log.Println("PROMPTLENS_SESSION_SECRET not set, sessions will not survive a restart")
	}

	// Cancelled on shutdown so in-flight analyses stop with the server
	baseCtx, cancelAnalyses := context.WithCancel(context.Background())
	defer cancelAnalyses()

	sessions := gateway.NewSessionStore(client, analysisMetrics, maxSessions, sessionIdle)
	consoleHandler := gateway.NewHandler(baseCtx, sessions)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Add structured JSON logging middleware
	router.Use(gateway.StructuredLoggingMiddleware())

	consoleHandler.RegisterRoutes(router, sessionManager, cfg.IsProduction())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting promptlens console on port %s\n", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelAnalyses()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("Failed to flush telemetry: %v", err)
	}

	log.Println("Server exited")
}
