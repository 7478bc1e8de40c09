package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/deep-researcher/pkg/config"
	"github.com/mikeboe/deep-researcher/pkg/metrics"
	"github.com/mikeboe/deep-researcher/pkg/server"
	"github.com/mikeboe/deep-researcher/pkg/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	srvCfg := config.LoadServer()

	// Fail fast on a bad environment rather than on the first request.
	if _, err := config.Resolve(config.Overrides{}); err != nil {
		log.Fatalf("Invalid research configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize Service & Handler
	svc := server.NewService(ctx, tasks.NewRegistry(srvCfg.MaxTasks), metrics.New(reg), srvCfg.OutputDir)
	handler := server.NewHandler(svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Web Server Setup
	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     srvCfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAny(srvCfg.AllowedOrigins),
	}))

	handler.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:    ":" + srvCfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Server starting", "port", srvCfg.Port, "output_dir", srvCfg.OutputDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	svc.Wait()
}

// gin-contrib/cors rejects a wildcard origin combined with credentials.
func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
