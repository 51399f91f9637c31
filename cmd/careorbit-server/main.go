package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careorbit/dashboard/internal/careapi"
	"github.com/careorbit/dashboard/internal/config"
	"github.com/careorbit/dashboard/internal/dashboard"
	"github.com/careorbit/dashboard/internal/platform/middleware"
	"github.com/careorbit/dashboard/internal/upstream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careorbit-server",
		Short: "CareOrbit patient dashboard server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(upstreamCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func upstreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo-upstream",
		Short: "Start the demo care-coordination API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpstream()
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeoutDuration()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	client := careapi.NewClient(cfg.CareAPIURL, cfg.CareAPITimeoutDuration(), logger)
	manager := dashboard.NewManager(client, logger)
	dashboard.NewHandler(manager).RegisterRoutes(apiV1)

	logger.Info().
		Str("port", cfg.Port).
		Str("care_api_url", cfg.CareAPIURL).
		Msg("dashboard server starting")

	return serveWithShutdown(e, ":"+cfg.Port, logger)
}

func runUpstream() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	store := upstream.NewStore()
	var refiner upstream.Refiner
	if r := upstream.NewOpenAIRefiner(); r != nil {
		refiner = r
		logger.Info().Msg("chat response refinement enabled")
	}
	orch := upstream.NewOrchestrator(store, refiner, logger)
	upstream.NewHandler(store, orch).RegisterRoutes(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	port := os.Getenv("UPSTREAM_PORT")
	if port == "" {
		port = "8000"
	}
	logger.Info().
		Str("port", port).
		Str("demo_patient_id", cfg.DemoPatientID).
		Msg("demo care API starting")

	return serveWithShutdown(e, ":"+port, logger)
}

// serveWithShutdown runs the server until SIGINT/SIGTERM, then drains
// in-flight requests before returning.
func serveWithShutdown(e *echo.Echo, addr string, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-quit:
		logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(ctx)
	}
}
