package server

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepstudio/mockview/config"
	"github.com/prepstudio/mockview/internal/remote"
	"github.com/prepstudio/mockview/internal/telemetry"
)

// Run wires the full daemon and serves until the listener fails.
func Run(cfg *config.Config, addr string) error {
	if cfg.Telemetry.LogFile != "" {
		f, err := os.OpenFile(cfg.Telemetry.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.General.Debug
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New(reg)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// remote backend clients (transcription + question/session store)
	remoteLogger := log.New(log.Writer(), "[REMOTE] ", log.LstdFlags)
	transcriber := remote.NewTranscriptionClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, remoteLogger)
	service := remote.NewService(cfg.Remote, cfg.Session, remoteLogger)

	sessions := NewSessionsHandler(cfg, transcriber, service, service, metrics)
	defer sessions.Registry.Shutdown()

	api := e.Group("/api")
	sessions.Register(api.Group("/sessions"))

	if addr == "" {
		addr = cfg.Server.Address
	}
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
