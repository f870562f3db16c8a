package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/soulteary/herald-shell/internal/config"
	"github.com/soulteary/herald-shell/internal/router"
	"github.com/soulteary/logger-kit"
	version "github.com/soulteary/version-kit"
)

func showBanner() {
	pterm.DefaultBox.Println(
		putils.CenterText(
			"Herald Shell\n" +
				"Demo Login Shell (Token / Session / Web View)\n" +
				"Version: " + version.Version,
		),
	)
	time.Sleep(time.Millisecond)
}

func main() {
	showBanner()

	level := logger.ParseLevelFromEnv("LOG_LEVEL", logger.InfoLevel)
	log := logger.New(logger.Config{
		Level:          level,
		ServiceName:    "herald-shell",
		ServiceVersion: version.Version,
	})
	config.Initialize(log)

	port := config.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	if config.AllowNoAuth() {
		log.Warn().Msg("API_KEY and HMAC_SECRET not set; /v1 is open")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: false})
	svc, err := router.Setup(app, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("router setup failed")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go svc.Network.Run(ctx, config.ConnectivityInterval)

	go func() {
		if err := app.Listen(port); err != nil {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
}
