package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	health "github.com/soulteary/health-kit"
	logger "github.com/soulteary/logger-kit"
	middlewarekit "github.com/soulteary/middleware-kit"
	rediskit "github.com/soulteary/redis-kit/client"

	"github.com/soulteary/herald-shell/internal/config"
	"github.com/soulteary/herald-shell/internal/handler"
	"github.com/soulteary/herald-shell/internal/metrics"
	"github.com/soulteary/herald-shell/internal/netstate"
	"github.com/soulteary/herald-shell/internal/session"
	"github.com/soulteary/herald-shell/internal/store"
	"github.com/soulteary/herald-shell/internal/token"
)

// Services are the long-lived components wired by Setup.
type Services struct {
	Store    *store.Store
	Sessions *session.Manager
	Network  *netstate.Monitor
	Tokens   *token.Builder
}

// NewMonitor returns the connectivity monitor described by config.
func NewMonitor(log *logger.Logger) *netstate.Monitor {
	var p netstate.Prober = netstate.StaticProber(true)
	if config.ConnectivityCheck {
		p = &netstate.HTTPProber{URL: config.ProbeURL(), Timeout: config.ConnectivityTimeout}
	}
	m := netstate.NewMonitor(p, log)
	m.Subscribe(func(s netstate.State) {
		metrics.RecordConnectivity(s.Connected)
	})
	return m
}

// Setup mounts routes on app. Call config.Initialize(log) before this.
// A nil monitor is built from config.
func Setup(app *fiber.App, log *logger.Logger, mon *netstate.Monitor) (*Services, error) {
	cfg := rediskit.DefaultConfig().
		WithAddr(config.RedisAddr).
		WithPassword(config.RedisPassword).
		WithDB(config.RedisDB)
	redisClient, err := rediskit.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if mon == nil {
		mon = NewMonitor(log)
	}
	rateIPTTL := time.Minute
	svc := &Services{
		Store:    store.NewStore(redisClient, config.SessionTTL, rateIPTTL),
		Sessions: session.NewManager(config.Tabs()),
		Network:  mon,
		Tokens:   token.NewBuilder(),
	}

	app.Use(recover.New())
	app.Use(logger.FiberMiddleware(logger.MiddlewareConfig{
		Logger:           log,
		SkipPaths:        []string{"/healthz"},
		IncludeRequestID: true,
		IncludeLatency:   true,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization,X-Service,X-Signature,X-Timestamp,X-API-Key,X-Key-Id," + handler.HeaderDeviceID,
	}))

	healthConfig := health.DefaultConfig().WithServiceName(config.ServiceName)
	healthAgg := health.NewAggregator(healthConfig)
	healthAgg.AddChecker(health.NewRedisChecker(redisClient))
	app.Get("/healthz", health.FiberHandler(healthAgg))

	v1 := app.Group("/v1")
	zerologLogger := log.Zerolog()
	authHandler := middlewarekit.CombinedAuth(middlewarekit.AuthConfig{
		HMACConfig: &middlewarekit.HMACConfig{
			KeyProvider: config.GetHMACSecret,
		},
		APIKeyConfig: &middlewarekit.APIKeyConfig{
			APIKey: config.APIKey,
		},
		AllowNoAuth: config.AllowNoAuth(),
		Logger:      &zerologLogger,
	})

	st, sm := svc.Store, svc.Sessions
	v1.Post("/login", authHandler, handler.Login(st, sm, mon, svc.Tokens, log))
	v1.Post("/logout", authHandler, handler.Logout(st, sm, log))
	v1.Get("/session", authHandler, handler.Session(st, sm))
	v1.Post("/session/tab", authHandler, handler.SwitchTab(st, sm, log))
	v1.Get("/webview", authHandler, handler.Webview(st, sm))
	v1.Post("/webview/error", authHandler, handler.WebviewError(mon, log))
	v1.Get("/network", authHandler, handler.NetworkStatus(mon))

	return svc, nil
}
