// Package server is the reference backend the client talks to. It implements
// the full HTTP contract (identity headers, readiness, conversations, SSE
// chat, quotas) with simulated video preparation and canned answers, which
// makes it useful for local development and end-to-end exercises without any
// upstream media pipeline.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipnote/clipnote/internal/logging"
	"github.com/clipnote/clipnote/internal/server/conversation"
	"github.com/clipnote/clipnote/internal/server/conversation/inmemory"
	redisconv "github.com/clipnote/clipnote/internal/server/conversation/redis"
)

type Config struct {
	Addr      string
	JWTSecret string

	// RedisAddr selects the redis conversation store; empty keeps
	// conversations in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PrepStep is the simulated preparation cadence: the transcript appears
	// after one step, metadata after two, the summary after three.
	PrepStep time.Duration

	GuestDailyLimit int
	UserDailyLimit  int
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PrepStep <= 0 {
		c.PrepStep = 4 * time.Second
	}
	if c.GuestDailyLimit <= 0 {
		c.GuestDailyLimit = 5
	}
	if c.UserDailyLimit <= 0 {
		c.UserDailyLimit = 100
	}
	return c
}

// New assembles the echo application without binding a listener, so tests can
// mount it on httptest.
func New(cfg Config) (*echo.Echo, error) {
	cfg = cfg.withDefaults()
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret not configured")
	}

	var convs conversation.Store
	if cfg.RedisAddr != "" {
		store, err := redisconv.NewConversationStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		convs = store
	} else {
		convs = inmemory.NewConversationStore()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
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
		slog.Warn("request failed",
			"status", code, "method", req.Method, "path", req.URL.Path, logging.Err(err))
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	accounts := &AccountsHandler{Accounts: newAccountStore(), Secret: []byte(cfg.JWTSecret)}
	videos := newVideoRegistry(cfg.PrepStep)
	quotas := newQuotaLedger(cfg.GuestDailyLimit, cfg.UserDailyLimit)

	api := e.Group("/api")
	accounts.Register(api.Group("/auth"))

	protected := api.Group("", identityMiddleware(accounts.Secret))

	vh := &VideosHandler{Videos: videos, Conversations: convs}
	vh.Register(protected)

	ch := &ChatHandler{Videos: videos, Conversations: convs, Quotas: quotas}
	ch.Register(protected)

	return e, nil
}

// Run starts the backend and blocks until the listener fails.
func Run(cfg Config) error {
	cfg = cfg.withDefaults()
	e, err := New(cfg)
	if err != nil {
		return err
	}
	slog.Info("backend listening", "addr", cfg.Addr)
	return e.Start(cfg.Addr)
}
