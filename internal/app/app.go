// Package app is the application bootstrap and dependency injection root.
// It picks the key-value backend, loads the field catalog, configures the
// echo instance, and wires the audit plugin and notes widget.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/beacon/internal/apperror"
	"github.com/keyxmakerx/beacon/internal/config"
	"github.com/keyxmakerx/beacon/internal/kvstore"
	"github.com/keyxmakerx/beacon/internal/middleware"
	"github.com/keyxmakerx/beacon/internal/plugins/audit"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	Config *config.Config

	// DB is set only for the mariadb backend.
	DB *sql.DB

	// Redis is set only for the redis backend.
	Redis *redis.Client

	// Store persists the audit log, notes and entity collections.
	Store kvstore.Store

	// Catalog is the field catalog shared by every audit component.
	Catalog *audit.Catalog

	Echo *echo.Echo
}

// New creates the App. db and rdb may be nil when the configured backend
// does not use them.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	store, err := newStore(cfg, db, rdb)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg.Audit.CatalogPath)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Store:   store,
		Catalog: catalog,
		Echo:    e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// newStore returns the kvstore.Store for the configured backend.
func newStore(cfg *config.Config, db *sql.DB, rdb *redis.Client) (kvstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return kvstore.NewMemoryStore(), nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis backend selected but no Redis client")
		}
		return kvstore.NewRedisStore(rdb, kvstore.WithKeyPrefix(cfg.Redis.KeyPrefix)), nil
	case config.BackendMariaDB:
		if db == nil {
			return nil, errors.New("mariadb backend selected but no database")
		}
		return kvstore.NewSQLStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func loadCatalog(path string) (*audit.Catalog, error) {
	if path == "" {
		return audit.DefaultCatalog(), nil
	}
	catalog, err := audit.LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded field catalog",
		slog.String("path", path),
		slog.Int("version", catalog.Version()),
	)
	return catalog, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.HTTP.CORSOrigins,
		AllowCredentials: true,
	}))
}

// errorHandler maps AppErrors and echo errors to responses: JSON for API
// paths, a small HTML fragment otherwise. HTMX requests keep their swap
// target untouched and get the message as a notify event instead.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = apperror.SafeCode(err)
		message = apperror.SafeMessage(err)
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if isAPIRequest(c) {
		_ = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	if middleware.IsHTMX(c) {
		payload, _ := json.Marshal(map[string]any{
			"notify": map[string]string{"message": message, "kind": string(audit.NotifyError)},
		})
		c.Response().Header().Set("HX-Trigger", string(payload))
		c.Response().Header().Set("HX-Reswap", "none")
	}
	_ = middleware.Render(c, code, errorFragment(code, message))
}

func errorFragment(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="audit-error" data-status="%d"><p>%s</p></div>`,
			code, templ.EscapeString(message))
		return err
	})
}

func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Beacon server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("storage", a.Config.Storage.Backend),
	)
	return a.Echo.Start(addr)
}
