package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/observability"
	"github.com/atelier-hq/atelier/internal/platform/httpx"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the shared middleware chain. Authentication is
// mounted per route group, not here, so the login endpoint stays reachable.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(rateLimitKey)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// rateLimitKey prefers the session token so shared NATs do not starve each
// other, falling back to the client IP.
func rateLimitKey(r *http.Request) (string, error) {
	if token := identity.BearerToken(r); token != "" {
		return "token:" + token, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// ActorResolver resolves an actor id into a full actor.
type ActorResolver interface {
	Resolve(ctx context.Context, id int64) (identity.Actor, error)
}

// RequireAuth resolves the bearer token into an actor and stores it on the
// request context. Requests without a live session get 401.
func RequireAuth(logger *slog.Logger, sessions *identity.SessionStore, actors ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := identity.BearerToken(r)
			actorID, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, identity.ErrUnauthenticated) {
					logger.Error("resolve session", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "valid session required")
				return
			}
			actor, err := actors.Resolve(r.Context(), actorID)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "valid session required")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.ContextWithActor(r.Context(), actor)))
		})
	}
}
