package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"buildcache/logger"
	"buildcache/routing"
)

const bearerPrefix = "Bearer "

// BearerAuthenticator реализует интерфейс Authenticator, проверяя токен
// из заголовка Authorization по таблице маршрутизации
type BearerAuthenticator struct {
	router  *routing.Router
	metrics *Metrics
}

// NewBearerAuthenticator создает новый экземпляр аутентификатора
func NewBearerAuthenticator(router *routing.Router) (*BearerAuthenticator, error) {
	if router == nil {
		return nil, errors.New("router cannot be nil")
	}

	return &BearerAuthenticator{
		router:  router,
		metrics: NewMetrics(),
	}, nil
}

// Authenticate извлекает bearer-токен и возвращает арендатора, которому
// он принадлежит. Схема заголовка сверяется побуквенно: "bearer" в
// другом регистре или без пробела не принимается
func (a *BearerAuthenticator) Authenticate(r *http.Request) (*routing.Tenant, error) {
	start := time.Now()

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		logger.Warn("Authentication failed: missing Authorization header")
		a.metrics.AuthRequestsTotal.WithLabelValues("error").Inc()
		return nil, ErrMissingAuthHeader
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		logger.Warn("Authentication failed: Authorization header is not a bearer token")
		a.metrics.AuthRequestsTotal.WithLabelValues("error").Inc()
		return nil, ErrInvalidAuthHeader
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	tenant, err := a.router.Route(token)
	if err != nil {
		// Само значение токена в лог не попадает
		logger.Warn("Authentication failed: invalid token")
		a.metrics.AuthRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	logger.Info("Authenticated request from: %s (bucket: %s, prefix: %s)", tenant.Name, tenant.BackendName, tenant.Prefix)

	a.metrics.AuthRequestsTotal.WithLabelValues("success").Inc()
	a.metrics.AuthLatency.WithLabelValues("success").Observe(time.Since(start).Seconds())

	return tenant, nil
}
