package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"buildcache/auth"
	"buildcache/logger"
)

// Server - HTTP интерфейс кеша артефактов
type Server struct {
	config  Config
	auth    auth.Authenticator
	server  *http.Server
	metrics *Metrics
}

// New создает новый экземпляр сервера
func New(config Config, authenticator auth.Authenticator) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator not provided")
	}

	return &Server{
		config:  config,
		auth:    authenticator,
		metrics: NewMetrics(),
	}, nil
}

// Handler собирает маршруты сервера. Health не требует аутентификации,
// остальные маршруты проверяют токен сами
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("PUT /v1/cache/{hash}", s.handlePut)
	mux.HandleFunc("GET /v1/cache/{hash}", s.handleGet)
	mux.HandleFunc("HEAD /v1/cache/{hash}", s.handleHead)
	return s.withObservability(mux)
}

// withObservability логирует каждый запрос и обновляет метрики
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Info("Incoming request: %s %s", r.Method, r.URL.Path)
		if logger.DebugEnabled() {
			logger.Debug("Request headers: %+v", redactHeaders(r.Header))
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		latency := time.Since(start)
		logger.Info("Response sent: %d, %.3f ms", sw.status, float64(latency.Microseconds())/1000.0)

		s.metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		s.metrics.RequestLatency.WithLabelValues(r.Method).Observe(latency.Seconds())
	})
}

// redactHeaders возвращает копию заголовков с закрытым значением
// Authorization: значение токена не попадает в логи
func redactHeaders(h http.Header) http.Header {
	redacted := make(http.Header, len(h))
	for name, values := range h {
		if http.CanonicalHeaderKey(name) == "Authorization" {
			redacted[name] = []string{"[redacted]"}
			continue
		}
		redacted[name] = values
	}
	return redacted
}

// Start запускает сервер. Блокируется до остановки
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	logger.Info("Starting cache server on %s", s.config.ListenAddress)

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		logger.Info("Starting HTTPS server with TLS")
		return s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	logger.Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	logger.Info("Stopping cache server...")
	return s.server.Shutdown(ctx)
}
