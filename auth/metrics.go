package auth

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Общие метрики запросов
	AuthRequestsTotal *prometheus.CounterVec   // Количество запросов аутентификации
	AuthLatency       *prometheus.HistogramVec // Латентность аутентификации
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics возвращает метрики аутентификации. promauto регистрирует
// коллекторы в глобальном реестре, поэтому структура создается ровно
// один раз, сколько бы аутентификаторов ни строили тесты
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			AuthRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_auth_requests_total",
					Help: "Total number of authentication requests",
				},
				[]string{"result"}, // success/error
			),
			AuthLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "buildcache_auth_latency_seconds",
					Help:    "Latency of authentication requests in seconds",
					Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // Более мелкие бакеты для аутентификации
				},
				[]string{"result"},
			),
		}
	})
	return metrics
}
