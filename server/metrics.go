package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Общие метрики запросов
	RequestsTotal  *prometheus.CounterVec   // Общее количество обработанных HTTP запросов
	RequestLatency *prometheus.HistogramVec // Латентность HTTP запросов
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics возвращает метрики HTTP сервера. promauto регистрирует
// коллекторы в глобальном реестре, поэтому структура создается ровно
// один раз, сколько бы серверов ни строили тесты
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_http_requests_total",
					Help: "Total number of processed HTTP requests",
				},
				[]string{"method", "code"},
			),
			RequestLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "buildcache_http_request_latency_seconds",
					Help:    "Latency of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets, // Стандартные бакеты времени
				},
				[]string{"method"},
			),
		}
	})
	return metrics
}
