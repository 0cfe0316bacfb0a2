package storage

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics содержит метрики слоя хранилища
type Metrics struct {
	BackendState   *prometheus.GaugeVec     // Текущее состояние бэкенда (1=UP, 0.5=PROBING, 0=DOWN)
	RequestsTotal  *prometheus.CounterVec   // Количество операций по бэкендам
	RequestLatency *prometheus.HistogramVec // Латентность операций
	BytesRead      *prometheus.CounterVec   // Прочитанные с бэкендов байты
	BytesWritten   *prometheus.CounterVec   // Записанные в бэкенды байты
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics возвращает процессный набор метрик хранилища. promauto
// регистрирует метрики в глобальном реестре, поэтому структура создается
// ровно один раз, сколько бы менеджеров ни строили тесты
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			BackendState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "buildcache_backend_state",
					Help: "Current state of a storage backend (1=UP, 0.5=PROBING, 0=DOWN)",
				},
				[]string{"backend"},
			),
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_backend_requests_total",
					Help: "Total number of operations sent to storage backends",
				},
				[]string{"backend", "operation", "result"},
			),
			RequestLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "buildcache_backend_latency_seconds",
					Help:    "Latency of storage backend operations in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend", "operation"},
			),
			BytesRead: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_backend_bytes_read_total",
					Help: "Total number of bytes read from storage backends",
				},
				[]string{"backend"},
			),
			BytesWritten: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_backend_bytes_written_total",
					Help: "Total number of bytes written to storage backends",
				},
				[]string{"backend"},
			),
		}
	})
	return metrics
}
