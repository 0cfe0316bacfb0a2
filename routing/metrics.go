package routing

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RouteRequestsTotal *prometheus.CounterVec // Количество поисков арендатора по токену
	Tenants            prometheus.Gauge       // Число настроенных сервисных токенов
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics возвращает метрики маршрутизации. promauto регистрирует
// коллекторы в глобальном реестре, поэтому структура создается ровно
// один раз, сколько бы роутеров ни строили тесты
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			RouteRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "buildcache_routing_requests_total",
					Help: "Total number of token routing lookups",
				},
				[]string{"result"}, // success/unknown_token
			),
			Tenants: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "buildcache_routing_tenants",
					Help: "Number of configured service tokens",
				},
			),
		}
	})
	return metrics
}
