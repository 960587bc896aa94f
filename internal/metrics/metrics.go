// Package metrics — счётчики Prometheus для аллокаций и публикации конфига.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

type Metrics struct {
	Allocations        prometheus.Counter
	AllocationFailures *prometheus.CounterVec // reason: exhausted|conflict|error
	Publishes          *prometheus.CounterVec // result: ok|error
	DeviceSyncs        *prometheus.CounterVec // result: ok|error
	HTTPRequests       *prometheus.CounterVec // method, code
}

// Init регистрирует метрики один раз; повторные вызовы возвращают тот же экземпляр.
// registry == nil — стандартный реестр Prometheus.
func Init(registry prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		f := promauto.With(registry)
		instance = &Metrics{
			Allocations: f.NewCounter(prometheus.CounterOpts{
				Name: "gatewg_ip_allocations_total",
				Help: "IP addresses allocated to VPN devices",
			}),
			AllocationFailures: f.NewCounterVec(prometheus.CounterOpts{
				Name: "gatewg_ip_allocation_failures_total",
				Help: "Failed IP allocation attempts by reason",
			}, []string{"reason"}),
			Publishes: f.NewCounterVec(prometheus.CounterOpts{
				Name: "gatewg_config_publish_total",
				Help: "Server configuration publishes by result",
			}, []string{"result"}),
			DeviceSyncs: f.NewCounterVec(prometheus.CounterOpts{
				Name: "gatewg_device_sync_total",
				Help: "Live WireGuard interface syncs by result",
			}, []string{"result"}),
			HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
				Name: "gatewg_http_requests_total",
				Help: "HTTP requests by method and status code",
			}, []string{"method", "code"}),
		}
	})
	return instance
}

// Get — метрики со стандартным реестром, если Init ещё не вызывали.
func Get() *Metrics { return Init(nil) }

// Result — метка ok/error по ошибке.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
