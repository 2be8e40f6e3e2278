package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	grantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_grants_total",
		Help: "Servers granted to accounts, including billing reallocations.",
	})
	releasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_releases_total",
		Help: "Servers returned to the pool (self, forced, or via removal).",
	})
	billingTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_billing_ticks_total",
		Help: "Billing scheduler passes started.",
	})
	billingFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_billing_failures_total",
		Help: "Per-server billing units that failed and will be retried.",
	})
	coinsDeductedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_coins_deducted_total",
		Help: "Coins charged for active servers.",
	})
	reclaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_reclaims_total",
		Help: "Servers reclaimed from insolvent accounts.",
	})
	reallocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ladybug_reallocations_total",
		Help: "Reclaimed servers immediately handed to a waiting account.",
	})
)

// RegisterMetrics mounts the Prometheus handler and registers pool-size
// gauges that read counts straight from the store on scrape. A nil reg means
// the default registry; passing a fresh registry keeps repeat registration
// from panicking.
func RegisterMetrics(mux *http.ServeMux, store Store, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, status := range []string{StatusAvailable, StatusActive} {
		status := status
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "ladybug_pool_servers",
			Help:        "Pool size by server status.",
			ConstLabels: prometheus.Labels{"status": status},
		}, func() float64 {
			var n int
			_ = store.View(func(tx Tx) error {
				var err error
				n, err = tx.CountServersByStatus(status)
				return err
			})
			return float64(n)
		}))
	}
	mux.Handle("/metrics", promhttp.Handler())
}
