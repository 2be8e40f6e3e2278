package server

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterMetricsWithIsolatedRegistries(t *testing.T) {
	store := NewMemStore()
	seedServer(t, store, "s1", 100)
	seedServer(t, store, "s2", 200)

	// Two registrations in one process must not collide when each gets its
	// own registry.
	for i := 0; i < 2; i++ {
		reg := prometheus.NewRegistry()
		RegisterMetrics(http.NewServeMux(), store, reg)

		mfs, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather #%d: %v", i+1, err)
		}

		found := map[string]float64{}
		for _, mf := range mfs {
			if mf.GetName() != "ladybug_pool_servers" {
				continue
			}
			for _, m := range mf.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "status" {
						found[l.GetValue()] = m.GetGauge().GetValue()
					}
				}
			}
		}
		if found[StatusAvailable] != 2 || found[StatusActive] != 0 {
			t.Fatalf("unexpected pool gauges: %v", found)
		}
	}
}
