// Package metrics exposes PFHS engine activity as Prometheus gauges and
// counters, the same instrumentation shape the teacher's dependency stack
// favors for long-running services. These are strictly advisory, exactly
// like the textual log lines consensus already emits: nothing here
// feeds back into protocol decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/pfhs/pkg/consensus"
)

// Collector tracks per-validator consensus activity and implements
// consensus.Metrics so an Endpoint can report into it directly.
type Collector struct {
	viewsStarted    *prometheus.CounterVec
	viewsAbandoned  *prometheus.CounterVec
	blocksProposed  *prometheus.CounterVec
	blocksCommitted *prometheus.CounterVec
	currentView     *prometheus.GaugeVec
}

// NewCollector registers PFHS's metric family on reg. Passing
// prometheus.NewRegistry() keeps metrics scoped to a single test or
// process instead of colliding on the global DefaultRegisterer when many
// validators run in one binary.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		viewsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfhs",
			Name:      "views_started_total",
			Help:      "Number of views this validator has entered.",
		}, []string{"validator"}),
		viewsAbandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfhs",
			Name:      "views_abandoned_total",
			Help:      "Number of views abandoned on timeout without proposing or accepting a block.",
		}, []string{"validator"}),
		blocksProposed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfhs",
			Name:      "blocks_proposed_total",
			Help:      "Number of blocks this validator has proposed as primary.",
		}, []string{"validator"}),
		blocksCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pfhs",
			Name:      "blocks_committed_total",
			Help:      "Number of blocks this validator has committed via the three-chain rule.",
		}, []string{"validator"}),
		currentView: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pfhs",
			Name:      "current_view",
			Help:      "The view this validator is currently driving.",
		}, []string{"validator"}),
	}
}

func (c *Collector) OnViewStart(validator string, view uint64) {
	c.viewsStarted.WithLabelValues(validator).Inc()
	c.currentView.WithLabelValues(validator).Set(float64(view))
}

func (c *Collector) OnViewAbandoned(validator string) {
	c.viewsAbandoned.WithLabelValues(validator).Inc()
}

func (c *Collector) OnProposed(validator string) {
	c.blocksProposed.WithLabelValues(validator).Inc()
}

func (c *Collector) OnCommitted(validator string) {
	c.blocksCommitted.WithLabelValues(validator).Inc()
}

var _ consensus.Metrics = (*Collector)(nil)

// Serve starts a blocking HTTP server exposing reg's metrics at /metrics
// on addr. Intended to be run in its own goroutine by cmd/cluster.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
