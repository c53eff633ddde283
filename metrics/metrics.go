package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the service exports. A nil *Registry is valid and
// records nothing, which keeps constructors usable in tests.
type Registry struct {
	reg *prometheus.Registry

	StatusTransitions *prometheus.CounterVec
	AuditFailures     prometheus.Counter
	IngestionSignals  *prometheus.CounterVec
	StoreFallbacks    *prometheus.CounterVec
	DetailCache       *prometheus.CounterVec
	StatusCatalogLoad *prometheus.CounterVec
	StalledUploads    prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_status_transitions_total",
		Help: "Invoice status transition attempts by outcome.",
	}, []string{"outcome"})
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoice_status_audit_failures_total",
		Help: "Audit events that could not be recorded after a successful transition.",
	})
	signals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edi_ingestion_signals_total",
		Help: "Signals delivered to ingestion observers.",
	}, []string{"signal"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edi_store_fallback_total",
		Help: "Reads served by a store other than the first one tried.",
	}, []string{"kind"})
	detail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detail_cache_requests_total",
		Help: "Expanded-detail cache lookups by result.",
	}, []string{"result"})
	catalog := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_status_catalog_loads_total",
		Help: "Status catalog loads by source.",
	}, []string{"source"})
	stalled := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "edi_stalled_uploads",
		Help: "Uploads found stalled by the last diagnosis.",
	})

	r.MustRegister(transitions, auditFailures, signals, fallbacks, detail, catalog, stalled)
	return &Registry{
		reg:               r,
		StatusTransitions: transitions,
		AuditFailures:     auditFailures,
		IngestionSignals:  signals,
		StoreFallbacks:    fallbacks,
		DetailCache:       detail,
		StatusCatalogLoad: catalog,
		StalledUploads:    stalled,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) Transition(outcome string) {
	if r == nil {
		return
	}
	r.StatusTransitions.WithLabelValues(outcome).Inc()
}

func (r *Registry) AuditFailed() {
	if r == nil {
		return
	}
	r.AuditFailures.Inc()
}

func (r *Registry) Signal(signal string) {
	if r == nil {
		return
	}
	r.IngestionSignals.WithLabelValues(signal).Inc()
}

func (r *Registry) Fallback(kind string) {
	if r == nil {
		return
	}
	r.StoreFallbacks.WithLabelValues(kind).Inc()
}

func (r *Registry) CacheResult(result string) {
	if r == nil {
		return
	}
	r.DetailCache.WithLabelValues(result).Inc()
}

func (r *Registry) CatalogLoad(source string) {
	if r == nil {
		return
	}
	r.StatusCatalogLoad.WithLabelValues(source).Inc()
}

func (r *Registry) SetStalled(n int) {
	if r == nil {
		return
	}
	r.StalledUploads.Set(float64(n))
}
