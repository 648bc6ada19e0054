package invoice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_ingested_total",
		Help: "Number of invoices accepted for storage",
	})

	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_analyses_total",
		Help: "Number of completed anomaly analyses by verdict",
	}, []string{"verdict"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_analysis_duration_seconds",
		Help:    "Wall clock duration of a full analysis including history lookup",
		Buckets: prometheus.DefBuckets,
	})

	historyCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_history_cache_lookups_total",
		Help: "Vendor history cache lookups by outcome",
	}, []string{"outcome"})

	erpSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erpnext_submissions_total",
		Help: "ERPNext purchase invoice submissions by status",
	}, []string{"status"})
)
