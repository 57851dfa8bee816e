package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the service uptime in seconds
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "labelmarket",
		Subsystem: "backend",
		Name:      "uptime_seconds",
		Help:      "Time passed since the backend started in seconds",
	})

	// Ledger read metrics
	LedgerReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "ledger",
		Name:      "reads_total",
		Help:      "Ledger RPC reads (status=ok/not_found/error)",
	}, []string{"method", "status"})

	// Registry entries dropped from bulk listings
	RegistrySkippedEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "registry",
		Name:      "skipped_entries_total",
		Help:      "Registry entries skipped during listing (reason=missing_entry/missing_object/decode/read_error)",
	}, []string{"kind", "reason"})

	RegistryOwnerScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "registry",
		Name:      "owner_scans_total",
		Help:      "Fallback owner scans issued because a registry table was empty",
	}, []string{"kind"})

	// Cache metrics
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups (result=hit/miss/coalesced)",
	}, []string{"result"})

	CacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Cache keys invalidated after mutations",
	})

	CacheRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "cache",
		Name:      "refreshes_total",
		Help:      "Background refreshes of live keys (status=ok/error)",
	}, []string{"status"})

	// Transaction metrics
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "tx",
		Name:      "transactions_total",
		Help:      "Transactions submitted (status=success/rejected/aborted/failed)",
	}, []string{"kind", "status"})

	ConsensusRoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "consensus",
		Name:      "rounds_total",
		Help:      "Consensus rounds by outcome (done/partially_failed/refused/aborted)",
	}, []string{"outcome"})

	BlobUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "blob",
		Name:      "uploads_total",
		Help:      "Blob uploads by status",
	}, []string{"status"})

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route and status code",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "labelmarket",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	PanicRecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "labelmarket",
		Subsystem: "http",
		Name:      "panic_recoveries_total",
		Help:      "Handler panics recovered by the API",
	}, []string{"path"})
)

// StartMetricsCollection starts collecting metrics
func StartMetricsCollection() {
	// Update uptime every 15 seconds
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()
}

// ObserveLedgerRead is installed as the ledger client's read hook.
func ObserveLedgerRead(method string, err error) {
	LedgerReadsTotal.WithLabelValues(method, readStatus(err)).Inc()
}
