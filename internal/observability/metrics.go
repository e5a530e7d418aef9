package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Slab operations counted per rank.
const (
	SlabPublished = "published"
	SlabFetched   = "fetched"
	SlabSkipped   = "skipped"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halostencil",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"rank", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "halostencil",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"rank", "method", "path", "status"},
	)
	applyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halostencil",
			Subsystem: "engine",
			Name:      "apply_total",
			Help:      "Stencil applications by outcome.",
		},
		[]string{"rank", "outcome"},
	)
	applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "halostencil",
			Subsystem: "engine",
			Name:      "apply_duration_seconds",
			Help:      "Wall time of one stencil application including the halo exchange.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"rank"},
	)
	slabsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halostencil",
			Subsystem: "exchange",
			Name:      "slabs_total",
			Help:      "Halo slabs published, fetched or skipped at a non-periodic edge.",
		},
		[]string{"rank", "op"},
	)
	branches = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "halostencil",
			Subsystem: "engine",
			Name:      "branches",
			Help:      "Registered stencil branches.",
		},
		[]string{"rank"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, applyTotal, applyDuration, slabsTotal, branches)
	})
}

func RecordHTTPRequest(rank int, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	rankLabel := strconv.Itoa(rank)
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(rankLabel, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(rankLabel, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordApply(rank int, outcome string, duration time.Duration) {
	RegisterMetrics()
	rankLabel := strconv.Itoa(rank)
	applyTotal.WithLabelValues(rankLabel, outcome).Inc()
	applyDuration.WithLabelValues(rankLabel).Observe(duration.Seconds())
}

func RecordSlabs(rank int, op string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	slabsTotal.WithLabelValues(strconv.Itoa(rank), op).Add(float64(n))
}

func SetBranches(rank, n int) {
	RegisterMetrics()
	branches.WithLabelValues(strconv.Itoa(rank)).Set(float64(n))
}
