// package metrics exposes prometheus counters for the transfer pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransfersTotal counts playlist transfer requests by terminal result:
	// completed, quota-exceeded, or error.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spottransfer_transfers_total",
		Help: "Playlist transfers by terminal result.",
	}, []string{"result"})

	// TracksTotal counts per-track outcomes across all transfers.
	TracksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spottransfer_tracks_total",
		Help: "Per-track transfer outcomes.",
	}, []string{"status"})

	// CacheTotal counts cache lookups by entry kind and result.
	CacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spottransfer_cache_total",
		Help: "Cache lookups by kind and result.",
	}, []string{"kind", "result"})
)

// RecordCache increments the cache lookup counter.
func RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheTotal.WithLabelValues(kind, result).Inc()
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
