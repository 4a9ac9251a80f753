package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts handled requests by route, method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headhunter_http_requests_total",
		Help: "Handled HTTP requests.",
	}, []string{"route", "method", "status"})

	// UpstreamRequests counts MusicBrainz calls by entity kind and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "headhunter_musicbrainz_requests_total",
		Help: "Outbound MusicBrainz requests.",
	}, []string{"entity", "outcome"})

	// UpstreamCacheHits counts responses served from the transport cache.
	UpstreamCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "headhunter_musicbrainz_cache_hits_total",
		Help: "MusicBrainz responses served from the 60s transport cache.",
	})
)
