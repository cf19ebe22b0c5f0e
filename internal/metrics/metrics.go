package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "weather_card_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	weatherFetchTotal   *prometheus.CounterVec
	weatherFetchLatency *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	momentResolutions   *prometheus.CounterVec
	citySelections      *prometheus.CounterVec
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		weatherFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "weather_fetch_total",
				Help: "Weather provider fetches by provider and result",
			},
			[]string{"provider", "result"},
		)
		weatherFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "weather_fetch_latency_seconds",
				Help:    "Weather provider fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "result"},
		)
		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_lookups_total",
				Help: "Weather cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		momentResolutions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "moment_resolutions_total",
				Help: "Day/night resolutions by moment",
			},
			[]string{"moment"},
		)
		citySelections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "city_selections_total",
				Help: "City selections by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			weatherFetchTotal,
			weatherFetchLatency,
			cacheLookups,
			momentResolutions,
			citySelections,
		)
	})
}

func ObserveWeatherFetch(provider, result string, duration time.Duration) {
	if weatherFetchTotal == nil {
		return
	}
	weatherFetchTotal.WithLabelValues(provider, result).Inc()
	weatherFetchLatency.WithLabelValues(provider, result).Observe(duration.Seconds())
}

// IncCacheLookup records a cache lookup; outcome is "hit", "miss" or "stale".
func IncCacheLookup(outcome string) {
	if cacheLookups == nil {
		return
	}
	cacheLookups.WithLabelValues(outcome).Inc()
}

func IncMomentResolution(moment string) {
	if momentResolutions == nil {
		return
	}
	momentResolutions.WithLabelValues(moment).Inc()
}

func IncCitySelection(result string) {
	if citySelections == nil {
		return
	}
	citySelections.WithLabelValues(result).Inc()
}
