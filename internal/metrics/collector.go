// Package metrics exposes engine counters over Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates engine metrics. A nil Collector is safe to call
// so wiring stays optional.
type Collector struct {
	turnsTotal       *prometheus.CounterVec
	chainDepth       prometheus.Histogram
	respondents      prometheus.Histogram
	interruptions    prometheus.Counter
	providerLatency  *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	sentencesPlayed  prometheus.Counter
	sentenceFallback prometheus.Counter
}

// New registers the engine metrics on a registry. Pass nil to use the
// default registry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gdflow",
			Name:      "turns_total",
			Help:      "Utterances processed, by speaker kind.",
		}, []string{"kind"}),
		chainDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gdflow",
			Name:      "reaction_chain_depth",
			Help:      "Depth at which each reaction chain terminated.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		respondents: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gdflow",
			Name:      "respondents_selected",
			Help:      "Respondents chosen per processed utterance.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gdflow",
			Name:      "interruptions_total",
			Help:      "AI turns abandoned because the facilitator spoke.",
		}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gdflow",
			Name:      "provider_latency_seconds",
			Help:      "Upstream call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gdflow",
			Name:      "provider_errors_total",
			Help:      "Upstream call failures.",
		}, []string{"provider", "op"}),
		sentencesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gdflow",
			Name:      "sentences_played_total",
			Help:      "Sentences synthesized and played.",
		}),
		sentenceFallback: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gdflow",
			Name:      "sentence_fallbacks_total",
			Help:      "Sentences replaced by the fallback phrase.",
		}),
	}
}

// ObserveTurn counts one processed utterance.
func (c *Collector) ObserveTurn(kind string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(kind).Inc()
}

// ObserveChainDepth records the depth a chain reached.
func (c *Collector) ObserveChainDepth(depth int) {
	if c == nil {
		return
	}
	c.chainDepth.Observe(float64(depth))
}

// ObserveRespondents records how many respondents an utterance drew.
func (c *Collector) ObserveRespondents(n int) {
	if c == nil {
		return
	}
	c.respondents.Observe(float64(n))
}

// ObserveInterruption counts an abandoned AI turn.
func (c *Collector) ObserveInterruption() {
	if c == nil {
		return
	}
	c.interruptions.Inc()
}

// ObserveProviderCall records latency and outcome of an upstream call.
func (c *Collector) ObserveProviderCall(provider, op string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.providerLatency.WithLabelValues(provider, op).Observe(d.Seconds())
	if err != nil {
		c.providerErrors.WithLabelValues(provider, op).Inc()
	}
}

// ObserveSentence counts one played sentence, fallback or not.
func (c *Collector) ObserveSentence(fallback bool) {
	if c == nil {
		return
	}
	c.sentencesPlayed.Inc()
	if fallback {
		c.sentenceFallback.Inc()
	}
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
