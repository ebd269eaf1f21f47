// Package metrics collects run counters for the scoring pipeline and
// optionally pushes them to a Prometheus Pushgateway at the end of a run.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Reader metrics
	RecordsRead  prometheus.Counter
	LinesSkipped *prometheus.CounterVec

	// Aggregation metrics
	UtterancesAggregated prometheus.Counter
	EmptyGroups          prometheus.Counter

	// Scoring metrics
	PronunciationScores prometheus.Histogram

	// Run metrics
	RunDuration prometheus.Gauge
)

// Init initializes all metrics and registers them with a private registry.
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		RecordsRead = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gopscore_records_read_total",
			Help: "Total number of phone-level records read",
		})

		LinesSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopscore_lines_skipped_total",
				Help: "Total number of input lines skipped",
			},
			[]string{"reason"},
		)

		UtterancesAggregated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gopscore_utterances_aggregated_total",
			Help: "Total number of utterances aggregated",
		})

		EmptyGroups = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gopscore_empty_groups_total",
			Help: "Total number of utterances dropped because silence filtering emptied them",
		})

		PronunciationScores = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gopscore_pronunciation_score",
			Help:    "Distribution of per-utterance pronunciation scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 through 100
		})

		RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gopscore_run_duration_seconds",
			Help: "Wall-clock duration of the last run",
		})

		registry.MustRegister(
			RecordsRead,
			LinesSkipped,
			UtterancesAggregated,
			EmptyGroups,
			PronunciationScores,
			RunDuration,
		)

		logger.Debug("Metrics registry initialized")
	})
}

// AddRecords counts phone-level records read. Safe before Init.
func AddRecords(n int) {
	if RecordsRead != nil {
		RecordsRead.Add(float64(n))
	}
}

// SkipLine counts one skipped input line by reason. Safe before Init.
func SkipLine(reason string) {
	if LinesSkipped != nil {
		LinesSkipped.WithLabelValues(reason).Inc()
	}
}

// IncAggregated counts one aggregated utterance. Safe before Init.
func IncAggregated() {
	if UtterancesAggregated != nil {
		UtterancesAggregated.Inc()
	}
}

// IncEmptyGroups counts one utterance dropped by silence filtering. Safe
// before Init.
func IncEmptyGroups() {
	if EmptyGroups != nil {
		EmptyGroups.Inc()
	}
}

// ObserveScore records one pronunciation score. Safe before Init.
func ObserveScore(v float64) {
	if PronunciationScores != nil {
		PronunciationScores.Observe(v)
	}
}

// ObserveRun records the wall-clock duration of a completed run.
func ObserveRun(start time.Time) {
	if RunDuration != nil {
		RunDuration.Set(time.Since(start).Seconds())
	}
}

// Push sends the collected metrics to a Pushgateway, grouped by run id.
// A push failure is the caller's to log; a batch run never fails on it.
func Push(gatewayURL, job, runID string) error {
	if registry == nil {
		return nil
	}
	return push.New(gatewayURL, job).
		Gatherer(registry).
		Grouping("run_id", runID).
		Push()
}
