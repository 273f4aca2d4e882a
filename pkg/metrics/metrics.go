package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statsPub = "statspub"

	// Publishing metrics
	stageTransitionsTotal = "stage_transitions_total"
	stageFailuresTotal    = "stage_failures_total"
	releasesPublished     = "releases_published_total"

	// Public data metrics
	dataSetQueriesTotal = "data_set_queries_total"

	// Lifecycle events
	eventsDroppedTotal = "events_dropped_total"

	// Attempt gauge
	AttemptsByOverallStage = "publishing_attempts"

	// Labels
	stageLabel        = "stage"
	valueLabel        = "value"
	overallStageLabel = "overall_stage"
	formatLabel       = "format"
	outcomeLabel      = "outcome"
	kindLabel         = "kind"
)

var stageTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: statsPub,
		Name:      stageTransitionsTotal,
		Help:      "number of stage values written, by stage and value",
	},
	[]string{stageLabel, valueLabel},
)

var stageFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: statsPub,
		Name:      stageFailuresTotal,
		Help:      "number of failed stage actions",
	},
	[]string{stageLabel},
)

var releasesPublishedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: statsPub,
		Name:      releasesPublished,
		Help:      "number of release versions published",
	},
)

var dataSetQueriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: statsPub,
		Name:      dataSetQueriesTotal,
		Help:      "number of public data set queries by response format and outcome",
	},
	[]string{formatLabel, outcomeLabel},
)

var eventsDroppedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: statsPub,
		Name:      eventsDroppedTotal,
		Help:      "number of lifecycle events dropped because the event buffer was full",
	},
	[]string{kindLabel},
)

var attemptsByOverallStageMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: statsPub,
		Name:      AttemptsByOverallStage,
		Help:      "metrics to record the number of publishing attempts in each overall stage",
	},
	[]string{overallStageLabel},
)

func IncreaseStageTransitionsMetric(stage, value string) {
	stageTransitionsTotalMetric.With(prometheus.Labels{stageLabel: stage, valueLabel: value}).Inc()
}

func IncreaseStageFailuresMetric(stage string) {
	stageFailuresTotalMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseReleasesPublishedMetric() {
	releasesPublishedMetric.Inc()
}

func IncreaseDataSetQueriesMetric(format, outcome string) {
	dataSetQueriesTotalMetric.With(prometheus.Labels{formatLabel: format, outcomeLabel: outcome}).Inc()
}

func IncreaseEventsDroppedMetric(kind string) {
	eventsDroppedTotalMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func UpdateAttemptsByOverallStageMetric(stage string, count int64) {
	attemptsByOverallStageMetric.With(prometheus.Labels{overallStageLabel: stage}).Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(stageTransitionsTotalMetric)
	prometheus.MustRegister(stageFailuresTotalMetric)
	prometheus.MustRegister(releasesPublishedMetric)
	prometheus.MustRegister(dataSetQueriesTotalMetric)
	prometheus.MustRegister(eventsDroppedTotalMetric)
	prometheus.MustRegister(attemptsByOverallStageMetric)
	prometheus.MustRegister(totalUniqueDataSetsPerWeekMetric)
}
