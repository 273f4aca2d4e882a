package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/statspub/publisher/internal/store/model"
)

// StatisticsReader is the part of the store the collectors need.
type StatisticsReader interface {
	Statistics(ctx context.Context) (model.PublishingStats, error)
}

type publishingStatsCollector struct {
	store         StatisticsReader
	totalAttempts *prometheus.Desc
}

// NewPublishingStatsCollector reports the total number of publishing attempts
// on every scrape.
func NewPublishingStatsCollector(s StatisticsReader) prometheus.Collector {
	return &publishingStatsCollector{
		store: s,
		totalAttempts: prometheus.NewDesc(
			fmt.Sprintf("%s_publishing_attempts_total", statsPub),
			"Total number of publishing attempts.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *publishingStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalAttempts
}

// Collect implements Collector.
func (c *publishingStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.store.Statistics(ctx)
	if err != nil {
		zap.S().Named("publishing_collector").Errorf("failed to collect publishing statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalAttempts, prometheus.GaugeValue, float64(stats.Total))
}

// RefreshAttemptsGauge updates the attempts-by-overall-stage gauge on a
// jittered interval until ctx is done.
func RefreshAttemptsGauge(ctx context.Context, s StatisticsReader, interval time.Duration) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10, Mean: 0})
	defer ticker.Stop()

	refreshAttemptsGauge(ctx, s)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshAttemptsGauge(ctx, s)
		}
	}
}

func refreshAttemptsGauge(ctx context.Context, s StatisticsReader) {
	stats, err := s.Statistics(ctx)
	if err != nil {
		zap.S().Named("publishing_collector").Warnw("failed to refresh attempts gauge", "error", err)
		return
	}
	for stage, count := range stats.ByOverallStage {
		UpdateAttemptsByOverallStageMetric(string(stage), count)
	}
}
