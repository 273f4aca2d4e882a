package model

import "github.com/statspub/publisher/internal/publishing"

var overallStages = []publishing.OverallStage{
	publishing.OverallValidating,
	publishing.OverallScheduled,
	publishing.OverallStarted,
	publishing.OverallComplete,
	publishing.OverallFailed,
	publishing.OverallInvalid,
	publishing.OverallSuperseded,
}

// PublishingStats counts publishing attempts by overall stage.
type PublishingStats struct {
	ByOverallStage map[publishing.OverallStage]int64
	Total          int64
}

// NewPublishingStats fills in zero counts for stages with no attempts so
// gauges for them are reset.
func NewPublishingStats(counts map[string]int64) PublishingStats {
	stats := PublishingStats{ByOverallStage: make(map[publishing.OverallStage]int64, len(overallStages))}
	for _, s := range overallStages {
		stats.ByOverallStage[s] = 0
	}
	for stage, n := range counts {
		stats.ByOverallStage[publishing.OverallStage(stage)] = n
		stats.Total += n
	}
	return stats
}
