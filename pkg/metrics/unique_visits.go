package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueDataSets struct {
	counter prometheus.Gauge
	seen    map[string]struct{}
	mu      sync.RWMutex
}

const dataSetsQueriedPerWeek = "data_sets_queried_per_week"

var totalUniqueDataSetsPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: statsPub,
		Name:      dataSetsQueriedPerWeek,
		Help:      "metrics to record the number of distinct data sets queried per week",
	},
)

var UniqueDataSetsPerWeek = &uniqueDataSets{
	counter: totalUniqueDataSetsPerWeekMetric,
	seen:    make(map[string]struct{}),
}

func (v *uniqueDataSets) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seen = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueDataSets) Add(dataSetID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.seen[dataSetID]; exists {
		return
	}

	v.seen[dataSetID] = struct{}{}
	v.counter.Inc()
}

func (v *uniqueDataSets) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.seen)
}
