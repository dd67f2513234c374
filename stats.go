package collator

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// statsCollector aggregates the optional statistics gathered during the
// sort phase (spec.md §6: pair_count, unique_key_count, mode_frequency),
// when WithComputeStats is enabled. It is deliberately non-generic: the
// counting logic that needs the key type lives in collate.go, and reports
// its per-partition results here through plain atomics, so one collector
// instance serves every instantiation of Collator[K, V].
//
// Partitions are disjoint and touched by exactly one sort worker each
// (spec.md §4.F), so pairCount and uniqueKeyCount accumulate additively
// across partitions, while modeFrequency takes the max: all pairs of one
// key land in the same partition, so no key's run spans partitions
// (spec.md §3 invariant 5).
type statsCollector struct {
	pairCount      atomic.Uint64
	uniqueKeyCount atomic.Uint64
	modeFrequency  atomic.Uint64

	metrics *metrics.Set
}

func newStatsCollector(workPref string) *statsCollector {
	s := &statsCollector{metrics: metrics.NewSet()}
	s.metrics.GetOrCreateGauge("collator_pair_count{work_pref=\""+workPref+"\"}", func() float64 {
		return float64(s.pairCount.Load())
	})
	s.metrics.GetOrCreateGauge("collator_unique_key_count{work_pref=\""+workPref+"\"}", func() float64 {
		return float64(s.uniqueKeyCount.Load())
	})
	s.metrics.GetOrCreateGauge("collator_mode_frequency{work_pref=\""+workPref+"\"}", func() float64 {
		return float64(s.modeFrequency.Load())
	})
	return s
}

// record folds in one partition's tally, computed by countKeyRuns after
// that partition has been sorted.
func (s *statsCollector) record(pairCount, uniqueKeyCount, maxRun uint64) {
	s.pairCount.Add(pairCount)
	s.uniqueKeyCount.Add(uniqueKeyCount)

	for {
		cur := s.modeFrequency.Load()
		if maxRun <= cur {
			return
		}
		if s.modeFrequency.CompareAndSwap(cur, maxRun) {
			return
		}
	}
}
