// Package state holds the immutable scrape-result snapshot and the
// lock-free publisher that exposes it to concurrent HTTP readers.
package state

import (
	"time"

	"github.com/couchbaselabs/prom-shard-reaper/internal/shard"
)

// SourceResult records the outcome of fetching and parsing one configured
// source during the scrape that produced the enclosing Snapshot.
type SourceResult struct {
	URL            string
	Success        bool
	Duration       time.Duration
	MetricFamilies int
	Error          string
}

// Snapshot is immutable after Publisher.Publish: no field is ever mutated
// once readers can observe it (spec §3, §4.4, §9).
type Snapshot struct {
	Shards      []shard.Shard
	Sources     []SourceResult
	LastScrape  time.Time
	NumShards   uint32
}

// TotalSeries sums SeriesCount across every shard, for status/self-metrics.
func (s *Snapshot) TotalSeries() int {
	total := 0
	for _, sh := range s.Shards {
		total += sh.SeriesCount
	}
	return total
}

// NonEmpty reports whether any shard carries at least one series. A
// snapshot is only ever published if it is non-empty and at least one
// source succeeded (spec §3 invariant 5).
func (s *Snapshot) NonEmpty() bool {
	return s.TotalSeries() > 0
}

// AnySourceSucceeded reports whether the scrape that produced this snapshot
// had at least one successful source.
func (s *Snapshot) AnySourceSucceeded() bool {
	for _, r := range s.Sources {
		if r.Success {
			return true
		}
	}
	return false
}
