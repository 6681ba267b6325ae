// Package selfmetrics exposes the reaper's own operational state as a
// Prometheus collector, served on /metrics alongside (not instead of) the
// per-shard endpoints (spec §4.7, §6).
package selfmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchbaselabs/prom-shard-reaper/internal/state"
)

// Collector reads the current snapshot straight out of the Publisher at
// scrape time rather than caching its own copy, so it is exactly as
// lock-free and exactly as fresh as the shard/status endpoints.
type Collector struct {
	publisher *state.Publisher
	numShards uint32

	numShardsDesc      *prometheus.Desc
	lastScrapeAgeDesc  *prometheus.Desc
	shardSeriesDesc    *prometheus.Desc
	shardFamiliesDesc  *prometheus.Desc
	shardSizeBytesDesc *prometheus.Desc
	sourceUpDesc       *prometheus.Desc
	sourceDurationDesc *prometheus.Desc
}

func New(publisher *state.Publisher, numShards uint32) *Collector {
	return &Collector{
		publisher: publisher,
		numShards: numShards,

		numShardsDesc: prometheus.NewDesc(
			"prom_reaper_num_shards", "Number of configured shards.", nil, nil),
		lastScrapeAgeDesc: prometheus.NewDesc(
			"prom_reaper_last_scrape_age_seconds", "Seconds since the last published scrape.", nil, nil),
		shardSeriesDesc: prometheus.NewDesc(
			"prom_reaper_shard_series", "Series currently held by a shard.", []string{"shard"}, nil),
		shardFamiliesDesc: prometheus.NewDesc(
			"prom_reaper_shard_families", "Metric families currently held by a shard.", []string{"shard"}, nil),
		shardSizeBytesDesc: prometheus.NewDesc(
			"prom_reaper_shard_size_bytes", "Rendered exposition body size of a shard, in bytes.", []string{"shard"}, nil),
		sourceUpDesc: prometheus.NewDesc(
			"prom_reaper_source_up", "Whether the last scrape of a source succeeded.", []string{"url"}, nil),
		sourceDurationDesc: prometheus.NewDesc(
			"prom_reaper_source_scrape_duration_seconds", "Duration of the last scrape of a source.", []string{"url"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.numShardsDesc
	ch <- c.lastScrapeAgeDesc
	ch <- c.shardSeriesDesc
	ch <- c.shardFamiliesDesc
	ch <- c.shardSizeBytesDesc
	ch <- c.sourceUpDesc
	ch <- c.sourceDurationDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.numShardsDesc, prometheus.GaugeValue, float64(c.numShards))

	snap := c.publisher.Load()
	if snap == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.lastScrapeAgeDesc, prometheus.GaugeValue,
		time.Since(snap.LastScrape).Seconds())

	for _, sh := range snap.Shards {
		id := strconv.Itoa(int(sh.ID))
		ch <- prometheus.MustNewConstMetric(c.shardSeriesDesc, prometheus.GaugeValue, float64(sh.SeriesCount), id)
		ch <- prometheus.MustNewConstMetric(c.shardFamiliesDesc, prometheus.GaugeValue, float64(sh.FamilyCount), id)
		ch <- prometheus.MustNewConstMetric(c.shardSizeBytesDesc, prometheus.GaugeValue, float64(sh.SizeBytes), id)
	}

	for _, src := range snap.Sources {
		up := 0.0
		if src.Success {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.sourceUpDesc, prometheus.GaugeValue, up, src.URL)
		ch <- prometheus.MustNewConstMetric(c.sourceDurationDesc, prometheus.GaugeValue, src.Duration.Seconds(), src.URL)
	}
}
