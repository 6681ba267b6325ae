// Package orchestrator drives the periodic scrape-parse-shard-publish
// pipeline (spec §4.6).
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/couchbaselabs/prom-shard-reaper/internal/expfmt"
	"github.com/couchbaselabs/prom-shard-reaper/internal/shard"
	"github.com/couchbaselabs/prom-shard-reaper/internal/state"
	"github.com/couchbaselabs/prom-shard-reaper/pkg/config"
)

// Orchestrator is the single periodic task that fans a tick out to one
// fetch per source, runs the parser and shard builder over whatever
// succeeds, and publishes the result. It is the only writer of Publisher's
// slot (spec §4.6, §9 "single-writer discipline").
type Orchestrator struct {
	cfg       *config.Config
	fetcher   Fetcher
	publisher *state.Publisher
	logger    *zap.SugaredLogger

	// ConsecutiveFailures counts scrapes in a row where every source
	// failed. It is written only by Run's goroutine but read concurrently
	// by the HTTP status handler, hence the atomic type.
	ConsecutiveFailures atomic.Int64
}

func New(cfg *config.Config, fetcher Fetcher, publisher *state.Publisher, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logger,
	}
}

// Run ticks every cfg.ScrapeIntervalSecs until ctx is cancelled. A tick
// runs to completion before the next one can start, since Run reads ticks
// from a single select loop: if a scrape overruns the interval the ticker's
// single-slot channel buffers one pending tick, which fires immediately on
// the next loop iteration rather than stacking up concurrent scrapes
// (spec §4.6, §5, §9 - the chosen resolution of the "overlapping ticks"
// open question).
func (o *Orchestrator) Run(ctx context.Context) {
	// Scrape once immediately so the server has data before the first
	// interval elapses, instead of serving 503s for up to
	// scrape_interval_secs after startup.
	o.tick(ctx)

	interval := time.Duration(o.cfg.ScrapeIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("scrape orchestrator shutting down")
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

type fetchResult struct {
	data []byte
	err  error
	dur  time.Duration
}

func (o *Orchestrator) tick(ctx context.Context) {
	start := time.Now()
	results := make([]fetchResult, len(o.cfg.Sources))

	var g errgroup.Group
	for i := range o.cfg.Sources {
		i := i
		src := o.cfg.Sources[i]
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, time.Duration(src.TimeoutSecs)*time.Second)
			defer cancel()
			fstart := time.Now()
			data, err := o.fetcher.Fetch(sctx, src.URL, src.Headers)
			results[i] = fetchResult{data: data, err: err, dur: time.Since(fstart)}
			return nil
		})
	}
	_ = g.Wait()

	sourceResults := make([]state.SourceResult, len(results))
	builder := shard.NewBuilder(o.cfg.NumShards)
	anySuccess := false

	for i, r := range results {
		src := o.cfg.Sources[i]
		sr := state.SourceResult{URL: src.URL, Duration: r.dur}

		if r.err != nil {
			sr.Error = r.err.Error()
			sourceResults[i] = sr
			o.logger.Warnw("source fetch failed", "url", src.URL, "err", r.err)
			continue
		}

		families := expfmt.Parse(r.data, o.logger)
		builder.AddSource(src.ExtraLabels, families)
		sr.Success = true
		sr.MetricFamilies = len(families)
		sourceResults[i] = sr
		anySuccess = true
	}

	if !anySuccess {
		n := o.ConsecutiveFailures.Inc()
		o.logger.Errorw("all sources failed this tick, retaining stale data",
			"consecutive_failures", n, "duration", time.Since(start))
		return
	}

	snapshot := &state.Snapshot{
		Shards:     builder.Build(),
		Sources:    sourceResults,
		LastScrape: time.Now(),
		NumShards:  o.cfg.NumShards,
	}

	if o.publisher.Publish(snapshot) {
		o.ConsecutiveFailures.Store(0)
		o.logger.Infow("scrape tick published",
			"duration", time.Since(start),
			"total_series", snapshot.TotalSeries(),
			"sources_ok", countSuccesses(sourceResults))
	} else {
		o.logger.Warnw("scrape produced no publishable snapshot, retaining stale data",
			"duration", time.Since(start))
	}
}

func countSuccesses(results []state.SourceResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
