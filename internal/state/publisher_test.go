package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/couchbaselabs/prom-shard-reaper/internal/shard"
)

func nonEmptySnapshot(t time.Time) *Snapshot {
	return &Snapshot{
		Shards:     []shard.Shard{{ID: 0, SeriesCount: 1, Text: []byte("m 1\n")}},
		Sources:    []SourceResult{{URL: "http://x", Success: true}},
		LastScrape: t,
		NumShards:  1,
	}
}

func TestPublisherNotReadyUntilFirstPublish(t *testing.T) {
	p := NewPublisher()
	require.Nil(t, p.Load())
}

func TestPublisherRejectsEmptySnapshot(t *testing.T) {
	p := NewPublisher()
	ok := p.Publish(&Snapshot{Sources: []SourceResult{{Success: true}}})
	require.False(t, ok)
	require.Nil(t, p.Load())
}

func TestPublisherRejectsAllSourcesFailed(t *testing.T) {
	p := NewPublisher()
	snap := nonEmptySnapshot(time.Now())
	snap.Sources = []SourceResult{{URL: "http://x", Success: false}}
	ok := p.Publish(snap)
	require.False(t, ok)
}

func TestPublisherStalenessPreservation(t *testing.T) {
	p := NewPublisher()
	first := nonEmptySnapshot(time.Now())
	require.True(t, p.Publish(first))

	failed := &Snapshot{Sources: []SourceResult{{URL: "http://x", Success: false}}}
	require.False(t, p.Publish(failed))

	require.Same(t, first, p.Load())
}

func TestPublisherMonotonicVisibility(t *testing.T) {
	p := NewPublisher()
	base := time.Now()
	const n = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			p.Publish(nonEmptySnapshot(base.Add(time.Duration(i) * time.Millisecond)))
		}
	}()

	var last time.Time
	for i := 0; i < 10*n; i++ {
		if snap := p.Load(); snap != nil {
			require.False(t, snap.LastScrape.Before(last))
			last = snap.LastScrape
		}
	}
	wg.Wait()
	require.NotNil(t, p.Load())
	require.True(t, p.Load().LastScrape.Equal(base.Add((n-1)*time.Millisecond)))
}
