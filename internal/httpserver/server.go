// Package httpserver adapts the published snapshot to the read-only HTTP
// surface in spec §4.7. Every handler consults the Publisher exactly once
// and never blocks the scrape orchestrator (spec §5).
package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/couchbaselabs/prom-shard-reaper/internal/state"
)

const shardContentType = "text/plain; version=0.0.4; charset=utf-8"

// Server serves the read-only HTTP endpoints. consecutiveFailures, when
// non-nil, is consulted to enrich /status with an informational field; the
// orchestrator is the sole writer of the counter it reads.
type Server struct {
	publisher           *state.Publisher
	logger              *zap.SugaredLogger
	consecutiveFailures func() int64
}

func New(publisher *state.Publisher, logger *zap.SugaredLogger, consecutiveFailures func() int64) *Server {
	return &Server{
		publisher:           publisher,
		logger:              logger,
		consecutiveFailures: consecutiveFailures,
	}
}

// Mux builds the route table. metricsHandler serves the self-monitoring
// /metrics endpoint (built from a prometheus.Registry in main); it is
// injected rather than constructed here so this package stays free of any
// dependency beyond the snapshot it reads.
func (s *Server) Mux(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics/shard/", s.handleShard)
	mux.Handle("/metrics", metricsHandler)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.publisher.Load() == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleShard(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/metrics/shard/")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid shard id", http.StatusNotFound)
		return
	}

	snap := s.publisher.Load()
	if snap == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	if id >= uint64(len(snap.Shards)) {
		http.Error(w, "shard id out of range", http.StatusNotFound)
		return
	}

	sh := snap.Shards[id]
	w.Header().Set("Content-Type", shardContentType)
	if acceptsGzip(r.Header.Get("Accept-Encoding")) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(sh.Gzip)
		return
	}
	_, _ = w.Write(sh.Text)
}

func acceptsGzip(acceptEncoding string) bool {
	for _, coding := range strings.Split(acceptEncoding, ",") {
		if strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			return true
		}
	}
	return false
}

type sourceStatus struct {
	URL            string  `json:"url"`
	Success        bool    `json:"success"`
	DurationMs     float64 `json:"duration_ms"`
	MetricFamilies int     `json:"metric_families"`
	Error          string  `json:"error,omitempty"`
}

type shardStatus struct {
	ID       uint32 `json:"id"`
	SizeBytes int    `json:"size_bytes"`
	Families int    `json:"families"`
	Series   int    `json:"series"`
}

type statusResponse struct {
	NumShards                int            `json:"num_shards"`
	LastScrapeAgoSecs        float64        `json:"last_scrape_ago_secs"`
	Sources                  []sourceStatus `json:"sources"`
	Shards                   []shardStatus  `json:"shards"`
	ConsecutiveScrapeFailures *int64        `json:"consecutive_scrape_failures,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.publisher.Load()
	if snap == nil {
		http.Error(w, `{"error":"not ready"}`, http.StatusServiceUnavailable)
		return
	}

	resp := statusResponse{
		NumShards:         int(snap.NumShards),
		LastScrapeAgoSecs: time.Since(snap.LastScrape).Seconds(),
	}
	for _, src := range snap.Sources {
		resp.Sources = append(resp.Sources, sourceStatus{
			URL:            src.URL,
			Success:        src.Success,
			DurationMs:     float64(src.Duration.Microseconds()) / 1000.0,
			MetricFamilies: src.MetricFamilies,
			Error:          src.Error,
		})
	}
	for _, sh := range snap.Shards {
		resp.Shards = append(resp.Shards, shardStatus{
			ID:        sh.ID,
			SizeBytes: sh.SizeBytes,
			Families:  sh.FamilyCount,
			Series:    sh.SeriesCount,
		})
	}
	if s.consecutiveFailures != nil {
		n := s.consecutiveFailures()
		resp.ConsecutiveScrapeFailures = &n
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Errorw("failed to encode status response", "err", err)
	}
}
