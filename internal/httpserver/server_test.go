package httpserver

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/couchbaselabs/prom-shard-reaper/internal/shard"
	"github.com/couchbaselabs/prom-shard-reaper/internal/state"
)

func testServer(t *testing.T) (*Server, *state.Publisher) {
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	pub := state.NewPublisher()
	return New(pub, l.Sugar(), nil), pub
}

func TestHealthNotReady(t *testing.T) {
	s, _ := testServer(t)
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthReady(t *testing.T) {
	s, pub := testServer(t)
	pub.Publish(&state.Snapshot{
		Shards:     []shard.Shard{{ID: 0, SeriesCount: 1, Text: []byte("m 1\n")}},
		Sources:    []state.SourceResult{{URL: "u", Success: true}},
		LastScrape: time.Now(),
		NumShards:  1,
	})
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func publishTwoShards(pub *state.Publisher) {
	pub.Publish(&state.Snapshot{
		Shards: []shard.Shard{
			{ID: 0, SeriesCount: 1, Text: []byte("a 1\n"), Gzip: gzipOf("a 1\n")},
			{ID: 1, SeriesCount: 1, Text: []byte("b 1\n"), Gzip: gzipOf("b 1\n")},
		},
		Sources:    []state.SourceResult{{URL: "u", Success: true}},
		LastScrape: time.Now(),
		NumShards:  2,
	})
}

func gzipOf(s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(s))
	_ = zw.Close()
	return buf.Bytes()
}

func TestShardEndpointPlainAndGzip(t *testing.T) {
	s, pub := testServer(t)
	publishTwoShards(pub)
	mux := s.Mux(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/shard/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a 1\n", rec.Body.String())
	require.Equal(t, shardContentType, rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Header().Get("Content-Encoding"))

	req := httptest.NewRequest(http.MethodGet, "/metrics/shard/0", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	require.Equal(t, "gzip", rec2.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec2.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "a 1\n", string(plain))
}

func TestShardEndpointOutOfRange(t *testing.T) {
	s, pub := testServer(t)
	publishTwoShards(pub)
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/shard/9999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShardEndpointNotReady(t *testing.T) {
	s, _ := testServer(t)
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/shard/0", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusJSON(t *testing.T) {
	s, pub := testServer(t)
	publishTwoShards(pub)
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.NumShards)
	require.Len(t, resp.Sources, 1)
	require.Len(t, resp.Shards, 2)
}

func TestStatusNotReady(t *testing.T) {
	s, _ := testServer(t)
	mux := s.Mux(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
