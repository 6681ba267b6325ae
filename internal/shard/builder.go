package shard

import (
	"bytes"
	"compress/gzip"
	"sort"
	"strconv"
	"strings"

	"github.com/couchbaselabs/prom-shard-reaper/internal/expfmt"
)

// Shard is one pre-rendered output partition: a syntactically valid
// Prometheus exposition body, its gzip-compressed form, and the counters
// the status/self-metrics endpoints report (spec §3 Shard).
type Shard struct {
	ID          uint32
	Text        []byte
	Gzip        []byte
	FamilyCount int
	SeriesCount int
	SizeBytes   int
}

// Builder assigns every sample handed to it to a shard via AssignShard and
// incrementally renders that shard's exposition body. A Builder is used for
// exactly one scrape: construct it, call AddSource once per successful
// fetch, then Build to get the immutable Shard slice (spec §4.3).
type Builder struct {
	n    uint32
	bufs []*shardBuf
}

type shardBuf struct {
	buf    bytes.Buffer
	headed map[string]bool
	series int
}

func NewBuilder(n uint32) *Builder {
	bufs := make([]*shardBuf, n)
	for i := range bufs {
		bufs[i] = &shardBuf{headed: make(map[string]bool)}
	}
	return &Builder{n: n, bufs: bufs}
}

// AddSource folds one source's parsed families into the shards, merging
// extraLabels into every sample's label set. When an extra label has the
// same name as an exporter-produced label, the extra label's value wins;
// config validation only rejects an extra label named __name__ (spec §4.3,
// §9).
func (b *Builder) AddSource(extraLabels map[string]string, families []*expfmt.MetricFamily) {
	for _, f := range families {
		for _, s := range f.Samples {
			effective := mergeLabels(extraLabels, s.Labels)
			key := SeriesKey(f.Name, effective)
			sid := AssignShard(key, b.n)

			sb := b.bufs[sid]
			if !sb.headed[f.Name] {
				writeHeader(&sb.buf, f)
				sb.headed[f.Name] = true
			}
			writeSample(&sb.buf, f.Name, effective, s)
			sb.series++
		}
	}
}

// Build renders the final immutable Shard slice, gzip-compressing each
// body exactly once.
func (b *Builder) Build() []Shard {
	shards := make([]Shard, b.n)
	for i, sb := range b.bufs {
		text := sb.buf.Bytes()
		shards[i] = Shard{
			ID:          uint32(i),
			Text:        text,
			Gzip:        gzipBytes(text),
			FamilyCount: len(sb.headed),
			SeriesCount: sb.series,
			SizeBytes:   len(text),
		}
	}
	return shards
}

func gzipBytes(text []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(text)
	_ = zw.Close()
	return buf.Bytes()
}

// SeriesKey builds the byte string described in spec §3: the metric name, a
// NUL separator, then the label block in ascending lexicographic order of
// label name, so that two label sets differing only in insertion order
// produce an identical key (spec §8 property 3).
func SeriesKey(name string, labels map[string]string) []byte {
	names := sortedNames(labels)

	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(0)
	for i, n := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(n)
		buf.WriteByte('=')
		buf.WriteString(labels[n])
	}
	return buf.Bytes()
}

func sortedNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for n := range labels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mergeLabels(extra, sample map[string]string) map[string]string {
	if len(extra) == 0 {
		return sample
	}
	effective := make(map[string]string, len(sample)+len(extra))
	for k, v := range sample {
		effective[k] = v
	}
	for k, v := range extra {
		effective[k] = v
	}
	return effective
}

func writeHeader(buf *bytes.Buffer, f *expfmt.MetricFamily) {
	if f.Help != "" {
		buf.WriteString("# HELP ")
		buf.WriteString(f.Name)
		buf.WriteByte(' ')
		buf.WriteString(escapeHelp(f.Help))
		buf.WriteByte('\n')
	}
	buf.WriteString("# TYPE ")
	buf.WriteString(f.Name)
	buf.WriteByte(' ')
	buf.WriteString(string(f.Type))
	buf.WriteByte('\n')
}

func writeSample(buf *bytes.Buffer, name string, labels map[string]string, s expfmt.Sample) {
	buf.WriteString(name)
	if len(labels) > 0 {
		buf.WriteByte('{')
		names := sortedNames(labels)
		for i, n := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(n)
			buf.WriteString(`="`)
			buf.WriteString(escapeLabelValue(labels[n]))
			buf.WriteString(`"`)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(' ')
	buf.WriteString(formatValue(s.Value))
	if s.HasTime {
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(s.TimestampMs, 10))
	}
	if s.Exemplar != "" {
		buf.WriteString(" # ")
		buf.WriteString(s.Exemplar)
	}
	buf.WriteByte('\n')
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func escapeHelp(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}
