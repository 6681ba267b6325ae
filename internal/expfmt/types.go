// Package expfmt tokenizes Prometheus text exposition bodies into ordered
// metric families. It is intentionally narrower than
// github.com/prometheus/common/expfmt: it never aborts on a malformed line,
// it preserves first-seen family order, and it keeps raw label maps instead
// of building a full model.Vector, which is what the shard builder needs.
package expfmt

// MetricType is the Prometheus metric type as declared by a `# TYPE` line.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
	MetricSummary   MetricType = "summary"
	MetricUntyped   MetricType = "untyped"
)

// Sample is a single exposed observation: a label set, a value, and the
// optional timestamp/exemplar that may trail it on the line.
type Sample struct {
	Labels    map[string]string
	Value     float64
	HasTime   bool
	TimestampMs int64
	Exemplar  string
}

// MetricFamily groups every sample sharing a metric name under one type and
// HELP text.
type MetricFamily struct {
	Name    string
	Type    MetricType
	Help    string
	Samples []Sample
}

func parseMetricType(s string) MetricType {
	switch s {
	case "counter":
		return MetricCounter
	case "gauge":
		return MetricGauge
	case "histogram":
		return MetricHistogram
	case "summary":
		return MetricSummary
	default:
		return MetricUntyped
	}
}
