package expfmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	body := `# HELP http_requests_total Total requests
# TYPE http_requests_total counter
http_requests_total{code="200"} 10
http_requests_total{code="404"} 2
# comment to ignore
http_requests_total{code="500"} 0 1620000000000
`
	families := Parse([]byte(body), nil)
	require.Len(t, families, 1)
	f := families[0]
	require.Equal(t, "http_requests_total", f.Name)
	require.Equal(t, MetricCounter, f.Type)
	require.Equal(t, "Total requests", f.Help)
	require.Len(t, f.Samples, 3)
	require.Equal(t, "200", f.Samples[0].Labels["code"])
	require.Equal(t, float64(10), f.Samples[0].Value)
	require.True(t, f.Samples[2].HasTime)
	require.Equal(t, int64(1620000000000), f.Samples[2].TimestampMs)
}

func TestParseLabelOrderInvariance(t *testing.T) {
	a := Parse([]byte(`up{job="a",instance="1"} 1`), nil)
	b := Parse([]byte(`up{instance="1",job="a"} 1`), nil)
	require.Equal(t, a[0].Samples[0].Labels, b[0].Samples[0].Labels)
}

func TestParseSpecialValues(t *testing.T) {
	body := `x NaN
y +Inf
z -Inf
`
	fams := Parse([]byte(body), nil)
	byName := map[string]*MetricFamily{}
	for _, f := range fams {
		byName[f.Name] = f
	}
	require.True(t, isNaN(byName["x"].Samples[0].Value))
	require.True(t, byName["y"].Samples[0].Value > 1e300)
	require.True(t, byName["z"].Samples[0].Value < -1e300)
}

func isNaN(f float64) bool { return f != f }

func TestParseMalformedLineSkipped(t *testing.T) {
	body := `good_metric 1
bad_metric{unterminated="oops 2
good_metric 3
`
	fams := Parse([]byte(body), nil)
	require.Len(t, fams, 1)
	require.Equal(t, "good_metric", fams[0].Name)
	require.Len(t, fams[0].Samples, 2)
}

func TestParseUntypedDefault(t *testing.T) {
	fams := Parse([]byte("plain_metric 5\n"), nil)
	require.Equal(t, MetricUntyped, fams[0].Type)
}

func TestParseFamilyOrderPreserved(t *testing.T) {
	body := `b_metric 1
a_metric 1
b_metric 2
`
	fams := Parse([]byte(body), nil)
	require.Equal(t, []string{"b_metric", "a_metric"}, []string{fams[0].Name, fams[1].Name})
}
