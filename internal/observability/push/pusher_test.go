package push

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "job_runs_total"}, []string{"job"})
	swept := prometheus.NewGauge(prometheus.GaugeOpts{Name: "last_swept"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "job_duration_seconds"})
	registry.MustRegister(runs, swept, duration)

	runs.WithLabelValues("abandoned_sweep").Add(2)
	swept.Set(3)
	duration.Observe(1.5)
	return registry
}

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite, MetricsPushEndpoint: "not a url"}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPushExporter: "statsd", MetricsPushEndpoint: "http://localhost"}, log))

	rw := NewPusher(config.Config{MetricsPushExporter: ExporterRemoteWrite, MetricsPushEndpoint: "http://localhost:9090/api/v1/write"}, log)
	assert.IsType(t, &RemoteWritePusher{}, rw)

	gw := NewPusher(config.Config{AppName: "pledgesync", MetricsPushExporter: ExporterPushgateway, MetricsPushEndpoint: "http://localhost:9091"}, log)
	assert.IsType(t, &PushgatewayPusher{}, gw)
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		byName[s.Labels[0].Value] = s
	}
	runs, ok := byName["job_runs_total"]
	require.True(t, ok, "labels sort __name__ first")
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "job_runs_total"},
		{Name: "job", Value: "abandoned_sweep"},
	}, runs.Labels)
	assert.Equal(t, 2.0, runs.Samples[0].Value)
	assert.Equal(t, int64(1000), runs.Samples[0].Timestamp)
	assert.Equal(t, 3.0, byName["last_swept"].Samples[0].Value)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var received prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := received.Unmarshal(raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewRemoteWritePusher(srv.URL, "tok")
	p.now = func() time.Time { return time.UnixMilli(42) }

	require.NoError(t, p.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	require.Len(t, received.Timeseries, 2)
	assert.Equal(t, int64(42), received.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	assert.ErrorContains(t, err, "401")
}
