package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/importer"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/smallbiznis/pledgesync/internal/scheduler/guard"
)

func newTestScheduler(t *testing.T, h *reconciletest.Harness) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	s, err := New(Params{
		Log:       h.Log,
		GenID:     h.Node,
		Clock:     h.Clock,
		Recurring: h.Recurring,
		Metrics:   obsmetrics.NewJobMetricsForTest(registry),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, registry
}

func TestAbandonedSweepHonoursCutoffBoundary(t *testing.T) {
	h := reconciletest.New(t)
	s, _ := newTestScheduler(t, h)
	ctx := context.Background()

	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	h.Clock.Advance(24 * time.Hour)

	ids, err := s.AbandonedSweep(ctx, 24)
	if err != nil {
		t.Fatalf("sweep at cutoff: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected nothing swept exactly at the cutoff, got %v", ids)
	}
	if got := h.Reload(t, rc.ID).Status; got != recurringdomain.StatusPending {
		t.Fatalf("expected Pending, got %s", got)
	}

	h.Clock.Advance(time.Second)
	ids, err = s.AbandonedSweep(ctx, 24)
	if err != nil {
		t.Fatalf("sweep past cutoff: %v", err)
	}
	if len(ids) != 1 || ids[0] != rc.ID {
		t.Fatalf("expected [%s], got %v", rc.ID, ids)
	}
	if got := h.Reload(t, rc.ID).Status; got != recurringdomain.StatusFailed {
		t.Fatalf("expected Failed, got %s", got)
	}
	items := h.ContributionsOf(t, rc.ID)
	if len(items) != 1 || items[0].Status != contributiondomain.StatusCancelled {
		t.Fatalf("expected the pending slot cancelled, got %+v", items)
	}

	ids, err = s.AbandonedSweep(ctx, 24)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected a second sweep to be a no-op, got %v", ids)
	}
}

func TestAbandonedSweepSkipsActiveRecords(t *testing.T) {
	h := reconciletest.New(t)
	s, _ := newTestScheduler(t, h)

	active := h.NewRecurring(t, reconciletest.RecurringOptions{
		SubscriptionID: "SB1",
		Status:         recurringdomain.StatusInProgress,
	})
	h.Clock.Advance(72 * time.Hour)

	ids, err := s.AbandonedSweep(context.Background(), 24)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no swept records, got %v", ids)
	}
	if got := h.Reload(t, active.ID).Status; got != recurringdomain.StatusInProgress {
		t.Fatalf("expected InProgress, got %s", got)
	}
}

func TestAbandonedSweepRejectsInvalidTimeout(t *testing.T) {
	h := reconciletest.New(t)
	s, _ := newTestScheduler(t, h)

	if _, err := s.AbandonedSweep(context.Background(), 0); !errors.Is(err, guard.ErrInvalidSweepTimeout) {
		t.Fatalf("expected ErrInvalidSweepTimeout, got %v", err)
	}
	if _, err := s.RunAbandonedSweep(context.Background(), -2); !errors.Is(err, guard.ErrInvalidSweepTimeout) {
		t.Fatalf("expected ErrInvalidSweepTimeout, got %v", err)
	}
}

func TestRunAbandonedSweepRecordsMetrics(t *testing.T) {
	h := reconciletest.New(t)
	s, registry := newTestScheduler(t, h)

	h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB2", OpenSlot: true})
	h.Clock.Advance(25 * time.Hour)

	result, err := s.RunAbandonedSweep(context.Background(), 0)
	if err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if len(result.AffectedIDs) != 2 {
		t.Fatalf("expected 2 affected records, got %v", result.AffectedIDs)
	}
	if want := h.Clock.Now().Add(-24 * time.Hour); !result.Cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, result.Cutoff)
	}

	base := map[string]string{"service": "pledgesync", "env": "test"}
	if got := getCounterValue(t, registry, "pledgesync_swept_records_total", base); got != 2 {
		t.Fatalf("expected swept count 2, got %v", got)
	}
	runLabels := map[string]string{"service": "pledgesync", "env": "test", "job": JobAbandonedSweep}
	if got := getCounterValue(t, registry, "pledgesync_job_runs_total", runLabels); got != 1 {
		t.Fatalf("expected 1 job run, got %v", got)
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	h := reconciletest.New(t)
	s, registry := newTestScheduler(t, h)

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "pledgesync",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "pledgesync_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "pledgesync",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "pledgesync_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	h := reconciletest.New(t)
	s, _ := newTestScheduler(t, h)
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", time.Second, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestRunImportRequiresImporter(t *testing.T) {
	h := reconciletest.New(t)
	s, _ := newTestScheduler(t, h)

	if _, err := s.RunImport(context.Background(), importer.Options{ProcessorID: h.ProcessorID}, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
