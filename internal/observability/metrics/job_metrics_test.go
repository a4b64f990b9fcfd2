package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "lock_held", err: fmt.Errorf("sweep: %w", ErrJobLockHeld), want: JobReasonLockHeld},
		{name: "provider", err: fmt.Errorf("list subscriptions: %w", ErrProviderCall), want: JobReasonProvider},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddItemsAndSwept(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewJobMetricsForTest(registry)

	m.AddItems("import", "payment", "added", 3)
	m.AddSwept(2)

	if got := testutil.ToFloat64(m.itemsHandled.WithLabelValues("import", "payment", "added")); got != 3 {
		t.Fatalf("expected 3 items, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweptRecords); got != 2 {
		t.Fatalf("expected 2 swept, got %v", got)
	}
}
