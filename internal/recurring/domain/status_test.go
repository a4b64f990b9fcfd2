package domain

import (
	"errors"
	"testing"

	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

func TestMapExternalStatus(t *testing.T) {
	cases := map[string]Status{
		"pending_customer_approval": StatusInProgress,
		"customer_approval_denied":  StatusFailed,
		"active":                    StatusInProgress,
		"finished":                  StatusCompleted,
		"cancelled":                 StatusCancelled,
		"paused":                    StatusInProgress,
	}
	for input, want := range cases {
		got, err := MapExternalStatus(input)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", input, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", input, want, got)
		}
	}
}

func TestMapExternalStatusRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "late_failure_settled", "Active"} {
		_, err := MapExternalStatus(input)
		if !errors.Is(err, paymentdomain.ErrUnmappedStatus) {
			t.Fatalf("%q: expected ErrUnmappedStatus, got %v", input, err)
		}
	}
}

func TestPlanSubscriptionStatus(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		target Status
		want   Plan
	}{
		{"pending activates", StatusPending, StatusInProgress, Plan{Target: StatusInProgress, Change: true}},
		{"same status", StatusInProgress, StatusInProgress, Plan{Target: StatusInProgress}},
		{"overdue stays overdue", StatusOverdue, StatusInProgress, Plan{Target: StatusOverdue}},
		{"overdue can be cancelled", StatusOverdue, StatusCancelled, Plan{Target: StatusCancelled, Change: true}},
		{"completed never regresses", StatusCompleted, StatusInProgress, Plan{Target: StatusCompleted}},
		{"cancelled never completes", StatusCancelled, StatusCompleted, Plan{Target: StatusCancelled}},
		{"finished subscription", StatusInProgress, StatusCompleted, Plan{Target: StatusCompleted, Change: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanSubscriptionStatus(tt.from, tt.target); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTerminalStatusesClosePendingSlot(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusFailed} {
		if !s.ClosesPendingSlot() {
			t.Fatalf("%s should close the pending slot", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusInProgress, StatusOverdue} {
		if s.ClosesPendingSlot() {
			t.Fatalf("%s should keep the pending slot", s)
		}
	}
}
