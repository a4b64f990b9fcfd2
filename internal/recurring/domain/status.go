package domain

import (
	"fmt"
	"strings"

	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
)

var externalStatusMap = map[paymentdomain.SubscriptionStatus]Status{
	paymentdomain.SubscriptionPendingCustomerApproval: StatusInProgress,
	paymentdomain.SubscriptionCustomerApprovalDenied:  StatusFailed,
	paymentdomain.SubscriptionActive:                  StatusInProgress,
	paymentdomain.SubscriptionFinished:                StatusCompleted,
	paymentdomain.SubscriptionCancelled:               StatusCancelled,
	// Paused collections resume on the same subscription.
	paymentdomain.SubscriptionPaused: StatusInProgress,
}

// MapExternalStatus maps a provider subscription status to the local
// status. Unknown values fail with paymentdomain.ErrUnmappedStatus.
func MapExternalStatus(status string) (Status, error) {
	local, ok := externalStatusMap[paymentdomain.SubscriptionStatus(strings.TrimSpace(status))]
	if !ok {
		return "", fmt.Errorf("%w: %q", paymentdomain.ErrUnmappedStatus, status)
	}
	return local, nil
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled, StatusFailed, StatusOverdue},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusFailed, StatusOverdue},
	StatusOverdue:    {StatusInProgress, StatusCompleted, StatusCancelled, StatusFailed},
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// ClosesPendingSlot reports whether entering s cancels the open Pending
// contribution.
func (s Status) ClosesPendingSlot() bool {
	return s.IsTerminal()
}

func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Plan is the outcome of applying a subscription-level status.
type Plan struct {
	Target Status
	Change bool
}

// PlanSubscriptionStatus decides what a subscription-level status does to a
// record currently in from. Overdue is only cleared by a successful payment,
// and terminal records never regress.
func PlanSubscriptionStatus(from, target Status) Plan {
	if from == target {
		return Plan{Target: from}
	}
	if from == StatusOverdue && target == StatusInProgress {
		return Plan{Target: from}
	}
	if !CanTransition(from, target) {
		return Plan{Target: from}
	}
	return Plan{Target: target, Change: true}
}
