package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	membershipdomain "github.com/smallbiznis/pledgesync/internal/membership/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/payment/providertest"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	"github.com/smallbiznis/pledgesync/internal/reconcile/reconciletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// engineWith builds an engine over the harness with some collaborators swapped.
func engineWith(h *reconciletest.Harness, contributions contributiondomain.Repository, memberships membershipdomain.Repository) *reconcile.Engine {
	if contributions == nil {
		contributions = h.Contributions
	}
	if memberships == nil {
		memberships = h.Memberships
	}
	return reconcile.New(reconcile.Params{
		DB:            h.DB,
		Log:           h.Log,
		GenID:         h.Node,
		Clock:         h.Clock,
		Clients:       providertest.Clients{h.ProcessorID: h.Client},
		Recurring:     h.Recurring,
		RecurringRepo: h.RecurringRepo,
		Contributions: contributions,
		Memberships:   memberships,
		Settings:      h.Settings,
		Publisher:     h.Events,
	})
}

// blindContributions hides existing rows from the lookups, as a concurrent
// writer would between the read and the insert.
type blindContributions struct {
	contributiondomain.Repository
}

func (blindContributions) ExternalPaymentIDs(context.Context, *gorm.DB, snowflake.ID) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (blindContributions) FindByExternalPaymentID(context.Context, *gorm.DB, snowflake.ID, string) (*contributiondomain.Contribution, error) {
	return nil, nil
}

type failingLinks struct {
	membershipdomain.Repository
}

func (failingLinks) LinkPayment(context.Context, *gorm.DB, *membershipdomain.MembershipPayment) error {
	return errors.New("membership_payments: disk I/O error")
}

func settled(id string, chargeDate string) paymentdomain.Payment {
	return paymentdomain.Payment{
		ID:         id,
		CreatedAt:  reconciletest.Epoch,
		Amount:     1000,
		Currency:   "GBP",
		Status:     paymentdomain.PaymentConfirmed,
		ChargeDate: chargeDate,
		Links:      paymentdomain.PaymentLinks{Subscription: "SB1"},
	}
}

func TestImportPaymentsSkipsPaymentRecordedConcurrently(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1"})

	first, err := h.Engine.ImportPayments(ctx, rc, []paymentdomain.Payment{settled("PM1", "2024-01-15")})
	require.NoError(t, err)
	require.Equal(t, 1, first.Added)

	racing := engineWith(h, blindContributions{Repository: h.Contributions}, nil)
	result, err := racing.ImportPayments(ctx, rc, []paymentdomain.Payment{
		settled("PM1", "2024-01-15"),
		settled("PM2", "2024-02-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, int64(1000), result.Amount)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 2)
	assert.Equal(t, "PM1", items[0].ExternalID())
	assert.Equal(t, "PM2", items[1].ExternalID())
	assert.Equal(t, int64(2), h.PaymentCount(t, rc.ID))
}

func TestReconcilePaymentReportsDuplicateReferenceFromStorage(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{SubscriptionID: "SB1", OpenSlot: true})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-01-15")
	_, err := h.Engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)

	racing := engineWith(h, blindContributions{Repository: h.Contributions}, nil)
	_, err = racing.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.True(t, errors.Is(err, paymentdomain.ErrDuplicateExternalReference), "got %v", err)
	assert.True(t, paymentdomain.IsBusinessDrop(err))

	assert.Len(t, h.ContributionsOf(t, rc.ID), 1)
	assert.Equal(t, int64(1), h.PaymentCount(t, rc.ID))
}

func TestReconcilePaymentKeepsContributionWhenMembershipLinkFails(t *testing.T) {
	h := reconciletest.New(t)
	ctx := context.Background()
	rc := h.NewRecurring(t, reconciletest.RecurringOptions{
		SubscriptionID: "SB1",
		OpenSlot:       true,
		MembershipType: "general",
	})
	putPayment(h, "PM1", "SB1", paymentdomain.PaymentConfirmed, 1000, "2024-01-15")

	engine := engineWith(h, nil, failingLinks{Repository: h.Memberships})
	outcome, err := engine.ReconcilePayment(ctx, h.ProcessorID, "PM1", confirmed...)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeSlotCompleted, outcome)

	items := h.ContributionsOf(t, rc.ID)
	require.Len(t, items, 1)
	assert.Equal(t, contributiondomain.StatusCompleted, items[0].Status)
	assert.Equal(t, "PM1", items[0].ExternalID())
	assert.Equal(t, int64(1), h.PaymentCount(t, rc.ID))

	memberships, err := h.Memberships.ListByRecurring(ctx, h.DB, rc.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, membershipdomain.StatusPending, memberships[0].Status)

	var links int64
	require.NoError(t, h.DB.Model(&membershipdomain.MembershipPayment{}).Count(&links).Error)
	assert.Zero(t, links)

	assert.Len(t, h.Events.OfType(events.TypeContributionCompleted), 1)
}
