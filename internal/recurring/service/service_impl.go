package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	contributiondomain "github.com/smallbiznis/pledgesync/internal/contribution/domain"
	"github.com/smallbiznis/pledgesync/internal/events"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	"github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Repo          domain.Repository
	Contributions contributiondomain.Repository
	Clock         clock.Clock
	Publisher     events.Publisher `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	repo          domain.Repository
	contributions contributiondomain.Repository
	clock         clock.Clock
	publisher     events.Publisher
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("recurring.service"),
		repo:          p.Repo,
		contributions: p.Contributions,
		clock:         p.Clock,
		publisher:     publisher,
	}
}

func (s *Service) FindLocal(ctx context.Context, externalSubscriptionID string) (*domain.RecurringContribution, error) {
	externalSubscriptionID = strings.TrimSpace(externalSubscriptionID)
	if externalSubscriptionID == "" {
		return nil, paymentdomain.ErrUnresolvedSubscription
	}
	rc, err := s.repo.FindByExternalID(ctx, s.db, externalSubscriptionID)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrUnresolvedSubscription, externalSubscriptionID)
	}
	return rc, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.RecurringContribution, error) {
	rc, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, domain.ErrNotFound
	}
	return rc, nil
}

func (s *Service) FindByRedirectFlow(ctx context.Context, redirectFlowID string) (*domain.RecurringContribution, error) {
	rc, err := s.repo.FindByRedirectFlowID(ctx, s.db, strings.TrimSpace(redirectFlowID))
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, domain.ErrNotFound
	}
	return rc, nil
}

func (s *Service) Create(ctx context.Context, rc *domain.RecurringContribution) error {
	if rc.Status == "" {
		rc.Status = domain.StatusPending
	}
	now := s.clock.Now()
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = now
	}
	rc.UpdatedAt = now
	if rc.StartDate.IsZero() {
		rc.StartDate = now
	}
	return s.repo.Insert(ctx, s.db, rc)
}

func (s *Service) SetExternalSubscriptionID(ctx context.Context, id snowflake.ID, externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	updated, err := s.repo.SetExternalID(ctx, s.db, id, externalID, s.clock.Now())
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	rc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rc.ExternalID() == externalID {
		return nil
	}
	return fmt.Errorf("%w: %s already bound to %s", domain.ErrExternalIDAlreadyAssigned, id, rc.ExternalID())
}

func (s *Service) ApplyStatus(ctx context.Context, rc *domain.RecurringContribution, target domain.Status, reason string) (bool, error) {
	plan := domain.PlanSubscriptionStatus(rc.Status, target)
	if !plan.Change {
		s.log.Debug("recurring status unchanged",
			zap.String("recurring_id", rc.ID.String()),
			zap.String("status", string(rc.Status)),
			zap.String("requested", string(target)),
		)
		return false, nil
	}

	from := rc.Status
	var cancelled int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.UpdateStatus(ctx, tx, rc.ID, from, plan.Target, now)
		if err != nil {
			return err
		}
		if !ok {
			return errStatusMoved
		}
		if plan.Target == domain.StatusCancelled || plan.Target == domain.StatusCompleted {
			if err := s.repo.SetEnded(ctx, tx, rc.ID, now, plan.Target == domain.StatusCancelled); err != nil {
				return err
			}
		}
		if plan.Target.ClosesPendingSlot() {
			cancelled, err = s.contributions.CancelPending(ctx, tx, rc.ID, now)
			if err != nil {
				return err
			}
		}
		rc.Status = plan.Target
		rc.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errStatusMoved) {
		// Another writer changed the record first; re-plan from fresh state.
		fresh, getErr := s.Get(ctx, rc.ID)
		if getErr != nil {
			return false, getErr
		}
		*rc = *fresh
		return s.ApplyStatus(ctx, rc, target, reason)
	}
	if err != nil {
		return false, err
	}

	s.log.Info("recurring status changed",
		zap.String("recurring_id", rc.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(plan.Target)),
		zap.String("reason", reason),
		zap.Int64("pending_cancelled", cancelled),
	)
	s.publisher.Publish(ctx, events.Event{
		Type:        events.TypeRecurringStatusChanged,
		RecurringID: rc.ID,
		ProcessorID: rc.ProcessorID,
		Status:      string(plan.Target),
		Reason:      reason,
		OccurredAt:  rc.UpdatedAt,
	})
	return true, nil
}

func (s *Service) UpdateAmount(ctx context.Context, id snowflake.ID, amount int64) error {
	updated, err := s.repo.UpdateAmount(ctx, s.db, id, amount, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) SweepAbandoned(ctx context.Context, provider string, cutoff time.Time) ([]snowflake.ID, error) {
	ids, err := s.repo.ListStalePending(ctx, s.db, provider, cutoff)
	if err != nil {
		return nil, err
	}

	affected := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return affected, err
		}
		swept := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.clock.Now()
			ok, err := s.repo.UpdateStatus(ctx, tx, id, domain.StatusPending, domain.StatusFailed, now)
			if err != nil || !ok {
				return err
			}
			if _, err := s.contributions.CancelPending(ctx, tx, id, now); err != nil {
				return err
			}
			swept = true
			return nil
		})
		if err != nil {
			return affected, fmt.Errorf("sweep recurring %s: %w", id, err)
		}
		if swept {
			affected = append(affected, id)
			s.publisher.Publish(ctx, events.Event{
				Type:        events.TypeRecurringSwept,
				RecurringID: id,
				Status:      string(domain.StatusFailed),
				Reason:      "abandoned",
				OccurredAt:  s.clock.Now(),
			})
		}
	}
	return affected, nil
}

var errStatusMoved = errors.New("recurring_status_moved")
