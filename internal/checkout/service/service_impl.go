package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smallbiznis/pledgesync/internal/checkout/domain"
	"github.com/smallbiznis/pledgesync/internal/config"
	contactdomain "github.com/smallbiznis/pledgesync/internal/contact/domain"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/reconcile"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	checkoutSource   = "GoCardless checkout"
	defaultFinancial = "Donation"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Providers ppdomain.Service
	Clients   reconcile.ClientSource
	Contacts  contactdomain.Service
	Recurring recurringdomain.Service
	Engine    *reconcile.Engine
	Settings  *config.SettingsHolder
}

type Service struct {
	log       *zap.Logger
	providers ppdomain.Service
	clients   reconcile.ClientSource
	contacts  contactdomain.Service
	recurring recurringdomain.Service
	engine    *reconcile.Engine
	settings  *config.SettingsHolder
	validate  *validator.Validate
}

func New(p Params) domain.Service {
	settings := p.Settings
	if settings == nil {
		settings = config.NewStaticSettings(config.DefaultSettings())
	}
	return &Service{
		log:       p.Log.Named("checkout.service"),
		providers: p.Providers,
		clients:   p.Clients,
		contacts:  p.Contacts,
		recurring: p.Recurring,
		engine:    p.Engine,
		settings:  settings,
		validate:  validator.New(),
	}
}

func (s *Service) StartCheckout(ctx context.Context, req domain.StartRequest) (*domain.StartResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if err := s.validate.Var(strings.TrimSpace(req.Customer.Email), "required,email"); err != nil {
		return nil, fmt.Errorf("%w: customer email: %v", domain.ErrInvalidRequest, err)
	}
	settings := s.settings.Get()
	if !req.Recurring && !settings.ForceRecurring {
		return nil, domain.ErrOneOffNotSupported
	}

	processor, client, err := s.processorClient(ctx, req.ProcessorID)
	if err != nil {
		return nil, err
	}

	contactID, err := s.contacts.ResolveByEmail(ctx, req.Customer)
	if err != nil {
		return nil, err
	}

	sessionToken := uuid.NewString()
	flow, err := client.CreateRedirectFlow(ctx, paymentdomain.RedirectFlowParams{
		Description:        req.Description,
		SessionToken:       sessionToken,
		SuccessRedirectURL: req.SuccessRedirectURL,
		Customer:           &req.Customer,
	})
	if err != nil {
		return nil, err
	}

	unit := req.FrequencyUnit
	if unit == "" {
		unit = "month"
	}
	interval := req.FrequencyInterval
	if interval <= 0 {
		interval = 1
	}
	flowID := flow.ID
	rc := &recurringdomain.RecurringContribution{
		ProcessorID:       processor.ID,
		ContactID:         contactID,
		RedirectFlowID:    &flowID,
		SessionToken:      &sessionToken,
		Amount:            req.Amount,
		Currency:          req.Currency,
		FrequencyUnit:     unit,
		FrequencyInterval: interval,
		Description:       req.Description,
		FinancialType:     defaultFinancial,
		Source:            checkoutSource,
		Status:            recurringdomain.StatusPending,
		IsTest:            processor.IsTest,
	}
	membershipType := strings.TrimSpace(req.MembershipType)
	if membershipType == "" {
		membershipType, _ = settings.MembershipTypeFor(req.Description)
	}
	if err := s.engine.SetupRecurring(ctx, rc, reconcile.SetupOptions{
		MembershipType: membershipType,
		OpenSlot:       true,
	}); err != nil {
		return nil, err
	}

	s.log.Info("checkout started",
		zap.String("processor_id", processor.ID.String()),
		zap.String("recurring_id", rc.ID.String()),
		zap.String("redirect_flow_id", flow.ID),
		zap.Bool("forced_recurring", !req.Recurring),
	)
	return &domain.StartResult{
		RecurringID:    rc.ID,
		RedirectFlowID: flow.ID,
		RedirectURL:    flow.RedirectURL,
	}, nil
}

// CompleteCheckout is safe to repeat: once the record carries a
// subscription id the stored outcome is returned.
func (s *Service) CompleteCheckout(ctx context.Context, req domain.CompleteRequest) (*domain.CompleteResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	rc, err := s.recurring.FindByRedirectFlow(ctx, req.RedirectFlowID)
	if err != nil {
		return nil, err
	}
	if rc.ExternalID() != "" {
		return &domain.CompleteResult{RecurringID: rc.ID, SubscriptionID: rc.ExternalID(), Status: rc.Status}, nil
	}
	if rc.Status != recurringdomain.StatusPending || rc.SessionToken == nil {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrCheckoutClosed, rc.ID, rc.Status)
	}

	_, client, err := s.processorClient(ctx, rc.ProcessorID)
	if err != nil {
		return nil, err
	}

	flow, err := client.CompleteRedirectFlow(ctx, req.RedirectFlowID, *rc.SessionToken)
	if err != nil {
		return nil, err
	}
	sub, err := client.CreateSubscription(ctx, paymentdomain.CreateSubscriptionParams{
		Amount:         rc.Amount,
		Currency:       rc.Currency,
		Name:           rc.Description,
		IntervalUnit:   intervalUnit(rc.FrequencyUnit),
		Interval:       rc.FrequencyInterval,
		DayOfMonth:     req.DayOfMonth,
		StartDate:      req.StartDate,
		Mandate:        flow.Links.Mandate,
		Metadata:       map[string]string{"recurring_id": rc.ID.String()},
		IdempotencyKey: "checkout-" + rc.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.recurring.SetExternalSubscriptionID(ctx, rc.ID, sub.ID); err != nil {
		return nil, err
	}
	result := &domain.CompleteResult{
		RecurringID:    rc.ID,
		SubscriptionID: sub.ID,
		MandateID:      flow.Links.Mandate,
		Status:         rc.Status,
	}

	target, err := recurringdomain.MapExternalStatus(string(sub.Status))
	if err != nil {
		// The subscription exists remotely; the next webhook settles the status.
		s.log.Error("checkout subscription status unmapped",
			zap.String("recurring_id", rc.ID.String()),
			zap.String("subscription_id", sub.ID),
			zap.Error(err),
		)
		return result, nil
	}
	if _, err := s.recurring.ApplyStatus(ctx, rc, target, "checkout"); err != nil {
		return nil, err
	}
	result.Status = rc.Status

	s.log.Info("checkout completed",
		zap.String("recurring_id", rc.ID.String()),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(rc.Status)),
	)
	return result, nil
}

func (s *Service) CancelRecurring(ctx context.Context, recurringID snowflake.ID) (*recurringdomain.RecurringContribution, error) {
	rc, err := s.recurring.Get(ctx, recurringID)
	if err != nil {
		return nil, err
	}
	if rc.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrRecurringClosed, rc.ID, rc.Status)
	}

	if externalID := rc.ExternalID(); externalID != "" {
		_, client, err := s.processorClient(ctx, rc.ProcessorID)
		if err != nil {
			return nil, err
		}
		if _, err := client.CancelSubscription(ctx, externalID); err != nil && !errors.Is(err, paymentdomain.ErrResourceNotFound) {
			return nil, err
		}
	}

	if _, err := s.recurring.ApplyStatus(ctx, rc, recurringdomain.StatusCancelled, "cancel_request"); err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *Service) UpdateRecurringAmount(ctx context.Context, recurringID snowflake.ID, amount int64) (*recurringdomain.RecurringContribution, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	rc, err := s.recurring.Get(ctx, recurringID)
	if err != nil {
		return nil, err
	}
	if rc.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrRecurringClosed, rc.ID, rc.Status)
	}
	if rc.Amount == amount {
		return rc, nil
	}

	if externalID := rc.ExternalID(); externalID != "" {
		_, client, err := s.processorClient(ctx, rc.ProcessorID)
		if err != nil {
			return nil, err
		}
		if _, err := client.UpdateSubscription(ctx, externalID, paymentdomain.UpdateSubscriptionParams{Amount: &amount}); err != nil {
			return nil, err
		}
	}

	if err := s.recurring.UpdateAmount(ctx, rc.ID, amount); err != nil {
		return nil, err
	}
	s.log.Info("recurring amount updated",
		zap.String("recurring_id", rc.ID.String()),
		zap.Int64("from", rc.Amount),
		zap.Int64("to", amount),
	)
	rc.Amount = amount
	return rc, nil
}

func (s *Service) processorClient(ctx context.Context, processorID snowflake.ID) (*ppdomain.ProviderConfig, paymentdomain.ProviderClient, error) {
	processor, err := s.providers.Get(ctx, processorID)
	if err != nil {
		if errors.Is(err, ppdomain.ErrNotFound) {
			return nil, nil, paymentdomain.ErrProviderNotFound
		}
		return nil, nil, err
	}
	if processor.Provider != ppdomain.ProviderGoCardless {
		return nil, nil, paymentdomain.ErrProviderNotFound
	}
	if !processor.IsActive {
		return nil, nil, domain.ErrProcessorInactive
	}
	client, err := s.clients.Client(ctx, processor.ID)
	if err != nil {
		return nil, nil, err
	}
	return processor, client, nil
}

func intervalUnit(frequencyUnit string) string {
	switch frequencyUnit {
	case "week":
		return "weekly"
	case "year":
		return "yearly"
	default:
		return "monthly"
	}
}
