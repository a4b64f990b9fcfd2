package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/pledgesync/internal/observability/context"
	"github.com/smallbiznis/pledgesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	"github.com/smallbiznis/pledgesync/internal/payment/adapters"
	"github.com/smallbiznis/pledgesync/internal/payment/adapters/gocardless"
	paymentdomain "github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Providers  ppdomain.Service
	Clients    *adapters.ClientRegistry
	Dispatcher *Dispatcher
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	providers  ppdomain.Service
	clients    *adapters.ClientRegistry
	dispatcher *Dispatcher
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		providers:  p.Providers,
		clients:    p.Clients,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

// IngestWebhook authenticates a signed batch and dispatches its events. An
// empty processorID tries every configured processor in turn; that path only
// exists for endpoints registered before processor ids were put in the URL.
//
// Only ErrAuthentication and ErrProviderNotFound are returned. A signed body
// that does not parse is logged and answered with an empty Result; per-event
// failures end up in the Result.
func (s *Service) IngestWebhook(ctx context.Context, processorID string, payload []byte, headers http.Header) (*Result, error) {
	var (
		processor *ppdomain.ProviderConfig
		adapter   paymentdomain.PaymentAdapter
		err       error
	)
	processorID = strings.TrimSpace(processorID)
	if processorID != "" {
		processor, adapter, err = s.verifyProcessor(ctx, processorID, payload, headers)
	} else {
		processor, adapter, err = s.matchAdapter(ctx, payload, headers)
	}
	if err != nil {
		if errors.Is(err, paymentdomain.ErrAuthentication) {
			logger.WithContext(ctx, s.log).Warn("webhook authentication failed",
				zap.String("processor_id", processorID),
				zap.Error(err),
			)
			s.metrics.RecordWebhookEvent(ctx, gocardless.ProviderName, "batch", "unauthenticated")
		}
		return nil, err
	}

	ctx = obscontext.WithProcessorID(ctx, processor.ID.String())
	events, err := adapter.Parse(ctx, payload)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("dropping unparseable webhook batch",
			zap.Int("bytes", len(payload)),
			zap.Error(err),
		)
		s.metrics.RecordWebhookEvent(ctx, gocardless.ProviderName, "batch", "invalid_payload")
		return &Result{}, nil
	}

	result := s.dispatcher.Dispatch(ctx, *processor, events)
	logger.WithContext(ctx, s.log).Info("webhook batch handled",
		zap.Int("events", len(events)),
		zap.Int("processed", len(result.Processed)),
		zap.Int("ignored", len(result.Ignored)),
		zap.Int("duplicates", len(result.Duplicates)),
		zap.Int("failed", len(result.Failed)),
	)
	return &result, nil
}

func (s *Service) verifyProcessor(ctx context.Context, rawID string, payload []byte, headers http.Header) (*ppdomain.ProviderConfig, paymentdomain.PaymentAdapter, error) {
	id, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, nil, paymentdomain.ErrProviderNotFound
	}
	processor, err := s.providers.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ppdomain.ErrNotFound) {
			return nil, nil, paymentdomain.ErrProviderNotFound
		}
		return nil, nil, err
	}
	if processor.Provider != gocardless.ProviderName {
		return nil, nil, paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.clients.Adapter(ctx, *processor)
	if err != nil {
		return nil, nil, err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return nil, nil, err
	}
	if !processor.IsActive {
		return nil, nil, fmt.Errorf("%w: processor %s is inactive", paymentdomain.ErrAuthentication, processor.ID)
	}
	return processor, adapter, nil
}

// matchAdapter returns the first processor whose secret signs payload.
func (s *Service) matchAdapter(ctx context.Context, payload []byte, headers http.Header) (*ppdomain.ProviderConfig, paymentdomain.PaymentAdapter, error) {
	configs, err := s.providers.List(ctx, gocardless.ProviderName)
	if err != nil {
		return nil, nil, err
	}

	for i := range configs {
		processor := configs[i]
		adapter, err := s.clients.Adapter(ctx, processor)
		if err != nil {
			s.log.Warn("skipping unusable processor config",
				zap.String("processor_id", processor.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if err := adapter.Verify(ctx, payload, headers); err != nil {
			continue
		}
		if !processor.IsActive {
			return nil, nil, fmt.Errorf("%w: processor %s is inactive", paymentdomain.ErrAuthentication, processor.ID)
		}
		return &processor, adapter, nil
	}
	return nil, nil, paymentdomain.ErrAuthentication
}
