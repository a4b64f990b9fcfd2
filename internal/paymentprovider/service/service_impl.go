package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cfg   config.Config
	Clock clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	encKey   []byte
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("paymentprovider.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		encKey:   DeriveKey(p.Cfg.ProcessorConfigSecret),
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.ProviderConfig, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Provider = normalizeProvider(req.Provider)
	req.Credentials = normalizeCredentials(req.Credentials)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrInvalidConfig
	}
	if req.Provider != domain.ProviderGoCardless {
		return nil, domain.ErrInvalidProvider
	}

	sealed, err := Seal(s.encKey, req.Credentials)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cfg := domain.ProviderConfig{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Provider:  req.Provider,
		Config:    sealed,
		IsActive:  true,
		IsTest:    req.IsTest,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &cfg); err != nil {
		return nil, err
	}

	s.log.Info("payment processor created",
		zap.String("processor_id", cfg.ID.String()),
		zap.String("provider", cfg.Provider),
		zap.Bool("is_test", cfg.IsTest),
	)
	return &cfg, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.ProviderConfig, error) {
	cfg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrNotFound
	}
	return cfg, nil
}

func (s *Service) List(ctx context.Context, provider string) ([]domain.ProviderConfig, error) {
	provider = normalizeProvider(provider)
	if provider == "" {
		return nil, domain.ErrInvalidProvider
	}
	return s.repo.ListByProvider(ctx, s.db, provider)
}

func (s *Service) SetActive(ctx context.Context, id snowflake.ID, isActive bool) (*domain.ProviderConfig, error) {
	updated, err := s.repo.UpdateStatus(ctx, s.db, id, isActive, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}
	s.log.Info("payment processor status changed",
		zap.String("processor_id", id.String()),
		zap.Bool("is_active", isActive),
	)
	return s.Get(ctx, id)
}

// Credentials decrypts and validates the stored credential envelope.
func (s *Service) Credentials(cfg domain.ProviderConfig) (domain.Credentials, error) {
	creds, err := Open(s.encKey, cfg.Config)
	if err != nil {
		return domain.Credentials{}, err
	}
	creds = normalizeCredentials(creds)
	if err := s.validate.Struct(creds); err != nil {
		return domain.Credentials{}, domain.ErrInvalidConfig
	}
	return creds, nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func normalizeCredentials(c domain.Credentials) domain.Credentials {
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	return c
}
