package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/patrickmn/go-cache"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/smallbiznis/pledgesync/internal/payment/domain"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.factories[provider]
	return ok
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

const (
	adapterTTL     = 10 * time.Minute
	adapterCleanup = 15 * time.Minute
)

// ClientRegistry builds adapters from stored processor configs and caches
// them per processor. A config update changes the cache key.
type ClientRegistry struct {
	registry  *Registry
	providers ppdomain.Service
	cfg       config.Config
	cache     *cache.Cache

	mu        sync.RWMutex
	overrides map[snowflake.ID]domain.ProviderClient
}

func NewClientRegistry(registry *Registry, providers ppdomain.Service, cfg config.Config) *ClientRegistry {
	return &ClientRegistry{
		registry:  registry,
		providers: providers,
		cfg:       cfg,
		cache:     cache.New(adapterTTL, adapterCleanup),
		overrides: map[snowflake.ID]domain.ProviderClient{},
	}
}

// Override replaces the remote client of one processor. Webhook signature
// checks still use the stored credentials.
func (r *ClientRegistry) Override(processorID snowflake.ID, client domain.ProviderClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client == nil {
		delete(r.overrides, processorID)
	} else {
		r.overrides[processorID] = client
	}
	r.cache.Flush()
}

func (r *ClientRegistry) Adapter(ctx context.Context, pc ppdomain.ProviderConfig) (domain.PaymentAdapter, error) {
	key := fmt.Sprintf("%s:%d", pc.ID.String(), pc.UpdatedAt.UnixNano())
	if cached, ok := r.cache.Get(key); ok {
		return cached.(domain.PaymentAdapter), nil
	}

	creds, err := r.providers.Credentials(pc)
	if err != nil {
		return nil, fmt.Errorf("%w: processor %s: %v", domain.ErrInvalidConfig, pc.ID, err)
	}
	adapter, err := r.registry.NewAdapter(pc.Provider, domain.AdapterConfig{
		ProcessorID:   pc.ID,
		Provider:      pc.Provider,
		IsTest:        pc.IsTest,
		AccessToken:   creds.AccessToken,
		WebhookSecret: creds.WebhookSecret,
		Environment:   environmentFor(pc, creds),
		BaseURL:       r.cfg.ProviderBaseURL,
		MaxRetries:    r.cfg.ProviderMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	override, ok := r.overrides[pc.ID]
	r.mu.RUnlock()
	if ok {
		adapter = &overriddenAdapter{PaymentAdapter: adapter, client: override}
	}

	r.cache.SetDefault(key, adapter)
	return adapter, nil
}

func (r *ClientRegistry) Client(ctx context.Context, processorID snowflake.ID) (domain.ProviderClient, error) {
	r.mu.RLock()
	override, ok := r.overrides[processorID]
	r.mu.RUnlock()
	if ok {
		return override, nil
	}

	pc, err := r.providers.Get(ctx, processorID)
	if err != nil {
		return nil, err
	}
	adapter, err := r.Adapter(ctx, *pc)
	if err != nil {
		return nil, err
	}
	return adapter.Client(), nil
}

func environmentFor(pc ppdomain.ProviderConfig, creds ppdomain.Credentials) string {
	if creds.Environment != "" {
		return creds.Environment
	}
	if pc.IsTest {
		return "sandbox"
	}
	return "live"
}

type overriddenAdapter struct {
	domain.PaymentAdapter
	client domain.ProviderClient
}

func (a *overriddenAdapter) Client() domain.ProviderClient {
	return a.client
}
