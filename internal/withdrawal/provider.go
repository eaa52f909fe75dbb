package withdrawal

import (
	"context"
	"sync"
	"time"

	"github.com/contestforge/backend/internal/models"
)

// ConfigStore is the config document and method catalogue access the
// withdrawal engine needs.
type ConfigStore interface {
	Get(ctx context.Context, configID string, out any) (bool, error)
	Put(ctx context.Context, configID string, doc any) error
	ListWithdrawalMethods(ctx context.Context, activeOnly bool) ([]*models.WithdrawalMethod, error)
	GetWithdrawalMethod(ctx context.Context, methodID string) (*models.WithdrawalMethod, error)
}

const configTTL = 5 * time.Minute

// Provider serves the withdrawal configuration with a short TTL cache.
type Provider struct {
	store ConfigStore

	mu        sync.Mutex
	cached    *models.WithdrawalConfig
	fetchedAt time.Time

	now func() time.Time
}

func NewProvider(store ConfigStore) *Provider {
	return &Provider{store: store, now: time.Now}
}

func (p *Provider) Config(ctx context.Context) (*models.WithdrawalConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.now().Sub(p.fetchedAt) < configTTL {
		return p.cached, nil
	}

	var cfg models.WithdrawalConfig
	found, err := p.store.Get(ctx, models.ConfigIDWithdrawals, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg = *models.DefaultWithdrawalConfig()
		if err := p.store.Put(ctx, models.ConfigIDWithdrawals, &cfg); err != nil {
			return nil, err
		}
	}
	p.cached = &cfg
	p.fetchedAt = p.now()
	return p.cached, nil
}

func (p *Provider) Update(ctx context.Context, cfg *models.WithdrawalConfig) error {
	if err := p.store.Put(ctx, models.ConfigIDWithdrawals, cfg); err != nil {
		return err
	}
	p.mu.Lock()
	p.cached = cfg
	p.fetchedAt = p.now()
	p.mu.Unlock()
	return nil
}

func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
