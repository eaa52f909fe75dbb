package fees

import (
	"context"
	"sync"
	"time"

	"github.com/contestforge/backend/internal/models"
)

// ConfigStore is the app_configs document access the provider needs.
type ConfigStore interface {
	Get(ctx context.Context, configID string, out any) (bool, error)
	Put(ctx context.Context, configID string, doc any) error
}

const configTTL = 5 * time.Minute

// Provider serves the contest fee configuration with a short TTL cache
// so every validation does not hit the database. Admin updates call
// Invalidate for an immediate refresh.
type Provider struct {
	store ConfigStore

	mu        sync.Mutex
	cached    *models.FeeConfig
	fetchedAt time.Time

	now func() time.Time
}

func NewProvider(store ConfigStore) *Provider {
	return &Provider{store: store, now: time.Now}
}

// Config returns the current fee configuration, seeding defaults when no
// document exists yet.
func (p *Provider) Config(ctx context.Context) (*models.FeeConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.now().Sub(p.fetchedAt) < configTTL {
		return p.cached, nil
	}

	var cfg models.FeeConfig
	found, err := p.store.Get(ctx, models.ConfigIDContestFees, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg = *models.DefaultFeeConfig()
		if err := p.store.Put(ctx, models.ConfigIDContestFees, &cfg); err != nil {
			return nil, err
		}
	}
	p.cached = &cfg
	p.fetchedAt = p.now()
	return p.cached, nil
}

// Update persists a new configuration and refreshes the cache in place.
func (p *Provider) Update(ctx context.Context, cfg *models.FeeConfig) error {
	if err := p.store.Put(ctx, models.ConfigIDContestFees, cfg); err != nil {
		return err
	}
	p.mu.Lock()
	p.cached = cfg
	p.fetchedAt = p.now()
	p.mu.Unlock()
	return nil
}

// Invalidate drops the cache so the next read hits the database.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
