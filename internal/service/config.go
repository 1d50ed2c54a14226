package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roleshop-api/internal/cache"
	"roleshop-api/internal/model"
	"roleshop-api/internal/repository"
	"roleshop-api/pkg/apierror"
)

const configCacheKey = "shop_config:" + model.KindCustomRole

// ConfigService serves shop configuration through a read-through cache.
// Edits take effect within the cache TTL; every shop operation reads
// through here rather than holding config in memory.
type ConfigService struct {
	repo  repository.ShopRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewConfigService creates a config service. cache may be a memory or
// Redis implementation; ttl 0 defaults to 10 seconds.
func NewConfigService(repo repository.ShopRepository, c cache.Cache, ttl time.Duration) *ConfigService {
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	return &ConfigService{repo: repo, cache: c, ttl: ttl}
}

// Get returns the current shop configuration for the custom-role kind.
func (s *ConfigService) Get(ctx context.Context) (*model.ShopConfig, error) {
	data, err := s.cache.GetOrSet(ctx, configCacheKey, s.ttl, func() ([]byte, error) {
		cfg, err := s.repo.GetConfig(ctx, model.KindCustomRole)
		if err != nil {
			return nil, err
		}
		return json.Marshal(cfg)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, apierror.NotFound("shop is not configured")
		}
		return nil, err
	}

	var cfg model.ShopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode cached config: %w", err)
	}
	return &cfg, nil
}

// Update validates and stores a new configuration, then drops the cached
// copy so the next read sees it.
func (s *ConfigService) Update(ctx context.Context, cfg *model.ShopConfig) error {
	if cfg.Kind == "" {
		cfg.Kind = model.KindCustomRole
	}
	if cfg.Price <= 0 || cfg.MaintenanceCost < 0 {
		return apierror.BadRequest("price must be positive and maintenance cost non-negative")
	}
	if cfg.MaintenanceIntervalDays < 1 {
		return apierror.BadRequest("maintenance interval must be at least 1 day")
	}
	if cfg.MaxSharingSlots < 0 || cfg.MaxAuctionDays < 1 {
		return apierror.BadRequest("invalid sharing or auction limits")
	}
	if cfg.SlotRefundRate < 0 || cfg.SlotRefundRate > 1 {
		return apierror.BadRequest("refund rate must be between 0 and 1")
	}

	if err := s.repo.UpdateConfig(ctx, cfg); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, configCacheKey)
	return nil
}
