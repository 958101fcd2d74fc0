package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/pkg/config"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/redis"
)

const policyCacheKey = "eventgate:validation_policy"

// PolicyFromConfig builds the default policy from configuration
func PolicyFromConfig(cfg *config.ValidationConfig) (domain.ValidationPolicy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return domain.ValidationPolicy{}, err
	}
	return domain.ValidationPolicy{
		QREnabled:            cfg.QREnabled,
		ScannerEnabled:       cfg.ScannerEnabled,
		RequireValidatorRole: cfg.RequireValidatorRole,
		ScanTimeWindowDays:   cfg.ScanTimeWindowDays,
		AntiReplayEnabled:    cfg.AntiReplayEnabled,
		AntiReplayTTL:        domain.AntiReplayTTLOrDefault(cfg.AntiReplayTTL),
		Location:             loc,
	}, nil
}

type staticPolicyProvider struct {
	policy domain.ValidationPolicy
}

// NewStaticPolicyProvider always returns policy
func NewStaticPolicyProvider(policy domain.ValidationPolicy) PolicyProvider {
	return &staticPolicyProvider{policy: policy}
}

func (p *staticPolicyProvider) GetValidationPolicy(ctx context.Context) (domain.ValidationPolicy, error) {
	return p.policy, nil
}

// StorePolicyProviderConfig configures a settings-backed provider
type StorePolicyProviderConfig struct {
	Settings repository.SettingsRepository
	// Cache is optional
	Cache    *redis.Client
	CacheTTL time.Duration
	// Fallback is used when no settings record exists
	Fallback domain.ValidationPolicy
	Logger   *logger.Logger
}

type storePolicyProvider struct {
	settings repository.SettingsRepository
	cache    *redis.Client
	cacheTTL time.Duration
	fallback domain.ValidationPolicy
	log      *logger.Logger
}

// NewStorePolicyProvider reads the shared settings record, cached in Redis when a client is given
func NewStorePolicyProvider(cfg StorePolicyProviderConfig) PolicyProvider {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &storePolicyProvider{
		settings: cfg.Settings,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		fallback: cfg.Fallback,
		log:      log,
	}
}

// cachedPolicy carries the time zone name, which the policy itself does not serialize
type cachedPolicy struct {
	domain.ValidationPolicy
	TimeZone string `json:"time_zone"`
}

func (p *storePolicyProvider) GetValidationPolicy(ctx context.Context) (domain.ValidationPolicy, error) {
	if policy, ok := p.fromCache(ctx); ok {
		return policy, nil
	}

	stored, err := p.settings.GetValidationPolicy(ctx)
	if err != nil {
		return domain.ValidationPolicy{}, fmt.Errorf("failed to read validation policy: %w", err)
	}

	policy := p.fallback
	if stored != nil {
		policy = *stored
		if policy.Location == nil {
			policy.Location = p.fallback.Location
		}
	}

	p.toCache(ctx, policy)
	return policy, nil
}

func (p *storePolicyProvider) fromCache(ctx context.Context) (domain.ValidationPolicy, bool) {
	if p.cache == nil || p.cacheTTL <= 0 {
		return domain.ValidationPolicy{}, false
	}

	raw, err := p.cache.Get(ctx, policyCacheKey)
	if err != nil {
		if !redis.IsNil(err) {
			p.log.WithContext(ctx).Warn("policy cache read failed", zap.Error(err))
		}
		return domain.ValidationPolicy{}, false
	}

	var cached cachedPolicy
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return domain.ValidationPolicy{}, false
	}
	loc, err := time.LoadLocation(cached.TimeZone)
	if err != nil {
		return domain.ValidationPolicy{}, false
	}
	cached.ValidationPolicy.Location = loc
	return cached.ValidationPolicy, true
}

func (p *storePolicyProvider) toCache(ctx context.Context, policy domain.ValidationPolicy) {
	if p.cache == nil || p.cacheTTL <= 0 {
		return
	}

	tz := "UTC"
	if policy.Location != nil {
		tz = policy.Location.String()
	}
	raw, err := json.Marshal(cachedPolicy{ValidationPolicy: policy, TimeZone: tz})
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, policyCacheKey, raw, p.cacheTTL); err != nil {
		p.log.WithContext(ctx).Warn("policy cache write failed", zap.Error(err))
	}
}
