package services

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"cynix/models"
	"cynix/utils"
)

// Tier thresholds in raw token units.
const (
	AlphaThreshold      uint64 = 1000
	RawDataThreshold    uint64 = 5000
	APIThreshold        uint64 = 10000
	GovernanceThreshold uint64 = 50000
)

// Evaluate derives the unlocked tiers from balances. It does no I/O.
func Evaluate(totalTokens, stakedAmount uint64) map[models.Tier]bool {
	return map[models.Tier]bool{
		models.TierAlpha:      totalTokens >= AlphaThreshold,
		models.TierRawData:    stakedAmount >= RawDataThreshold,
		models.TierAPI:        totalTokens >= APIThreshold,
		models.TierGovernance: totalTokens >= GovernanceThreshold,
	}
}

// Threshold returns the amount a tier requires.
func Threshold(tier models.Tier) uint64 {
	switch tier {
	case models.TierAlpha:
		return AlphaThreshold
	case models.TierRawData:
		return RawDataThreshold
	case models.TierAPI:
		return APIThreshold
	case models.TierGovernance:
		return GovernanceThreshold
	}
	return 0
}

// WalletReader is the on-chain state AccessService needs.
type WalletReader interface {
	GetTokenBalance(ctx context.Context, wallet string) (uint64, error)
	GetStakingInfo(ctx context.Context, wallet string) (*models.StakingInfo, error)
}

type AccessService struct {
	reader WalletReader
	cache  *ttlcache.Cache[string, *models.WalletAccessInfo]
	now    func() time.Time
	logger *zap.Logger
}

// NewAccessCache builds the per-wallet decision cache. Hits do not extend the TTL.
func NewAccessCache(ttl time.Duration) *ttlcache.Cache[string, *models.WalletAccessInfo] {
	return ttlcache.New[string, *models.WalletAccessInfo](
		ttlcache.WithTTL[string, *models.WalletAccessInfo](ttl),
		ttlcache.WithDisableTouchOnHit[string, *models.WalletAccessInfo](),
	)
}

func NewAccessService(reader WalletReader, cache *ttlcache.Cache[string, *models.WalletAccessInfo], logger *zap.Logger) *AccessService {
	return &AccessService{
		reader: reader,
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}
}

// CheckAccess reads the wallet's balance and stake and evaluates its tiers.
// RPC failures yield a degraded result with no tiers and are not cached.
// An invalid address is returned as an error.
func (s *AccessService) CheckAccess(ctx context.Context, wallet string) (*models.WalletAccessInfo, error) {
	if !utils.IsValidAddress(wallet) {
		return nil, models.NewAppError(models.ErrInvalidAddress, "invalid wallet address")
	}

	if s.cache != nil {
		if item := s.cache.Get(wallet); item != nil {
			utils.AccessChecks.WithLabelValues("cache").Inc()
			return item.Value(), nil
		}
	}

	info, err := s.fetch(ctx, wallet)
	if err != nil {
		utils.AccessChecks.WithLabelValues("degraded").Inc()
		s.logger.Warn("Access check degraded",
			zap.String("wallet", wallet),
			zap.Error(err))
		return &models.WalletAccessInfo{
			WalletAddress: wallet,
			AccessLevels:  Evaluate(0, 0),
			Error:         err.Error(),
			CheckedAt:     s.now().UTC(),
		}, nil
	}

	utils.AccessChecks.WithLabelValues("rpc").Inc()
	if s.cache != nil {
		s.cache.Set(wallet, info, ttlcache.DefaultTTL)
	}
	return info, nil
}

func (s *AccessService) fetch(ctx context.Context, wallet string) (*models.WalletAccessInfo, error) {
	balance, err := s.reader.GetTokenBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}

	staking, err := s.reader.GetStakingInfo(ctx, wallet)
	if err != nil {
		return nil, err
	}

	var staked uint64
	if staking != nil {
		staked = staking.Amount
	}

	// total_tokens counts staked tokens as held.
	total := utils.SaturatingAdd(balance, staked)
	return &models.WalletAccessInfo{
		WalletAddress: wallet,
		TotalTokens:   total,
		StakedAmount:  staked,
		AccessLevels:  Evaluate(total, staked),
		CheckedAt:     s.now().UTC(),
	}, nil
}

// Authorize returns the access info when tier is unlocked, or InsufficientAccess.
func (s *AccessService) Authorize(ctx context.Context, wallet string, tier models.Tier) (*models.WalletAccessInfo, error) {
	info, err := s.CheckAccess(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !info.Has(tier) {
		return info, models.InsufficientAccess(tier)
	}
	return info, nil
}
