package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/models"
)

type fakeWalletReader struct {
	balance uint64
	staked  uint64
	err     error
	calls   int
}

func (f *fakeWalletReader) GetTokenBalance(context.Context, string) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.balance, nil
}

func (f *fakeWalletReader) GetStakingInfo(context.Context, string) (*models.StakingInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.staked == 0 {
		return nil, nil
	}
	return &models.StakingInfo{Amount: f.staked}, nil
}

func TestEvaluateBoundaries(t *testing.T) {
	assert.False(t, Evaluate(999, 0)[models.TierAlpha])
	assert.True(t, Evaluate(1000, 0)[models.TierAlpha])

	assert.False(t, Evaluate(1_000_000, 4999)[models.TierRawData])
	assert.True(t, Evaluate(0, 5000)[models.TierRawData])

	assert.False(t, Evaluate(9999, 0)[models.TierAPI])
	assert.True(t, Evaluate(10000, 0)[models.TierAPI])

	assert.False(t, Evaluate(49999, 0)[models.TierGovernance])
	assert.True(t, Evaluate(50000, 0)[models.TierGovernance])

	for _, tier := range models.AllTiers {
		assert.NotZero(t, Threshold(tier))
	}
}

func TestEvaluateIsMonotonic(t *testing.T) {
	points := []uint64{0, 1, 999, 1000, 4999, 5000, 9999, 10000, 49999, 50000, 1 << 40}
	for _, total := range points {
		for _, staked := range points {
			base := Evaluate(total, staked)
			assert.Equal(t, base, Evaluate(total, staked))
			for _, more := range []uint64{1, 1000, 100000} {
				for _, next := range []map[models.Tier]bool{
					Evaluate(total+more, staked),
					Evaluate(total, staked+more),
				} {
					for tier, granted := range base {
						if granted {
							assert.True(t, next[tier], "tier %s revoked at total=%d staked=%d", tier, total, staked)
						}
					}
				}
			}
		}
	}
}

func TestCheckAccessCombinesBalanceAndStake(t *testing.T) {
	reader := &fakeWalletReader{balance: 12000, staked: 200}
	svc := NewAccessService(reader, nil, zap.NewNop())

	info, err := svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(12200), info.TotalTokens)
	assert.Equal(t, uint64(200), info.StakedAmount)
	assert.True(t, info.Has(models.TierAlpha))
	assert.True(t, info.Has(models.TierAPI))
	assert.False(t, info.Has(models.TierRawData))
	assert.False(t, info.Degraded())

	_, err = svc.Authorize(context.Background(), testWallet, models.TierRawData)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrInsufficientAccess, appErr.Code)
	assert.Equal(t, "insufficient stake", appErr.Message)
}

func TestCheckAccessTotalDoesNotWrap(t *testing.T) {
	reader := &fakeWalletReader{balance: math.MaxUint64, staked: 6000}
	svc := NewAccessService(reader, nil, zap.NewNop())

	info, err := svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), info.TotalTokens)
	assert.True(t, info.Has(models.TierGovernance))
	assert.True(t, info.Has(models.TierRawData))
}

func TestCheckAccessCachesPerWallet(t *testing.T) {
	reader := &fakeWalletReader{balance: 1000}
	cache := NewAccessCache(time.Minute)
	svc := NewAccessService(reader, cache, zap.NewNop())

	for i := 0; i < 3; i++ {
		info, err := svc.CheckAccess(context.Background(), testWallet)
		require.NoError(t, err)
		assert.True(t, info.Has(models.TierAlpha))
	}
	assert.Equal(t, 1, reader.calls)

	// accepted staleness: a balance change is not seen until the entry expires
	reader.balance = 0
	info, err := svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, info.Has(models.TierAlpha))

	cache.Delete(testWallet)
	info, err = svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, info.Has(models.TierAlpha))
}

func TestCheckAccessDegradesOnRPCFailure(t *testing.T) {
	reader := &fakeWalletReader{err: models.NewAppErrorWithCause(models.ErrRPCUnavailable, "getTokenAccountsByOwner failed", errors.New("timeout"))}
	cache := NewAccessCache(time.Minute)
	svc := NewAccessService(reader, cache, zap.NewNop())

	info, err := svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, info.Degraded())
	for _, tier := range models.AllTiers {
		assert.False(t, info.Has(tier))
	}
	assert.Nil(t, cache.Get(testWallet), "degraded result must not be cached")

	reader.err = nil
	reader.balance = 50000
	info, err = svc.CheckAccess(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, info.Has(models.TierGovernance))
}

func TestCheckAccessRejectsInvalidAddress(t *testing.T) {
	svc := NewAccessService(&fakeWalletReader{}, nil, zap.NewNop())
	_, err := svc.CheckAccess(context.Background(), "bogus!")
	assert.True(t, models.HasCode(err, models.ErrInvalidAddress))
}
