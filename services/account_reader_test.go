package services

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
	"cynix/utils"
)

type fakeRPC struct {
	accounts     map[string]*models.AccountInfoValue
	signatures   []models.SignatureInfo
	transactions map[string]*models.TransactionResult
	tokens       *models.TokenAccountsResult
	err          error
	txErr        map[string]error
	txCalls      int
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, address string) (*models.AccountInfoValue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[address], nil
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, _ string, limit int) ([]models.SignatureInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.signatures) {
		return f.signatures[:limit], nil
	}
	return f.signatures, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, signature string) (*models.TransactionResult, error) {
	f.txCalls++
	if err := f.txErr[signature]; err != nil {
		return nil, err
	}
	return f.transactions[signature], nil
}

func (f *fakeRPC) GetTokenAccountsByOwner(context.Context, string, string) (*models.TokenAccountsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tokens == nil {
		return &models.TokenAccountsResult{}, nil
	}
	return f.tokens, nil
}

func newTestReader(t *testing.T, rpc SolanaRPC) *AccountReader {
	t.Helper()
	cfg := config.Default()
	cfg.Solana.TokenMint = testMint
	r, err := NewAccountReader(rpc, cfg, zap.NewNop())
	require.NoError(t, err)
	return r
}

func stakingBytes(amount, start, claim uint64) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:], amount)
	binary.LittleEndian.PutUint64(buf[8:], start)
	binary.LittleEndian.PutUint64(buf[16:], claim)
	return buf
}

func int64Ptr(v int64) *int64 { return &v }

func TestDecodeStakingData(t *testing.T) {
	info, err := DecodeStakingData(stakingBytes(5000, 1_700_000_000, 1_700_086_400))
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), info.Amount)
	assert.Equal(t, uint64(1_700_000_000), info.StartTime)
	assert.Equal(t, uint64(1_700_086_400), info.LastClaim)

	// trailing bytes are ignored
	info, err = DecodeStakingData(append(stakingBytes(7, 8, 9), 0xff, 0xff))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), info.Amount)

	_, err = DecodeStakingData(make([]byte, 23))
	assert.True(t, models.HasCode(err, models.ErrMalformedAccountData))
}

func TestGetStakingInfo(t *testing.T) {
	rpc := &fakeRPC{accounts: map[string]*models.AccountInfoValue{}}
	reader := newTestReader(t, rpc)

	wallet, err := utils.ParsePublicKey(testWallet)
	require.NoError(t, err)
	addr, err := reader.StakingAddress(wallet)
	require.NoError(t, err)
	assert.False(t, utils.IsOnCurve(addr.Bytes()))

	t.Run("no staking account", func(t *testing.T) {
		info, err := reader.GetStakingInfo(context.Background(), testWallet)
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("decoded", func(t *testing.T) {
		rpc.accounts[addr.String()] = &models.AccountInfoValue{
			Data: []string{base64.StdEncoding.EncodeToString(stakingBytes(6000, 1, 2)), "base64"},
		}
		info, err := reader.GetStakingInfo(context.Background(), testWallet)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, uint64(6000), info.Amount)
		assert.Equal(t, addr.String(), info.Address)
	})

	t.Run("short data", func(t *testing.T) {
		rpc.accounts[addr.String()] = &models.AccountInfoValue{
			Data: []string{base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), "base64"},
		}
		_, err := reader.GetStakingInfo(context.Background(), testWallet)
		assert.True(t, models.HasCode(err, models.ErrMalformedAccountData))
	})

	t.Run("invalid wallet", func(t *testing.T) {
		_, err := reader.GetStakingInfo(context.Background(), "not-a-wallet")
		assert.True(t, models.HasCode(err, models.ErrInvalidAddress))
	})
}

func TestGetTokenBalanceSumsAccounts(t *testing.T) {
	var tokens models.TokenAccountsResult
	for _, amount := range []string{"700", "450"} {
		var acc models.TokenAccount
		acc.Account.Data.Parsed.Info.TokenAmount.Amount = amount
		tokens.Value = append(tokens.Value, acc)
	}

	reader := newTestReader(t, &fakeRPC{tokens: &tokens})
	balance, err := reader.GetTokenBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(1150), balance)

	reader = newTestReader(t, &fakeRPC{})
	balance, err = reader.GetTokenBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestGetTokenBalanceSaturates(t *testing.T) {
	var tokens models.TokenAccountsResult
	for _, amount := range []string{"18446744073709551615", "5000"} {
		var acc models.TokenAccount
		acc.Account.Data.Parsed.Info.TokenAmount.Amount = amount
		tokens.Value = append(tokens.Value, acc)
	}

	reader := newTestReader(t, &fakeRPC{tokens: &tokens})
	balance, err := reader.GetTokenBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), balance)
}

func TestGetAccountHistory(t *testing.T) {
	sigs := make([]models.SignatureInfo, 15)
	txs := make(map[string]*models.TransactionResult)
	for i := range sigs {
		sig := fmt.Sprintf("sig%02d", i)
		sigs[i] = models.SignatureInfo{Signature: sig, BlockTime: int64Ptr(int64(2000 - i))}
		tx := &models.TransactionResult{BlockTime: int64Ptr(int64(2000 - i)), Meta: &models.TransactionMeta{Fee: 5000}}
		tx.Transaction.Signatures = []string{sig}
		tx.Transaction.Message.AccountKeys = []string{testWallet, "ProgramA", "Other"}
		tx.Transaction.Message.Instructions = []models.RawInstruction{
			{ProgramIDIndex: 1, Accounts: []int{0, 2}, Data: "3Bxs"},
		}
		txs[sig] = tx
	}

	rpc := &fakeRPC{
		accounts: map[string]*models.AccountInfoValue{
			testWallet: {Lamports: 42, Owner: "11111111111111111111111111111111", Data: []string{"", "base64"}},
		},
		signatures:   sigs,
		transactions: txs,
		txErr:        map[string]error{"sig01": errors.New("boom")},
	}
	reader := newTestReader(t, rpc)

	history, err := reader.GetAccountHistory(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, history.Exists)
	assert.False(t, history.IsContract)
	assert.Equal(t, uint64(42), history.Lamports)
	assert.Equal(t, 15, history.TransactionCount)
	require.NotNil(t, history.FirstSeen)
	assert.Equal(t, int64(1986), *history.FirstSeen)

	assert.Equal(t, 10, rpc.txCalls)
	require.Len(t, history.RecentTransactions, 9, "failed transaction is skipped")
	first := history.RecentTransactions[0]
	assert.Equal(t, "sig00", first.Signature)
	assert.True(t, first.Success)
	require.Len(t, first.Instructions, 1)
	assert.Equal(t, "ProgramA", first.Instructions[0].ProgramID)
	assert.Equal(t, []string{testWallet, "Other"}, first.Instructions[0].Accounts)
}

func TestGetAccountHistoryContractAndDegraded(t *testing.T) {
	rpc := &fakeRPC{accounts: map[string]*models.AccountInfoValue{
		testWallet: {Data: []string{base64.StdEncoding.EncodeToString([]byte{1}), "base64"}, Executable: true},
	}}
	history, err := newTestReader(t, rpc).GetAccountHistory(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, history.IsContract)
	assert.Nil(t, history.FirstSeen)
	assert.Equal(t, 0, history.TransactionCount)

	rpc.err = models.NewAppError(models.ErrRPCUnavailable, "getAccountInfo failed")
	history, err = newTestReader(t, rpc).GetAccountHistory(context.Background(), testWallet)
	require.NoError(t, err)
	assert.False(t, history.Exists)
	assert.NotEmpty(t, history.Error)
	assert.Empty(t, history.RecentTransactions)

	_, err = newTestReader(t, rpc).GetAccountHistory(context.Background(), "0OIl")
	assert.True(t, models.HasCode(err, models.ErrInvalidAddress))
}
