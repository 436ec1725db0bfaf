package services

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
	"cynix/utils"
)

const (
	stakingSeed       = "staking"
	stakingDataLength = 24

	// getTransaction is called for at most this many of the newest signatures.
	recentTransactionLimit = 10
)

// AccountReader turns raw ledger RPC responses into typed account state.
type AccountReader struct {
	rpc            SolanaRPC
	mint           utils.PublicKey
	stakingProgram utils.PublicKey
	historyLimit   int
	logger         *zap.Logger
}

func NewAccountReader(rpc SolanaRPC, cfg *config.Config, logger *zap.Logger) (*AccountReader, error) {
	mint, err := utils.ParsePublicKey(cfg.Solana.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}
	program, err := utils.ParsePublicKey(cfg.Solana.StakingProgram)
	if err != nil {
		return nil, fmt.Errorf("invalid staking program: %w", err)
	}

	limit := cfg.Solana.HistoryLimit
	if limit <= 0 {
		limit = 1000
	}

	return &AccountReader{
		rpc:            rpc,
		mint:           mint,
		stakingProgram: program,
		historyLimit:   limit,
		logger:         logger,
	}, nil
}

func invalidAddress(address string, cause error) error {
	return models.NewAppErrorWithCause(models.ErrInvalidAddress, fmt.Sprintf("invalid address %q", address), cause)
}

// GetAccountHistory never fails on RPC errors; it reports them in the result
// with Exists=false. Only a malformed address is returned as an error.
func (r *AccountReader) GetAccountHistory(ctx context.Context, address string) (*models.AccountHistory, error) {
	if _, err := utils.ParsePublicKey(address); err != nil {
		return nil, invalidAddress(address, err)
	}

	history := &models.AccountHistory{
		Address:            address,
		RecentTransactions: []models.Transaction{},
	}

	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return degradedHistory(history, err), nil
	}

	sigs, err := r.rpc.GetSignaturesForAddress(ctx, address, r.historyLimit)
	if err != nil {
		return degradedHistory(history, err), nil
	}

	if info != nil {
		history.Exists = true
		history.Lamports = info.Lamports
		history.Owner = info.Owner
		data, err := decodeAccountData(info)
		if err != nil {
			return degradedHistory(history, err), nil
		}
		history.IsContract = len(data) > 0
	}

	history.TransactionCount = len(sigs)
	if len(sigs) > 0 {
		history.FirstSeen = sigs[len(sigs)-1].BlockTime
	}

	for i, sig := range sigs {
		if i >= recentTransactionLimit {
			break
		}
		tx, err := r.rpc.GetTransaction(ctx, sig.Signature)
		if err != nil {
			r.logger.Warn("Skipping transaction",
				zap.String("signature", sig.Signature),
				zap.Error(err))
			continue
		}
		if tx == nil {
			continue
		}
		history.RecentTransactions = append(history.RecentTransactions, parseTransaction(sig.Signature, tx))
	}

	return history, nil
}

func degradedHistory(h *models.AccountHistory, err error) *models.AccountHistory {
	return &models.AccountHistory{
		Address:            h.Address,
		Exists:             false,
		TransactionCount:   0,
		RecentTransactions: []models.Transaction{},
		Error:              err.Error(),
	}
}

func parseTransaction(signature string, tx *models.TransactionResult) models.Transaction {
	parsed := models.Transaction{
		Signature:    signature,
		Instructions: []models.Instruction{},
	}
	if len(tx.Transaction.Signatures) > 0 {
		parsed.Signature = tx.Transaction.Signatures[0]
	}
	if tx.BlockTime != nil {
		parsed.BlockTime = time.Unix(*tx.BlockTime, 0).UTC().Format(time.RFC3339)
	}
	if tx.Meta != nil {
		parsed.Success = tx.Meta.Err == nil
		parsed.Fee = tx.Meta.Fee
	}

	keys := tx.Transaction.Message.AccountKeys
	keyAt := func(i int) string {
		if i >= 0 && i < len(keys) {
			return keys[i]
		}
		return ""
	}

	for _, ix := range tx.Transaction.Message.Instructions {
		accounts := make([]string, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			accounts = append(accounts, keyAt(idx))
		}
		parsed.Instructions = append(parsed.Instructions, models.Instruction{
			ProgramID: keyAt(ix.ProgramIDIndex),
			Data:      ix.Data,
			Accounts:  accounts,
		})
	}
	return parsed
}

func decodeAccountData(info *models.AccountInfoValue) ([]byte, error) {
	if len(info.Data) == 0 || info.Data[0] == "" {
		return nil, nil
	}
	if len(info.Data) > 1 && info.Data[1] != "base64" {
		return nil, models.NewAppError(models.ErrMalformedAccountData, "unexpected account data encoding "+info.Data[1])
	}
	data, err := base64.StdEncoding.DecodeString(info.Data[0])
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrMalformedAccountData, "account data is not base64", err)
	}
	return data, nil
}

// StakingAddress derives the wallet's staking account from (mint, wallet, "staking").
func (r *AccountReader) StakingAddress(wallet utils.PublicKey) (utils.PublicKey, error) {
	seeds := [][]byte{r.mint.Bytes(), wallet.Bytes(), []byte(stakingSeed)}
	addr, _, err := utils.FindProgramAddress(seeds, r.stakingProgram)
	return addr, err
}

// GetStakingInfo returns nil, nil when the wallet has no staking account.
func (r *AccountReader) GetStakingInfo(ctx context.Context, wallet string) (*models.StakingInfo, error) {
	pk, err := utils.ParsePublicKey(wallet)
	if err != nil {
		return nil, invalidAddress(wallet, err)
	}

	addr, err := r.StakingAddress(pk)
	if err != nil {
		return nil, fmt.Errorf("derive staking address: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	data, err := decodeAccountData(info)
	if err != nil {
		return nil, err
	}

	staking, err := DecodeStakingData(data)
	if err != nil {
		return nil, err
	}
	staking.Address = addr.String()
	return staking, nil
}

// DecodeStakingData reads amount, start_time and last_claim as little-endian u64s.
func DecodeStakingData(data []byte) (*models.StakingInfo, error) {
	if len(data) < stakingDataLength {
		return nil, models.NewAppError(models.ErrMalformedAccountData,
			fmt.Sprintf("staking account data too short: %d bytes", len(data)))
	}
	return &models.StakingInfo{
		Amount:    binary.LittleEndian.Uint64(data[0:8]),
		StartTime: binary.LittleEndian.Uint64(data[8:16]),
		LastClaim: binary.LittleEndian.Uint64(data[16:24]),
	}, nil
}

// GetTokenBalance sums the raw token amounts of every account the wallet holds for the mint.
func (r *AccountReader) GetTokenBalance(ctx context.Context, wallet string) (uint64, error) {
	if _, err := utils.ParsePublicKey(wallet); err != nil {
		return 0, invalidAddress(wallet, err)
	}

	accounts, err := r.rpc.GetTokenAccountsByOwner(ctx, wallet, r.mint.String())
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, acc := range accounts.Value {
		amount := acc.Account.Data.Parsed.Info.TokenAmount.Amount
		n, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return 0, models.NewAppErrorWithCause(models.ErrMalformedAccountData,
				"token amount for "+acc.Pubkey+" is not an integer", err)
		}
		total = utils.SaturatingAdd(total, n)
	}
	return total, nil
}
