package models

import "time"

// Tier is a capability unlocked by holding or staking tokens.
type Tier string

const (
	TierAlpha      Tier = "alpha_access"
	TierRawData    Tier = "raw_data_access"
	TierAPI        Tier = "api_access"
	TierGovernance Tier = "governance_access"
)

// AllTiers lists tiers in ascending order of requirement.
var AllTiers = []Tier{TierAlpha, TierRawData, TierAPI, TierGovernance}

// WalletAccessInfo is the access decision for a wallet.
// AccessLevels is always derived from TotalTokens and StakedAmount.
type WalletAccessInfo struct {
	WalletAddress string        `json:"wallet_address"`
	TotalTokens   uint64        `json:"total_tokens"`
	StakedAmount  uint64        `json:"staked_amount"`
	AccessLevels  map[Tier]bool `json:"access_levels"`
	Error         string        `json:"error,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// Has reports whether the tier is unlocked.
func (w *WalletAccessInfo) Has(tier Tier) bool {
	if w == nil {
		return false
	}
	return w.AccessLevels[tier]
}

// Degraded reports whether the decision was made without on-chain data.
func (w *WalletAccessInfo) Degraded() bool {
	return w != nil && w.Error != ""
}
