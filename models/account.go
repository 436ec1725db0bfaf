package models

// AccountHistory summarizes an on-chain account and its recent activity.
// A failed lookup is reported through Error with Exists=false.
type AccountHistory struct {
	Address            string        `json:"address"`
	Exists             bool          `json:"exists"`
	IsContract         bool          `json:"is_contract"`
	Lamports           uint64        `json:"lamports"`
	Owner              string        `json:"owner,omitempty"`
	TransactionCount   int           `json:"transaction_count"`
	FirstSeen          *int64        `json:"first_seen"`
	RecentTransactions []Transaction `json:"recent_transactions"`
	Error              string        `json:"error,omitempty"`
}

type Transaction struct {
	Signature    string        `json:"signature"`
	BlockTime    string        `json:"block_time,omitempty"`
	Success      bool          `json:"success"`
	Fee          uint64        `json:"fee"`
	Instructions []Instruction `json:"instructions"`
}

type Instruction struct {
	ProgramID string   `json:"program_id"`
	Data      string   `json:"data"`
	Accounts  []string `json:"accounts"`
}

// StakingInfo is the decoded state of a wallet's staking account.
type StakingInfo struct {
	Address   string `json:"address"`
	Amount    uint64 `json:"amount"`
	StartTime uint64 `json:"start_time"`
	LastClaim uint64 `json:"last_claim"`
}
