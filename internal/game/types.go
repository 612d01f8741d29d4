package game

import (
	"nations/internal/catalog"
	"nations/internal/ledger"
)

// Caller is the identity and capability set supplied by the gateway's identity provider.
type Caller struct {
	OwnerID   string
	IsAdmin   bool
	CanCreate bool
}

type Settings struct {
	StartingWallet int64
	StartingIncome int64
}

func DefaultSettings() Settings {
	return Settings{StartingWallet: DefaultStartingWallet, StartingIncome: DefaultStartingIncome}
}

type Purchase struct {
	Item    catalog.Item   `json:"item"`
	Country ledger.Country `json:"country"`
}

type TransferResult struct {
	Amount   int64          `json:"amount"`
	Sender   ledger.Country `json:"sender"`
	Receiver ledger.Country `json:"receiver"`
}

type LeaderboardRow struct {
	Rank    int64  `json:"rank"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Wallet  int64  `json:"wallet"`
	Income  int64  `json:"income"`
}
