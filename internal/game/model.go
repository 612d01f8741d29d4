package game

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"nations/internal/ledger"
)

const (
	DefaultStartingWallet  = int64(1000)
	DefaultStartingIncome  = int64(100)
	DefaultLeaderboardSize = 10

	maxCountryNameLen = 64
)

var (
	ErrNotFound          = ledger.ErrNotFound
	ErrAlreadyExists     = ledger.ErrAlreadyExists
	ErrStorage           = ledger.ErrStorage
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Kind names the error category of err for gateways that render results.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrStorage):
		return "StorageFailure"
	default:
		return "Internal"
	}
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

type Field string

const (
	FieldWallet Field = "wallet"
	FieldIncome Field = "income"
)

func ParseField(raw string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "wallet", "balance":
		return FieldWallet, nil
	case "income", "income_rate":
		return FieldIncome, nil
	default:
		return "", fmt.Errorf("%w: field must be wallet or income", ErrInvalidArgument)
	}
}

type Sign int

const (
	Add Sign = iota + 1
	Remove
)

func validateCountryName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: country name is required", ErrInvalidArgument)
	}
	if len(name) > maxCountryNameLen {
		return fmt.Errorf("%w: country name too long (max %d chars)", ErrInvalidArgument, maxCountryNameLen)
	}
	return nil
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	return nil
}

func checkedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: amount overflows", ErrInvalidArgument)
	}
	return a + b, nil
}

// saturatingAdd is used by the payout sweep, which cannot reject a single account.
func saturatingAdd(a, b int64) int64 {
	v, err := checkedAdd(a, b)
	if err == nil {
		return v
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}
