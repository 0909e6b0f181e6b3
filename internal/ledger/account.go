package ledger

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

var (
	// ErrInsufficientBalance indicates that a debit exceeds the account balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInvalidAmount indicates a negative debit amount.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)

// Account is an immutable snapshot of one session's ledger.
type Account struct {
	ID          string
	DisplayName string
	Balance     int64
	Library     []string
	BoundDevice device.ID
}

// Owns reports whether documentID is in the account's library.
func (a Account) Owns(documentID string) bool {
	return slices.Contains(a.Library, documentID)
}

// Clone returns a copy that shares no memory with a.
func (a Account) Clone() Account {
	cloned := a
	cloned.Library = slices.Clone(a.Library)
	return cloned
}

// Debit returns the account with amount removed from its balance.
func Debit(account Account, amount int64) (Account, error) {
	if amount < 0 {
		return account, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if amount > account.Balance {
		return account, fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, amount, account.Balance)
	}
	updated := account.Clone()
	updated.Balance -= amount
	return updated, nil
}

// Grant returns the account with documentID appended to its library.
func Grant(account Account, documentID string) Account {
	updated := account.Clone()
	if updated.Owns(documentID) {
		return updated
	}
	updated.Library = append(updated.Library, documentID)
	return updated
}
