package profiles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"golang.org/x/crypto/bcrypt"
)

// Profile maps a hashed login key to the account it opens.
type Profile struct {
	AccountID      string    `gorm:"column:account_id;primaryKey;size:190;not null"`
	CredentialHash string    `gorm:"column:credential_hash;size:100;not null"`
	DisplayName    string    `gorm:"column:display_name;size:320;not null"`
	OpeningBalance int64     `gorm:"column:opening_balance;not null"`
	LastSeenAt     time.Time `gorm:"column:last_seen_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing login profiles.
func (Profile) TableName() string {
	return "profiles"
}

// NewProfile hashes key and returns a profile ready to be stored.
func NewProfile(key, accountID, displayName string, openingBalance int64) (Profile, error) {
	key = normalize(key)
	accountID = normalize(accountID)
	if key == "" || accountID == "" {
		return Profile{}, ErrInvalidCredential
	}
	if openingBalance < 0 {
		return Profile{}, fmt.Errorf("%w: negative opening balance", ledger.ErrInvalidAmount)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		AccountID:      accountID,
		CredentialHash: string(hash),
		DisplayName:    normalize(displayName),
		OpeningBalance: openingBalance,
	}, nil
}

// Matches reports whether key is this profile's login key.
func (p Profile) Matches(key string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(p.CredentialHash), []byte(normalize(key)))
	return err == nil
}

// Account returns the opening account for a session on deviceID.
func (p Profile) Account(deviceID device.ID) ledger.Account {
	return ledger.Account{
		ID:          p.AccountID,
		DisplayName: p.DisplayName,
		Balance:     p.OpeningBalance,
		BoundDevice: deviceID,
	}
}

// ErrInvalidCredential indicates an empty or malformed login key.
var ErrInvalidCredential = errors.New("profiles: invalid credential")

// ErrUnknownCredential indicates no profile accepts the login key.
var ErrUnknownCredential = errors.New("profiles: unknown credential")

func normalize(value string) string {
	return strings.TrimSpace(value)
}
