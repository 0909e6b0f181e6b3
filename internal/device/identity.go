package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const idPrefix = "DEV-"

var (
	// ErrInvalidID indicates that a device identifier does not match the DEV-<HEX> format.
	ErrInvalidID = errors.New("device: invalid device id")
	// ErrStorageUnavailable indicates that the installation's persistent storage could not be used.
	ErrStorageUnavailable = errors.New("device: storage unavailable")
)

// ID identifies one installation. The zero value means "no device".
type ID string

// NewID validates raw input and returns an ID.
func NewID(rawInput string) (ID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if !strings.HasPrefix(trimmed, idPrefix) {
		return "", fmt.Errorf("%w: missing %s prefix", ErrInvalidID, idPrefix)
	}
	digits := strings.TrimPrefix(trimmed, idPrefix)
	if digits == "" {
		return "", fmt.Errorf("%w: empty hash", ErrInvalidID)
	}
	for _, r := range digits {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'F') {
			return "", fmt.Errorf("%w: %q is not uppercase hex", ErrInvalidID, digits)
		}
	}
	return ID(trimmed), nil
}

// String returns the underlying identifier.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// Hash runs the 31x rolling hash over the UTF-16 code units of raw, wrapping at 32 bits.
func Hash(raw string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(raw)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	return hash
}

// Format renders a hash as DEV-<uppercase hex of |hash|>.
func Format(hash int32) ID {
	magnitude := int64(hash)
	if magnitude < 0 {
		magnitude = -magnitude
	}
	return ID(idPrefix + strings.ToUpper(strconv.FormatInt(magnitude, 16)))
}

// Environment carries the installation signals folded into a fingerprint.
type Environment struct {
	Agent   string
	Display string
}

// Fingerprint composes the raw fingerprint string for the environment and seed.
func Fingerprint(env Environment, seed string) string {
	return env.Agent + "-" + env.Display + "-" + seed
}

// Derive computes a device identifier from environment signals and a random seed.
func Derive(env Environment, seed string) ID {
	return Format(Hash(Fingerprint(env, seed)))
}
