package licensing

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

// ConsentNotice is what the caller must show before a binding purchase commits.
type ConsentNotice struct {
	DocumentID string
	Title      string
	Price      int64
	Device     device.ID
}

// Message renders the notice for display.
func (n ConsentNotice) Message() string {
	return fmt.Sprintf("Buying %q for %d credits permanently locks it to device %s. It cannot be opened on any other device.",
		n.Title, n.Price, n.Device)
}

// Consent obtains the user's answer to a ConsentNotice. Confirm may block until the
// user answers or ctx ends.
type Consent interface {
	Confirm(ctx context.Context, notice ConsentNotice) (bool, error)
}

// ConsentFunc adapts a function to Consent.
type ConsentFunc func(ctx context.Context, notice ConsentNotice) (bool, error)

func (f ConsentFunc) Confirm(ctx context.Context, notice ConsentNotice) (bool, error) {
	return f(ctx, notice)
}

// Consented returns a Consent that answers with a decision the caller already collected.
func Consented(accepted bool) Consent {
	return ConsentFunc(func(context.Context, ConsentNotice) (bool, error) {
		return accepted, nil
	})
}
