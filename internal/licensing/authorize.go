package licensing

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

// ErrDeviceMismatch indicates access from a device other than the one a document is bound to.
var ErrDeviceMismatch = errors.New("licensing: device mismatch")

// DenialReason names why access was refused.
type DenialReason string

// ReasonDeviceMismatch is the only denial reason the binding rule produces.
const ReasonDeviceMismatch DenialReason = "device_mismatch"

// Denial describes a refused access request.
type Denial struct {
	Reason     DenialReason
	DocumentID string
	Bound      device.ID
	Requester  device.ID
}

// Err converts the denial into an error matching ErrDeviceMismatch.
func (d Denial) Err() error {
	return &MismatchError{DocumentID: d.DocumentID, Bound: d.Bound, Requester: d.Requester}
}

// MismatchError names both devices of a denied request.
type MismatchError struct {
	DocumentID string
	Bound      device.ID
	Requester  device.ID
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: document is registered to %s, current device is %s", ErrDeviceMismatch, e.Bound, e.Requester)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrDeviceMismatch
}

// Decision is either Allow or Deny(Denial).
type Decision struct {
	denial *Denial
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{}
}

// Deny returns a refusing decision.
func Deny(denial Denial) Decision {
	return Decision{denial: &denial}
}

// Allowed reports whether access is permitted.
func (d Decision) Allowed() bool {
	return d.denial == nil
}

// Denial returns the refusal details when access is not permitted.
func (d Decision) Denial() (Denial, bool) {
	if d.denial == nil {
		return Denial{}, false
	}
	return *d.denial, true
}

// Authorize allows access to an unbound document or one bound to requester.
// Reading and exporting both go through this predicate.
func Authorize(document catalog.Document, requester device.ID) Decision {
	bound, ok := document.Binding.Device()
	if !ok || bound == requester {
		return Allow()
	}
	return Deny(Denial{
		Reason:     ReasonDeviceMismatch,
		DocumentID: document.ID,
		Bound:      bound,
		Requester:  requester,
	})
}
