// Package access turns licensing decisions into short-lived grants for reading and exporting.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"go.uber.org/zap"
)

// Action is a gated use of a document.
type Action string

const (
	ActionOpen   Action = "open"
	ActionExport Action = "export"
)

var (
	// ErrNotInLibrary indicates an attempt to open or export a document the account does not own.
	ErrNotInLibrary = errors.New("access: document not in library")
	// ErrGrantMismatch indicates a valid grant presented for another document or device.
	ErrGrantMismatch = errors.New("access: grant does not match request")

	errMissingCatalog = errors.New("catalog store is required")
	errMissingIssuer  = errors.New("capability issuer is required")
)

const (
	opGateNew = "access.gate.new"
	opOpen    = "access.open"
	opExport  = "access.export"
	opVerify  = "access.verify"
	opRedeem  = "access.redeem"
)

// GateError wraps an infrastructure failure with an operation.reason code.
type GateError struct {
	code string
	err  error
}

func (e *GateError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *GateError) Unwrap() error {
	return e.err
}

func (e *GateError) Code() string {
	return e.code
}

func newGateError(operation, reason string, cause error) error {
	return &GateError{code: operation + "." + reason, err: cause}
}

// DeniedError reports a refused action. It matches licensing.ErrDeviceMismatch.
type DeniedError struct {
	Action     Action
	DocumentID string
	Bound      device.ID
	Requester  device.ID
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: document is registered to %s, current device is %s", e.Bound, e.Requester)
}

func (e *DeniedError) Is(target error) bool {
	return target == licensing.ErrDeviceMismatch
}

// Grant permits one action on one document until ExpiresAt.
type Grant struct {
	DocumentID string
	Action     Action
	Token      string
	ExpiresAt  time.Time
}

// GateConfig describes the dependencies of a Gate.
type GateConfig struct {
	Catalog catalog.Store
	Issuer  *auth.CapabilityIssuer
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Gate checks every open and export against the document's current binding.
type Gate struct {
	catalog catalog.Store
	issuer  *auth.CapabilityIssuer
	now     func() time.Time
	logger  *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Catalog == nil {
		return nil, newGateError(opGateNew, "missing_catalog", errMissingCatalog)
	}
	if cfg.Issuer == nil {
		return nil, newGateError(opGateNew, "missing_issuer", errMissingIssuer)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{catalog: cfg.Catalog, issuer: cfg.Issuer, now: clock, logger: logger}, nil
}

// Open authorizes reading a document from the account's library.
func (g *Gate) Open(ctx context.Context, account ledger.Account, documentID string) (Grant, error) {
	return g.authorize(ctx, opOpen, ActionOpen, account, documentID)
}

// Export authorizes downloading a copy. It runs exactly the checks Open runs.
func (g *Gate) Export(ctx context.Context, account ledger.Account, documentID string) (Grant, error) {
	return g.authorize(ctx, opExport, ActionExport, account, documentID)
}

// Verify checks a grant token for action and returns the capability it carries.
func (g *Gate) Verify(token string, action Action) (auth.Capability, error) {
	capability, err := g.issuer.Verify(token, string(action))
	if err != nil {
		g.logger.Info("grant rejected",
			zap.String("operation", opVerify),
			zap.String("action", string(action)),
			zap.Error(err))
		return auth.Capability{}, err
	}
	return capability, nil
}

// Redeem checks an export grant against the caller and the document's current binding,
// then renders the device-stamped copy.
func (g *Gate) Redeem(ctx context.Context, account ledger.Account, documentID, token string) (ExportCopy, error) {
	capability, err := g.Verify(token, ActionExport)
	if err != nil {
		return ExportCopy{}, err
	}
	if capability.DocumentID != documentID || capability.DeviceID != account.BoundDevice.String() {
		g.logger.Warn("access denied",
			zap.String("operation", opRedeem),
			zap.String("reason", "grant_mismatch"),
			zap.String("account_id", account.ID),
			zap.String("document_id", documentID))
		return ExportCopy{}, fmt.Errorf("%w: grant for %s on %s", ErrGrantMismatch, capability.DocumentID, capability.DeviceID)
	}
	document, err := g.check(ctx, opRedeem, ActionExport, account, documentID)
	if err != nil {
		return ExportCopy{}, err
	}
	return stampCopy(document, account, g.now()), nil
}

func (g *Gate) authorize(ctx context.Context, operation string, action Action, account ledger.Account, documentID string) (Grant, error) {
	if _, err := g.check(ctx, operation, action, account, documentID); err != nil {
		return Grant{}, err
	}

	token, expiresAt, err := g.issuer.Issue(auth.Capability{
		DocumentID: documentID,
		DeviceID:   account.BoundDevice.String(),
		Action:     string(action),
	})
	if err != nil {
		g.logError(operation, "issue_failed", err, zap.String("document_id", documentID))
		return Grant{}, newGateError(operation, "issue_failed", err)
	}

	g.logger.Info("access granted",
		zap.String("operation", operation),
		zap.String("account_id", account.ID),
		zap.String("document_id", documentID))
	return Grant{DocumentID: documentID, Action: action, Token: token, ExpiresAt: expiresAt}, nil
}

// check is the single predicate behind every action: the document must exist, its
// binding must admit the caller's device, and it must be in the caller's library.
func (g *Gate) check(ctx context.Context, operation string, action Action, account ledger.Account, documentID string) (catalog.Document, error) {
	document, err := g.catalog.Get(ctx, documentID)
	if err != nil {
		return catalog.Document{}, err
	}

	decision := licensing.Authorize(document, account.BoundDevice)
	if denial, denied := decision.Denial(); denied {
		g.logger.Warn("access denied",
			zap.String("operation", operation),
			zap.String("reason", string(denial.Reason)),
			zap.String("account_id", account.ID),
			zap.String("document_id", documentID),
			zap.String("bound_device", denial.Bound.String()),
			zap.String("requester_device", denial.Requester.String()))
		return catalog.Document{}, &DeniedError{
			Action:     action,
			DocumentID: documentID,
			Bound:      denial.Bound,
			Requester:  denial.Requester,
		}
	}

	if !account.Owns(documentID) {
		g.logger.Warn("access denied",
			zap.String("operation", operation),
			zap.String("reason", "not_in_library"),
			zap.String("account_id", account.ID),
			zap.String("document_id", documentID))
		return catalog.Document{}, fmt.Errorf("%w: %s", ErrNotInLibrary, documentID)
	}
	return document, nil
}

func (g *Gate) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	g.logger.Error("access gate error", attrs...)
}
