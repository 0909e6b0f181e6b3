package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyOwned indicates the document is already in the account's library.
	ErrAlreadyOwned = errors.New("licensing: document already owned")
	// ErrMissingDevice indicates an account without a bound device tried to buy or publish.
	ErrMissingDevice = errors.New("licensing: account has no device")
	// ErrInvalidDraft indicates a publish draft failed validation.
	ErrInvalidDraft = errors.New("licensing: invalid draft")

	errMissingCatalog    = errors.New("catalog store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

const (
	opEngineNew = "licensing.engine.new"
	opPurchase  = "licensing.purchase"
	opQuote     = "licensing.quote"
	opPublish   = "licensing.publish"
)

// ServiceError wraps an infrastructure failure with an operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// Outcome distinguishes a committed purchase from a declined one.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDeclined  Outcome = "declined"
)

// PurchaseResult carries the account and document after a purchase attempt. Unless
// the outcome is OutcomeCompleted they are the values observed before the attempt.
type PurchaseResult struct {
	Outcome  Outcome
	Account  ledger.Account
	Document catalog.Document
}

// PublishResult carries the creator's account and the new listing.
type PublishResult struct {
	Account  ledger.Account
	Document catalog.Document
}

// Draft holds the fields of a listing before it is published.
type Draft struct {
	Title        string          `validate:"required,max=320"`
	Description  string          `validate:"max=4000"`
	Price        int64           `validate:"gte=0"`
	DocType      catalog.DocType `validate:"required,oneof=NOTES EXAM BOOK SLIDE"`
	Tags         []string        `validate:"max=10,dive,required,max=64"`
	AISummary    string          `validate:"max=2000"`
	ThumbnailURL string          `validate:"omitempty,url,max=512"`
}

// EngineConfig describes the dependencies of an Engine.
type EngineConfig struct {
	Catalog    catalog.Store
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Engine enforces purchase eligibility and the device-binding rules.
type Engine struct {
	catalog    catalog.Store
	idProvider IDProvider
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, newServiceError(opEngineNew, "missing_catalog", errMissingCatalog)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opEngineNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:    cfg.Catalog,
		idProvider: cfg.IDProvider,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}, nil
}

// Quote runs the purchase guards and returns the notice the buyer must accept.
func (e *Engine) Quote(ctx context.Context, account ledger.Account, documentID string) (ConsentNotice, error) {
	document, err := e.catalog.Get(ctx, documentID)
	if err != nil {
		return ConsentNotice{}, err
	}
	return e.eligibility(opQuote, account, document)
}

// Purchase charges the account, grants the document and binds it to the account's
// device, or changes nothing. The bind is the only write; the ledger snapshot is
// computed before it and returned only when it succeeds.
func (e *Engine) Purchase(ctx context.Context, account ledger.Account, documentID string, consent Consent) (PurchaseResult, error) {
	document, err := e.catalog.Get(ctx, documentID)
	if err != nil {
		return PurchaseResult{Account: account}, err
	}
	unchanged := PurchaseResult{Account: account, Document: document}

	notice, err := e.eligibility(opPurchase, account, document)
	if err != nil {
		return unchanged, err
	}

	accepted := false
	if consent != nil {
		accepted, err = consent.Confirm(ctx, notice)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return unchanged, err
		}
		if err != nil || ctx.Err() != nil {
			accepted = false
		}
	}
	if !accepted {
		e.logger.Info("purchase declined",
			zap.String("operation", opPurchase),
			zap.String("account_id", account.ID),
			zap.String("document_id", document.ID))
		declined := unchanged
		declined.Outcome = OutcomeDeclined
		return declined, nil
	}

	debited, err := ledger.Debit(account, document.Price)
	if err != nil {
		return unchanged, err
	}
	granted := ledger.Grant(debited, document.ID)

	bound, err := e.catalog.Bind(ctx, document.ID, account.BoundDevice)
	if err != nil {
		e.logError(opPurchase, "bind_failed", err,
			zap.String("account_id", account.ID),
			zap.String("document_id", document.ID),
			zap.String("device_id", account.BoundDevice.String()))
		return unchanged, err
	}

	e.logger.Info("purchase completed",
		zap.String("operation", opPurchase),
		zap.String("account_id", account.ID),
		zap.String("document_id", document.ID),
		zap.String("device_id", account.BoundDevice.String()),
		zap.Int64("price", document.Price))
	return PurchaseResult{Outcome: OutcomeCompleted, Account: granted, Document: bound}, nil
}

// Publish lists a new document owned by the creator's device from the start.
func (e *Engine) Publish(ctx context.Context, account ledger.Account, draft Draft) (PublishResult, error) {
	unchanged := PublishResult{Account: account}
	if account.BoundDevice.IsZero() {
		return unchanged, ErrMissingDevice
	}
	draft.Title = strings.TrimSpace(draft.Title)
	if err := e.validate.Struct(draft); err != nil {
		return unchanged, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	documentID, err := e.idProvider.NewID()
	if err != nil {
		e.logError(opPublish, "id_generation_failed", err, zap.String("account_id", account.ID))
		return unchanged, newServiceError(opPublish, "id_generation_failed", err)
	}

	document := catalog.Document{
		ID:           documentID,
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
		AuthorName:   account.DisplayName,
		DocType:      draft.DocType,
		Tags:         append([]string(nil), draft.Tags...),
		AISummary:    draft.AISummary,
		ThumbnailURL: draft.ThumbnailURL,
		Binding:      catalog.BoundTo(account.BoundDevice),
	}
	if err := e.catalog.Insert(ctx, document); err != nil {
		e.logError(opPublish, "insert_failed", err,
			zap.String("account_id", account.ID),
			zap.String("document_id", documentID))
		return unchanged, err
	}

	e.logger.Info("document published",
		zap.String("operation", opPublish),
		zap.String("account_id", account.ID),
		zap.String("document_id", documentID),
		zap.String("device_id", account.BoundDevice.String()))
	return PublishResult{Account: ledger.Grant(account, documentID), Document: document}, nil
}

// eligibility checks, in order: ownership, device, balance and existing binding.
func (e *Engine) eligibility(operation string, account ledger.Account, document catalog.Document) (ConsentNotice, error) {
	if account.Owns(document.ID) {
		return ConsentNotice{}, fmt.Errorf("%w: %s", ErrAlreadyOwned, document.ID)
	}
	if account.BoundDevice.IsZero() {
		return ConsentNotice{}, ErrMissingDevice
	}
	if document.Price > account.Balance {
		e.logger.Info("purchase rejected",
			zap.String("operation", operation),
			zap.String("reason", "insufficient_balance"),
			zap.String("account_id", account.ID),
			zap.String("document_id", document.ID))
		return ConsentNotice{}, fmt.Errorf("%w: need %d, have %d", ledger.ErrInsufficientBalance, document.Price, account.Balance)
	}
	if bound, ok := document.Binding.Device(); ok && bound != account.BoundDevice {
		e.logger.Warn("purchase rejected",
			zap.String("operation", operation),
			zap.String("reason", "already_bound"),
			zap.String("account_id", account.ID),
			zap.String("document_id", document.ID))
		return ConsentNotice{}, &catalog.AlreadyBoundError{DocumentID: document.ID, Bound: bound, Requested: account.BoundDevice}
	}
	return ConsentNotice{
		DocumentID: document.ID,
		Title:      document.Title,
		Price:      document.Price,
		Device:     account.BoundDevice,
	}, nil
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("licensing engine error", attrs...)
}
