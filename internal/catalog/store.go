package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

var (
	// ErrNotFound indicates that no document exists for the requested id.
	ErrNotFound = errors.New("catalog: document not found")
	// ErrAlreadyBound indicates an attempt to bind a document to a second device.
	ErrAlreadyBound = errors.New("catalog: document already bound to another device")
	// ErrDuplicateID indicates an insert collided with an existing document id.
	ErrDuplicateID = errors.New("catalog: duplicate document id")
	// ErrInvalidDocument indicates a document that cannot be stored.
	ErrInvalidDocument = errors.New("catalog: invalid document")
)

// AlreadyBoundError carries both devices of a rejected bind. It is an integrity
// violation and is never retried.
type AlreadyBoundError struct {
	DocumentID string
	Bound      device.ID
	Requested  device.ID
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("%v: document %s is bound to %s, refused %s", ErrAlreadyBound, e.DocumentID, e.Bound, e.Requested)
}

func (e *AlreadyBoundError) Is(target error) bool {
	return target == ErrAlreadyBound
}

// Store holds the catalog.
type Store interface {
	Get(ctx context.Context, documentID string) (Document, error)
	Bind(ctx context.Context, documentID string, id device.ID) (Document, error)
	Insert(ctx context.Context, document Document) error
	// List yields matching documents, newest first. Each call re-reads the store.
	List(ctx context.Context, filter Filter) iter.Seq2[Document, error]
}

// StoreError wraps a backend failure with an operation.reason code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable failure code.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opGet    = "catalog.get"
	opBind   = "catalog.bind"
	opInsert = "catalog.insert"
	opList   = "catalog.list"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: operation + "." + reason, err: cause}
}

// Collect drains a List sequence into a slice.
func Collect(sequence iter.Seq2[Document, error]) ([]Document, error) {
	documents := make([]Document, 0)
	for document, err := range sequence {
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, nil
}
