package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

// DocType enumerates listing kinds.
type DocType string

const (
	DocTypeNotes DocType = "NOTES"
	DocTypeExam  DocType = "EXAM"
	DocTypeBook  DocType = "BOOK"
	DocTypeSlide DocType = "SLIDE"
)

// ErrInvalidDocType indicates an unknown document type.
var ErrInvalidDocType = errors.New("catalog: invalid doc type")

// ParseDocType normalizes raw input into a DocType.
func ParseDocType(rawInput string) (DocType, error) {
	candidate := DocType(strings.ToUpper(strings.TrimSpace(rawInput)))
	switch candidate {
	case DocTypeNotes, DocTypeExam, DocTypeBook, DocTypeSlide:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDocType, rawInput)
	}
}

// Binding records which device, if any, a document is locked to.
// Once bound, a Binding has no transition back to unbound or to another device.
type Binding struct {
	device device.ID
}

// Unbound returns the initial binding state.
func Unbound() Binding {
	return Binding{}
}

// BoundTo returns a binding locked to id.
func BoundTo(id device.ID) Binding {
	return Binding{device: id}
}

// IsBound reports whether the binding holds a device.
func (b Binding) IsBound() bool {
	return !b.device.IsZero()
}

// Device returns the bound device.
func (b Binding) Device() (device.ID, bool) {
	return b.device, b.IsBound()
}

func (b Binding) String() string {
	if !b.IsBound() {
		return "UNBOUND"
	}
	return "BOUND(" + b.device.String() + ")"
}

// Document is one catalog listing.
type Document struct {
	ID           string
	Title        string
	Description  string
	Price        int64
	AuthorName   string
	DocType      DocType
	Tags         []string
	AISummary    string
	ThumbnailURL string
	Rating       float64
	Binding      Binding
}

// Clone returns a copy that shares no memory with d.
func (d Document) Clone() Document {
	cloned := d
	cloned.Tags = slices.Clone(d.Tags)
	return cloned
}

// Bind moves an unbound document to BOUND(id). Binding again to the same device is a no-op.
func Bind(document Document, id device.ID) (Document, error) {
	if id.IsZero() {
		return document, fmt.Errorf("%w: empty device", device.ErrInvalidID)
	}
	if bound, ok := document.Binding.Device(); ok {
		if bound == id {
			return document, nil
		}
		return document, &AlreadyBoundError{DocumentID: document.ID, Bound: bound, Requested: id}
	}
	updated := document.Clone()
	updated.Binding = BoundTo(id)
	return updated, nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	DocType DocType
	Query   string
	IDs     []string
}

// Matches reports whether document satisfies the filter.
func (f Filter) Matches(document Document) bool {
	if f.DocType != "" && document.DocType != f.DocType {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, document.ID) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(document.Title), query) ||
		strings.Contains(strings.ToLower(document.Description), query) {
		return true
	}
	for _, tag := range document.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
