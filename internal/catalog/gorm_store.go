package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	listBatchSize      = 64
	queryDocumentID    = "id = ?"
	queryUnboundByID   = "id = ? AND bound_device = ''"
	queryAfterCursor   = "listed_at_ns < ? OR (listed_at_ns = ? AND id > ?)"
	orderListedAtDesc  = "listed_at_ns DESC"
	orderDocumentIDAsc = "id ASC"
)

var errMissingDatabase = errors.New("database handle is required")

// DocumentRecord is the persisted form of a Document.
type DocumentRecord struct {
	ID           string   `gorm:"column:id;primaryKey;size:190;not null"`
	Title        string   `gorm:"column:title;size:320;not null"`
	Description  string   `gorm:"column:description;type:text;not null;default:''"`
	Price        int64    `gorm:"column:price;not null;default:0"`
	AuthorName   string   `gorm:"column:author_name;size:190;not null;default:''"`
	DocType      string   `gorm:"column:doc_type;size:16;not null;index"`
	Tags         []string `gorm:"column:tags_json;type:text;serializer:json"`
	AISummary    string   `gorm:"column:ai_summary;type:text;not null;default:''"`
	ThumbnailURL string   `gorm:"column:thumbnail_url;size:512;not null;default:''"`
	Rating       float64  `gorm:"column:rating;not null;default:0"`
	BoundDevice  string   `gorm:"column:bound_device;size:64;not null;default:''"`
	ListedAtNs   int64    `gorm:"column:listed_at_ns;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRecord) TableName() string {
	return "documents"
}

// NewDocumentRecord converts a Document into its persisted form.
func NewDocumentRecord(document Document, listedAt time.Time) DocumentRecord {
	bound, _ := document.Binding.Device()
	return DocumentRecord{
		ID:           document.ID,
		Title:        document.Title,
		Description:  document.Description,
		Price:        document.Price,
		AuthorName:   document.AuthorName,
		DocType:      string(document.DocType),
		Tags:         append([]string(nil), document.Tags...),
		AISummary:    document.AISummary,
		ThumbnailURL: document.ThumbnailURL,
		Rating:       document.Rating,
		BoundDevice:  bound.String(),
		ListedAtNs:   listedAt.UnixNano(),
	}
}

// Document converts the record back into a domain value.
func (r DocumentRecord) Document() (Document, error) {
	docType, err := ParseDocType(r.DocType)
	if err != nil {
		return Document{}, err
	}
	binding := Unbound()
	if r.BoundDevice != "" {
		bound, err := device.NewID(r.BoundDevice)
		if err != nil {
			return Document{}, err
		}
		binding = BoundTo(bound)
	}
	return Document{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Price:        r.Price,
		AuthorName:   r.AuthorName,
		DocType:      docType,
		Tags:         append([]string(nil), r.Tags...),
		AISummary:    r.AISummary,
		ThumbnailURL: r.ThumbnailURL,
		Rating:       r.Rating,
		Binding:      binding,
	}, nil
}

// GormStoreConfig describes the dependencies of a GormStore.
type GormStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// GormStore persists the catalog through GORM.
type GormStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewGormStore constructs a GormStore.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, newStoreError("catalog.store.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: cfg.Database, clock: clock, logger: logger}, nil
}

func (s *GormStore) Get(ctx context.Context, documentID string) (Document, error) {
	return s.take(s.db.WithContext(ctx), opGet, documentID)
}

// Bind sets bound_device only while it is still empty, so concurrent binds of one
// document resolve to a single winner.
func (s *GormStore) Bind(ctx context.Context, documentID string, id device.ID) (Document, error) {
	if id.IsZero() {
		return Document{}, fmt.Errorf("%w: empty device", device.ErrInvalidID)
	}

	var bound Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&DocumentRecord{}).
			Where(queryUnboundByID, documentID).
			Update("bound_device", id.String())
		if result.Error != nil {
			s.logError(opBind, "update_failed", result.Error, zap.String("document_id", documentID))
			return newStoreError(opBind, "update_failed", result.Error)
		}

		current, err := s.take(tx, opBind, documentID)
		if err != nil {
			return err
		}
		bound = current
		if result.RowsAffected == 1 {
			return nil
		}
		updated, err := Bind(current, id)
		if err != nil {
			return err
		}
		bound = updated
		return nil
	})
	if txErr != nil {
		return bound, txErr
	}
	return bound, nil
}

func (s *GormStore) Insert(ctx context.Context, document Document) error {
	if strings.TrimSpace(document.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	record := NewDocumentRecord(document, s.clock())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DocumentRecord{}).Where(queryDocumentID, document.ID).Count(&count).Error; err != nil {
			s.logError(opInsert, "lookup_failed", err, zap.String("document_id", document.ID))
			return newStoreError(opInsert, "lookup_failed", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, document.ID)
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opInsert, "create_failed", err, zap.String("document_id", document.ID))
			return newStoreError(opInsert, "create_failed", err)
		}
		return nil
	})
}

// List pages through the table by (listed_at_ns, id) so no cursor is held between yields.
func (s *GormStore) List(ctx context.Context, filter Filter) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		if filter.IDs != nil && len(filter.IDs) == 0 {
			return
		}
		var (
			cursorListedAt int64
			cursorID       string
			first          = true
		)
		for {
			query := s.db.WithContext(ctx).Model(&DocumentRecord{})
			if filter.DocType != "" {
				query = query.Where("doc_type = ?", string(filter.DocType))
			}
			if filter.IDs != nil {
				query = query.Where("id IN ?", filter.IDs)
			}
			if !first {
				query = query.Where(queryAfterCursor, cursorListedAt, cursorListedAt, cursorID)
			}

			var batch []DocumentRecord
			if err := query.Order(orderListedAtDesc).Order(orderDocumentIDAsc).Limit(listBatchSize).Find(&batch).Error; err != nil {
				s.logError(opList, "query_failed", err)
				yield(Document{}, newStoreError(opList, "query_failed", err))
				return
			}

			for _, record := range batch {
				document, err := record.Document()
				if err != nil {
					s.logError(opList, "record_invalid", err, zap.String("document_id", record.ID))
					yield(Document{}, newStoreError(opList, "record_invalid", err))
					return
				}
				if !filter.Matches(document) {
					continue
				}
				if !yield(document, nil) {
					return
				}
			}
			if len(batch) < listBatchSize {
				return
			}
			last := batch[len(batch)-1]
			cursorListedAt, cursorID, first = last.ListedAtNs, last.ID, false
		}
	}
}

func (s *GormStore) take(db *gorm.DB, operation, documentID string) (Document, error) {
	var record DocumentRecord
	err := db.Where(queryDocumentID, documentID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("document_id", documentID))
		return Document{}, newStoreError(operation, "select_failed", err)
	}
	document, err := record.Document()
	if err != nil {
		s.logError(operation, "record_invalid", err, zap.String("document_id", documentID))
		return Document{}, newStoreError(operation, "record_invalid", err)
	}
	return document, nil
}

func (s *GormStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("catalog store error", attrs...)
}
