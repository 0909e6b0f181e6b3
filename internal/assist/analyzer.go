// Package assist suggests listing metadata and study tips for documents.
package assist

import (
	"context"
	"errors"
)

const (
	MinSuggestedPrice = 10
	MaxSuggestedPrice = 500
	maxSuggestedTags  = 5

	fallbackSummary  = "Tài liệu học tập hữu ích cho bạn."
	fallbackPrice    = 50
	fallbackTip      = "Hãy học tập chăm chỉ!"
	emptyResponseTip = "Hãy tập trung và ghi chú cẩn thận nhé!"
)

var fallbackTags = []string{"#TaiLieu", "#HocTap"}

// ErrEmptyInput indicates there was nothing to analyze.
var ErrEmptyInput = errors.New("assist: nothing to analyze")

// Suggestion is listing metadata proposed for a draft.
type Suggestion struct {
	Summary string
	Tags    []string
	Price   int64
}

// Analyzer proposes metadata and tips. Results are untrusted plain data.
type Analyzer interface {
	Analyze(ctx context.Context, title, content string) (Suggestion, error)
	StudyTip(ctx context.Context, title string) (string, error)
}

// DefaultSuggestion is used whenever an analyzer fails.
func DefaultSuggestion() Suggestion {
	return Suggestion{
		Summary: fallbackSummary,
		Tags:    append([]string(nil), fallbackTags...),
		Price:   fallbackPrice,
	}
}

// ClampPrice bounds a suggested price to the listing range.
func ClampPrice(price int64) int64 {
	return min(max(price, MinSuggestedPrice), MaxSuggestedPrice)
}
