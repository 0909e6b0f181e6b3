package assist

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 3 * time.Second

// GuardConfig configures a Guard.
type GuardConfig struct {
	Analyzer Analyzer
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Guard bounds an Analyzer with a timeout and replaces failures with defaults.
// Its methods never return errors.
type Guard struct {
	analyzer Analyzer
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGuard wraps cfg.Analyzer, defaulting to the heuristic analyzer.
func NewGuard(cfg GuardConfig) *Guard {
	analyzer := cfg.Analyzer
	if analyzer == nil {
		analyzer = NewHeuristicAnalyzer()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{analyzer: analyzer, timeout: timeout, logger: logger}
}

type analysis struct {
	suggestion Suggestion
	err        error
}

// Analyze returns a sanitized suggestion, or DefaultSuggestion when the analyzer fails or is slow.
func (g *Guard) Analyze(ctx context.Context, title, content string) Suggestion {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results := make(chan analysis, 1)
	go func() {
		suggestion, err := g.analyzer.Analyze(ctx, title, content)
		results <- analysis{suggestion: suggestion, err: err}
	}()

	select {
	case <-ctx.Done():
		g.logger.Warn("document analysis timed out", zap.String("title", title), zap.Error(ctx.Err()))
		return DefaultSuggestion()
	case result := <-results:
		if result.err != nil {
			g.logger.Warn("document analysis failed", zap.String("title", title), zap.Error(result.err))
			return DefaultSuggestion()
		}
		return sanitize(result.suggestion)
	}
}

type tipResult struct {
	tip string
	err error
}

// StudyTip returns a tip for title, or a fixed encouragement when the analyzer fails.
func (g *Guard) StudyTip(ctx context.Context, title string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results := make(chan tipResult, 1)
	go func() {
		tip, err := g.analyzer.StudyTip(ctx, title)
		results <- tipResult{tip: tip, err: err}
	}()

	select {
	case <-ctx.Done():
		g.logger.Warn("study tip timed out", zap.String("title", title))
		return fallbackTip
	case result := <-results:
		if result.err != nil {
			g.logger.Warn("study tip failed", zap.String("title", title), zap.Error(result.err))
			return fallbackTip
		}
		if tip := strings.TrimSpace(result.tip); tip != "" {
			return tip
		}
		return emptyResponseTip
	}
}

func sanitize(suggestion Suggestion) Suggestion {
	fallback := DefaultSuggestion()
	sanitized := Suggestion{
		Summary: strings.TrimSpace(suggestion.Summary),
		Price:   ClampPrice(suggestion.Price),
	}
	if sanitized.Summary == "" {
		sanitized.Summary = fallback.Summary
	}
	for _, tag := range suggestion.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		sanitized.Tags = append(sanitized.Tags, tag)
		if len(sanitized.Tags) == maxSuggestedTags {
			break
		}
	}
	if len(sanitized.Tags) == 0 {
		sanitized.Tags = fallback.Tags
	}
	return sanitized
}
