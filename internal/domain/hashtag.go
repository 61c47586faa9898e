package domain

import (
	"context"
	"log/slog"
	"strings"
)

// HashtagService manages the curated hashtag subscriptions. Anyone can
// suggest a tag; only approved tags drive timeline aggregation.
type HashtagService struct {
	store  HashtagStore
	logger *slog.Logger
}

// NewHashtagService creates a HashtagService over the given store.
func NewHashtagService(store HashtagStore, logger *slog.Logger) *HashtagService {
	return &HashtagService{store: store, logger: logger}
}

// ListHashtags returns the approved hashtags, sorted by name.
func (s *HashtagService) ListHashtags(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// SuggestHashtag records one vote for a hashtag suggestion. Leading '#' and
// surrounding whitespace are stripped; empty suggestions are ignored.
func (s *HashtagService) SuggestHashtag(ctx context.Context, name string) error {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return nil
	}
	if err := s.store.IncrementVote(ctx, name); err != nil {
		return err
	}
	s.logger.Debug("hashtag suggested", "name", name)
	return nil
}
