package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status represents one remote post mirrored locally. Only the fields the
// index and merge logic need are parsed out; the full upstream document is
// kept in Raw and stored verbatim so re-serving it loses nothing.
type Status struct {
	// ID is the remote status ID. IDs are numeric strings issued roughly
	// monotonically; see CompareID for the ordering rule.
	ID string

	// CreatedAt is when the status was posted.
	CreatedAt time.Time

	// Account is the authoring account.
	Account Account

	// Tags are the hashtags attached to the status. Names match
	// case-insensitively but are stored as the author wrote them.
	Tags []Tag

	RepliesCount    int64
	ReblogsCount    int64
	FavouritesCount int64

	// Raw is the complete upstream JSON document.
	Raw json.RawMessage
}

// Account identifies the author of a status.
type Account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Tag is a hashtag attached to a status.
type Tag struct {
	Name string `json:"name"`
}

// TagCount is a hashtag with the number of statuses carrying it.
type TagCount struct {
	Name  string
	Count int
}

// HasTag reports whether the status carries the given hashtag,
// case-insensitively.
func (s *Status) HasTag(name string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// statusDocument is the subset of the upstream status JSON we parse.
type statusDocument struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Account         Account   `json:"account"`
	Tags            []Tag     `json:"tags"`
	RepliesCount    int64     `json:"replies_count"`
	ReblogsCount    int64     `json:"reblogs_count"`
	FavouritesCount int64     `json:"favourites_count"`
}

// DecodeStatus parses a raw upstream status document, keeping the full
// document attached for storage and redisplay.
func DecodeStatus(raw []byte) (*Status, error) {
	var doc statusDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("decode status: missing id")
	}

	return &Status{
		ID:              doc.ID,
		CreatedAt:       doc.CreatedAt,
		Account:         doc.Account,
		Tags:            doc.Tags,
		RepliesCount:    doc.RepliesCount,
		ReblogsCount:    doc.ReblogsCount,
		FavouritesCount: doc.FavouritesCount,
		Raw:             json.RawMessage(append([]byte(nil), raw...)),
	}, nil
}

// CompareID orders status IDs the way the remote system issues them: a
// longer numeric string is always newer than a shorter one, and equal-length
// strings compare lexicographically. Plain string comparison across lengths
// would rank "99" above "100". Returns -1, 0 or 1 like strings.Compare.
//
// https://docs.joinmastodon.org/api/guidelines/#id
func CompareID(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the largest status ID in the page under CompareID ordering.
// Returns "" for an empty page.
func MaxID(statuses []*Status) string {
	var max string
	for _, s := range statuses {
		if max == "" || CompareID(s.ID, max) > 0 {
			max = s.ID
		}
	}
	return max
}

// SortByIDDesc sorts statuses newest-first under CompareID ordering.
func SortByIDDesc(statuses []*Status) {
	slices.SortFunc(statuses, func(a, b *Status) int {
		return CompareID(b.ID, a.ID)
	})
}

// DedupeByID removes duplicate IDs from an already sorted slice, keeping the
// first occurrence.
func DedupeByID(statuses []*Status) []*Status {
	out := statuses[:0]
	seen := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
