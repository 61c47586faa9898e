// Package sqlite implements the status index, the per-hashtag watermark
// store, and the subscribed-hashtag store on a single sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tagmirror/internal/domain"
)

// timeLayout is how timestamps are stored. It matches sqlite's own
// datetime() output so stored values compare correctly against
// datetime('now', ...) expressions.
const timeLayout = "2006-01-02 15:04:05"

const schema = `
	CREATE TABLE IF NOT EXISTS statuses(
		id TEXT NOT NULL PRIMARY KEY,
		created_at TEXT NOT NULL,
		account_id TEXT NOT NULL,
		account_acct TEXT NOT NULL,
		replies_count INTEGER NOT NULL DEFAULT 0,
		reblogs_count INTEGER NOT NULL DEFAULT 0,
		favourites_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS statuses_created_at_idx ON statuses (created_at);
	CREATE TABLE IF NOT EXISTS status_tags(
		status_id TEXT NOT NULL,
		name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS status_tags_status_idx ON status_tags (status_id, name);
	CREATE INDEX IF NOT EXISTS status_tags_name_idx ON status_tags (name, status_id);
	CREATE TABLE IF NOT EXISTS status_refreshes(
		id TEXT NOT NULL PRIMARY KEY,
		refreshed_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS recent_statuses(
		tag TEXT NOT NULL PRIMARY KEY,
		status_id TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS subscribed_hashtags(
		name TEXT NOT NULL PRIMARY KEY,
		approved INTEGER NOT NULL DEFAULT 0,
		votes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (DATETIME('now'))
	);`

// Store implements domain.StatusIndex, domain.WatermarkStore and
// domain.HashtagStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and ensures
// the schema exists. The caller should Close the store when done.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The workers and the read path share this handle.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertStatuses upserts the batch in one transaction. Tag associations are
// replaced wholesale so tags removed upstream do not linger, and every
// status's refresh timestamp is reset to now.
func (s *Store) InsertStatuses(ctx context.Context, statuses []*domain.Status) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO statuses (id, created_at, account_id, account_acct, replies_count, reblogs_count, favourites_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			account_id = excluded.account_id,
			account_acct = excluded.account_acct,
			replies_count = excluded.replies_count,
			reblogs_count = excluded.reblogs_count,
			favourites_count = excluded.favourites_count`)
	if err != nil {
		return fmt.Errorf("prepare status upsert: %w", err)
	}
	defer upsert.Close()

	clearTags, err := tx.PrepareContext(ctx, `DELETE FROM status_tags WHERE status_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare tag delete: %w", err)
	}
	defer clearTags.Close()

	insertTag, err := tx.PrepareContext(ctx, `INSERT INTO status_tags (status_id, name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tag insert: %w", err)
	}
	defer insertTag.Close()

	touchRefresh, err := tx.PrepareContext(ctx, `
		INSERT INTO status_refreshes (id, refreshed_at) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET refreshed_at = excluded.refreshed_at`)
	if err != nil {
		return fmt.Errorf("prepare refresh upsert: %w", err)
	}
	defer touchRefresh.Close()

	now := formatTime(time.Now())
	for _, status := range statuses {
		if _, err := upsert.ExecContext(ctx,
			status.ID,
			formatTime(status.CreatedAt),
			status.Account.ID,
			status.Account.Acct,
			status.RepliesCount,
			status.ReblogsCount,
			status.FavouritesCount,
		); err != nil {
			return fmt.Errorf("upsert status %s: %w", status.ID, err)
		}

		if _, err := clearTags.ExecContext(ctx, status.ID); err != nil {
			return fmt.Errorf("clear tags for %s: %w", status.ID, err)
		}
		for _, tag := range status.Tags {
			if _, err := insertTag.ExecContext(ctx, status.ID, tag.Name); err != nil {
				return fmt.Errorf("insert tag %s for %s: %w", tag.Name, status.ID, err)
			}
		}

		if _, err := touchRefresh.ExecContext(ctx, status.ID, now); err != nil {
			return fmt.Errorf("touch refresh for %s: %w", status.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SearchStatuses returns IDs matching any of the hashtags, newest first.
func (s *Store) SearchStatuses(ctx context.Context, hashtags []string, limit int) ([]string, error) {
	query := `SELECT s.id FROM statuses s` + tagFilter(hashtags) + `
		ORDER BY s.created_at DESC
		LIMIT ?`

	args := tagArgs(hashtags)
	args = append(args, limit)

	return s.queryIDs(ctx, query, args...)
}

// PopularStatuses returns IDs created at or after since ordered by summed
// engagement counters.
func (s *Store) PopularStatuses(ctx context.Context, hashtags []string, since time.Time, limit int) ([]string, error) {
	query := `SELECT s.id FROM statuses s` + tagFilter(hashtags)
	if len(hashtags) > 0 {
		query += ` AND s.created_at >= ?`
	} else {
		query += ` WHERE s.created_at >= ?`
	}
	query += `
		ORDER BY s.replies_count + s.reblogs_count + s.favourites_count DESC
		LIMIT ?`

	args := tagArgs(hashtags)
	args = append(args, formatTime(since), limit)

	return s.queryIDs(ctx, query, args...)
}

// ListStale returns IDs created in [since, freshSince) that have not been
// refreshed since freshSince, newest first.
func (s *Store) ListStale(ctx context.Context, since, freshSince time.Time, limit int) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT s.id
		FROM statuses s
		LEFT JOIN status_refreshes sr ON sr.id = s.id
		WHERE s.created_at >= ? AND s.created_at < ?
		  AND (sr.id IS NULL OR sr.refreshed_at < ?)
		ORDER BY s.created_at DESC
		LIMIT ?`,
		formatTime(since), formatTime(freshSince), formatTime(freshSince), limit)
}

// PopularTags counts statuses per hashtag over the last days days.
func (s *Store) PopularTags(ctx context.Context, days int, limit int) ([]domain.TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.name, COUNT(*)
		FROM status_tags st
		JOIN statuses s ON s.id = st.status_id
		WHERE s.created_at >= datetime('now', ?)
		GROUP BY st.name
		ORDER BY 2 DESC
		LIMIT ?`,
		fmt.Sprintf("-%d days", days), limit)
	if err != nil {
		return nil, fmt.Errorf("query popular tags: %w", err)
	}
	defer rows.Close()

	var counts []domain.TagCount
	for rows.Next() {
		var tc domain.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// CountStatuses returns the number of indexed statuses.
func (s *Store) CountStatuses(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statuses`).Scan(&count)
	return count, err
}

// RecentStatusID returns the pagination watermark for a hashtag.
func (s *Store) RecentStatusID(ctx context.Context, tag string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT status_id FROM recent_statuses WHERE tag = ?`, tag,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query watermark: %w", err)
	}
	return id, true, nil
}

// SetRecentStatusID upserts the pagination watermark for a hashtag.
func (s *Store) SetRecentStatusID(ctx context.Context, tag, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_statuses (tag, status_id) VALUES (?, ?)
		ON CONFLICT (tag) DO UPDATE SET status_id = excluded.status_id`,
		tag, id)
	return err
}

// List returns the approved hashtags sorted by name.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx,
		`SELECT name FROM subscribed_hashtags WHERE approved = 1 ORDER BY name`)
}

// IncrementVote records one suggestion vote, creating the hashtag unapproved
// if it is new.
func (s *Store) IncrementVote(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribed_hashtags (name, votes) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET votes = votes + 1`,
		name)
	return err
}

// Approve marks a hashtag as approved so the aggregation workers pick it up.
func (s *Store) Approve(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribed_hashtags SET approved = 1 WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("unknown hashtag %q", name)
	}
	return nil
}

// Suggestion is one row of the subscribed-hashtags table, for the ops CLI.
type Suggestion struct {
	Name     string
	Approved bool
	Votes    int
}

// ListSuggestions returns every hashtag with its vote count, most voted
// first.
func (s *Store) ListSuggestions(ctx context.Context) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, approved, votes FROM subscribed_hashtags ORDER BY votes DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []Suggestion
	for rows.Next() {
		var sg Suggestion
		if err := rows.Scan(&sg.Name, &sg.Approved, &sg.Votes); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// tagFilter builds the WHERE clause restricting statuses to those carrying
// at least one of the hashtags. Empty for no filter.
func tagFilter(hashtags []string) string {
	if len(hashtags) == 0 {
		return ""
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashtags)), ",")
	return `
		WHERE s.id IN (
			SELECT status_id FROM status_tags WHERE lower(name) IN (` + placeholders + `)
		)`
}

func tagArgs(hashtags []string) []any {
	args := make([]any, 0, len(hashtags)+2)
	for _, tag := range hashtags {
		args = append(args, strings.ToLower(tag))
	}
	return args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
