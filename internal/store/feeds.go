package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vodcast/internal/domain"
)

func joinPriority(p []domain.TranscriptSource) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func splitPriority(s string) []domain.TranscriptSource {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.TranscriptSource, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, domain.TranscriptSource(p))
		}
	}
	return out
}

// UpsertFeed inserts a feed row or updates its configuration-derived
// fields, used by the startup reconciliation pass. It never touches
// sync-accounting fields owned by RecordSyncSuccess / RecordSyncFailure,
// nor total_downloads.
func (s *SQLStore) UpsertFeed(ctx context.Context, f *domain.Feed) error {
	now := timeRequired(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (
			id, is_enabled, source_type, source_url, resolved_url,
			since, keep_last, schedule, title, subtitle, description, language,
			author, author_email, remote_image_url, image_ext, category,
			podcast_type, explicit, transcript_lang, transcript_source_priority,
			notify_url, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			source_type = excluded.source_type,
			source_url = excluded.source_url,
			resolved_url = excluded.resolved_url,
			since = excluded.since,
			keep_last = excluded.keep_last,
			schedule = excluded.schedule,
			title = excluded.title,
			subtitle = excluded.subtitle,
			description = excluded.description,
			language = excluded.language,
			author = excluded.author,
			author_email = excluded.author_email,
			remote_image_url = excluded.remote_image_url,
			image_ext = excluded.image_ext,
			category = excluded.category,
			podcast_type = excluded.podcast_type,
			explicit = excluded.explicit,
			transcript_lang = excluded.transcript_lang,
			transcript_source_priority = excluded.transcript_source_priority,
			notify_url = excluded.notify_url,
			updated_at = excluded.updated_at
	`,
		f.ID, boolToInt(f.IsEnabled), string(f.SourceType), f.SourceURL, f.ResolvedURL,
		timeOrNull(f.Since), intOrNull(f.KeepLast), f.Schedule, f.Title, f.Subtitle, f.Description, f.Language,
		f.Author, f.AuthorEmail, f.RemoteImageURL, f.ImageExt, f.Category,
		string(f.PodcastType), string(f.Explicit), f.TranscriptLang, joinPriority(f.TranscriptSourcePriority),
		f.NotifyURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("store: upsert feed %s: %w", f.ID, err)
	}
	return nil
}

const feedColumns = `id, is_enabled, source_type, source_url, resolved_url,
	last_successful_sync, last_failed_sync, consecutive_failures, since, keep_last, schedule,
	title, subtitle, description, language, author, author_email, remote_image_url,
	image_ext, category, podcast_type, explicit, transcript_lang, transcript_source_priority,
	notify_url, created_at, updated_at, last_rss_generation, total_downloads`

func scanFeed(row interface{ Scan(...any) error }) (*domain.Feed, error) {
	var (
		f                domain.Feed
		isEnabled        int
		lastSuccess      sql.NullString
		lastFailed       sql.NullString
		since            sql.NullString
		keepLast         sql.NullInt64
		lastRSSGen       sql.NullString
		transcriptPrio   string
		createdAt        string
		updatedAt        string
	)
	err := row.Scan(
		&f.ID, &isEnabled, &f.SourceType, &f.SourceURL, &f.ResolvedURL,
		&lastSuccess, &lastFailed, &f.ConsecutiveFailures, &since, &keepLast, &f.Schedule,
		&f.Title, &f.Subtitle, &f.Description, &f.Language, &f.Author, &f.AuthorEmail, &f.RemoteImageURL,
		&f.ImageExt, &f.Category, &f.PodcastType, &f.Explicit, &f.TranscriptLang, &transcriptPrio,
		&f.NotifyURL, &createdAt, &updatedAt, &lastRSSGen, &f.TotalDownloads,
	)
	if err != nil {
		return nil, err
	}
	f.IsEnabled = isEnabled != 0
	f.LastSuccessfulSync = parseTime(lastSuccess)
	f.LastFailedSync = parseTime(lastFailed)
	f.Since = parseTime(since)
	f.KeepLast = nullableInt(keepLast)
	f.CreatedAt = parseTimeStr(createdAt)
	f.UpdatedAt = parseTimeStr(updatedAt)
	f.LastRSSGeneration = parseTime(lastRSSGen)
	f.TranscriptSourcePriority = splitPriority(transcriptPrio)
	return &f, nil
}

// GetFeed returns ErrNotFound if no row exists with that ID.
func (s *SQLStore) GetFeed(ctx context.Context, feedID string) (*domain.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, feedID)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: feed %s", ErrNotFound, feedID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get feed %s: %w", feedID, err)
	}
	return f, nil
}

// ListFeeds returns every configured feed, enabled or not.
func (s *SQLStore) ListFeeds(ctx context.Context) ([]*domain.Feed, error) {
	return s.queryFeeds(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY id`)
}

// ListEnabledFeeds returns feeds the scheduler should register triggers for.
func (s *SQLStore) ListEnabledFeeds(ctx context.Context) ([]*domain.Feed, error) {
	return s.queryFeeds(ctx, `SELECT `+feedColumns+` FROM feeds WHERE is_enabled = 1 ORDER BY id`)
}

func (s *SQLStore) queryFeeds(ctx context.Context, query string, args ...any) ([]*domain.Feed, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan feed: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordSyncSuccess sets last_successful_sync and resets
// consecutive_failures to 0.
func (s *SQLStore) RecordSyncSuccess(ctx context.Context, feedID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_successful_sync = ?, consecutive_failures = 0, updated_at = ?
		WHERE id = ?`, timeRequired(at), timeRequired(time.Now()), feedID)
	return checkRowsAffected(res, err, feedID)
}

// RecordSyncFailure sets last_failed_sync and increments
// consecutive_failures.
func (s *SQLStore) RecordSyncFailure(ctx context.Context, feedID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_failed_sync = ?, consecutive_failures = consecutive_failures + 1, updated_at = ?
		WHERE id = ?`, timeRequired(at), timeRequired(time.Now()), feedID)
	return checkRowsAffected(res, err, feedID)
}

// SetLastRSSGeneration records when the feed's RSS file was last rewritten.
func (s *SQLStore) SetLastRSSGeneration(ctx context.Context, feedID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_rss_generation = ?, updated_at = ? WHERE id = ?`,
		timeRequired(at), timeRequired(time.Now()), feedID)
	return checkRowsAffected(res, err, feedID)
}

// RefreshTotalDownloads recomputes total_downloads from the downloads table,
// called by the pruner after archiving candidates.
func (s *SQLStore) RefreshTotalDownloads(ctx context.Context, feedID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET total_downloads = (
			SELECT COUNT(*) FROM downloads WHERE feed_id = feeds.id AND status <> 'ARCHIVED'
		), updated_at = ?
		WHERE id = ?`, timeRequired(time.Now()), feedID)
	return checkRowsAffected(res, err, feedID)
}

func checkRowsAffected(res sql.Result, err error, feedID string) error {
	if err != nil {
		return fmt.Errorf("store: updating feed %s: %w", feedID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected for feed %s: %w", feedID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: feed %s", ErrNotFound, feedID)
	}
	return nil
}
