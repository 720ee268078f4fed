package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vodcast/internal/domain"
)

const downloadColumns = `feed_id, id, source_url, title, published, ext, mime_type, filesize,
	duration, status, retries, last_error, download_logs, discovered_at, updated_at,
	downloaded_at, remote_thumbnail_url, thumbnail_ext, description, quality_info,
	playlist_index, transcript_ext, transcript_lang, transcript_source`

func scanDownload(row interface{ Scan(...any) error }) (*domain.Download, error) {
	var (
		d            domain.Download
		lastError    sql.NullString
		downloadLogs sql.NullString
		downloadedAt sql.NullString
		published    string
		discoveredAt string
		updatedAt    string
	)
	err := row.Scan(
		&d.FeedID, &d.ID, &d.SourceURL, &d.Title, &published, &d.Ext, &d.MimeType, &d.Filesize,
		&d.Duration, &d.Status, &d.Retries, &lastError, &downloadLogs, &discoveredAt, &updatedAt,
		&downloadedAt, &d.RemoteThumbnailURL, &d.ThumbnailExt, &d.Description, &d.QualityInfo,
		&d.PlaylistIndex, &d.TranscriptExt, &d.TranscriptLang, &d.TranscriptSource,
	)
	if err != nil {
		return nil, err
	}
	if lastError.Valid {
		d.LastError = lastError.String
	}
	if downloadLogs.Valid {
		d.DownloadLogs = downloadLogs.String
	}
	d.Published = parseTimeStr(published)
	d.DiscoveredAt = parseTimeStr(discoveredAt)
	d.UpdatedAt = parseTimeStr(updatedAt)
	d.DownloadedAt = parseTimeStr(downloadedAt.String)
	return &d, nil
}

// UpsertDownload inserts a new row or refreshes metadata fields. It never
// changes status, retries, or last_error on an existing row.
func (s *SQLStore) UpsertDownload(ctx context.Context, d *domain.Download) error {
	now := timeRequired(time.Now())
	discovered := d.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (
			feed_id, id, source_url, title, published, ext, mime_type, filesize, duration,
			status, retries, discovered_at, updated_at, remote_thumbnail_url, description,
			quality_info, playlist_index
		) VALUES (?,?,?,?,?,?,?,?,?,?,0,?,?,?,?,?,?)
		ON CONFLICT(feed_id, id) DO UPDATE SET
			source_url = excluded.source_url,
			title = excluded.title,
			published = excluded.published,
			remote_thumbnail_url = excluded.remote_thumbnail_url,
			description = excluded.description,
			quality_info = excluded.quality_info,
			playlist_index = excluded.playlist_index,
			updated_at = excluded.updated_at
	`,
		d.FeedID, d.ID, d.SourceURL, d.Title, timeRequired(d.Published), d.Ext, d.MimeType, d.Filesize, d.Duration,
		string(d.Status), timeRequired(discovered), now, d.RemoteThumbnailURL, d.Description,
		d.QualityInfo, d.PlaylistIndex,
	)
	if err != nil {
		return fmt.Errorf("store: upsert download %s/%s: %w", d.FeedID, d.ID, err)
	}
	return nil
}

// BumpRetries increments retries and sets last_error; once retries reaches
// maxErrors the row transitions to ERROR. Returns the resulting status.
func (s *SQLStore) BumpRetries(ctx context.Context, key domain.DownloadKey, errMsg string, maxErrors int) (domain.DownloadStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin bump_retries: %w", err)
	}
	defer tx.Rollback()

	var retries int
	err = tx.QueryRowContext(ctx, `SELECT retries FROM downloads WHERE feed_id = ? AND id = ?`, key.FeedID, key.ID).Scan(&retries)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: download %s/%s", ErrNotFound, key.FeedID, key.ID)
	}
	if err != nil {
		return "", fmt.Errorf("store: bump_retries read: %w", err)
	}

	retries++
	newStatus := domain.StatusQueued
	if retries >= maxErrors {
		newStatus = domain.StatusError
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE downloads SET retries = ?, last_error = ?, status = ?, updated_at = ?
		WHERE feed_id = ? AND id = ?`,
		retries, errMsg, string(newStatus), timeRequired(time.Now()), key.FeedID, key.ID)
	if err != nil {
		return "", fmt.Errorf("store: bump_retries write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: bump_retries commit: %w", err)
	}
	return newStatus, nil
}

// MarkDownloaded requires current status in {QUEUED, UPCOMING}; transitions
// to DOWNLOADED and clears retries/last_error.
func (s *SQLStore) MarkDownloaded(ctx context.Context, key domain.DownloadKey, fields MarkDownloadedFields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin mark_downloaded: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM downloads WHERE feed_id = ? AND id = ?`, key.FeedID, key.ID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: download %s/%s", ErrNotFound, key.FeedID, key.ID)
	}
	if err != nil {
		return fmt.Errorf("store: mark_downloaded read: %w", err)
	}
	if status != string(domain.StatusQueued) && status != string(domain.StatusUpcoming) {
		return fmt.Errorf("%w: download %s/%s is %s, expected QUEUED or UPCOMING", ErrIllegalTransition, key.FeedID, key.ID, status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE downloads SET
			status = ?, downloaded_at = ?, ext = ?, mime_type = ?, filesize = ?, duration = ?,
			thumbnail_ext = ?, transcript_ext = ?, transcript_lang = ?, transcript_source = ?,
			retries = 0, last_error = NULL, updated_at = ?
		WHERE feed_id = ? AND id = ?`,
		string(domain.StatusDownloaded), timeRequired(time.Now()), fields.Ext, fields.MimeType, fields.Filesize, fields.Duration,
		fields.ThumbnailExt, fields.TranscriptExt, fields.TranscriptLang, string(fields.TranscriptSource), timeRequired(time.Now()),
		key.FeedID, key.ID)
	if err != nil {
		return fmt.Errorf("store: mark_downloaded write: %w", err)
	}
	return tx.Commit()
}

// MarkUpcomingAsQueued requires current status UPCOMING; transitions to
// QUEUED without touching discovered_at.
func (s *SQLStore) MarkUpcomingAsQueued(ctx context.Context, key domain.DownloadKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, updated_at = ?
		WHERE feed_id = ? AND id = ? AND status = ?`,
		string(domain.StatusQueued), timeRequired(time.Now()), key.FeedID, key.ID, string(domain.StatusUpcoming))
	return checkDownloadRowsAffected(res, err, key)
}

// Archive transitions any non-ARCHIVED row to ARCHIVED; a no-op if already
// archived.
func (s *SQLStore) Archive(ctx context.Context, key domain.DownloadKey) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, updated_at = ?
		WHERE feed_id = ? AND id = ? AND status <> ?`,
		string(domain.StatusArchived), timeRequired(time.Now()), key.FeedID, key.ID, string(domain.StatusArchived))
	if err != nil {
		return fmt.Errorf("store: archive %s/%s: %w", key.FeedID, key.ID, err)
	}
	return nil
}

// RequeueDownload resets a single row to QUEUED, clearing retries and
// last_error, provided it is currently in fromStatus.
func (s *SQLStore) RequeueDownload(ctx context.Context, key domain.DownloadKey, fromStatus domain.DownloadStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, retries = 0, last_error = NULL, updated_at = ?
		WHERE feed_id = ? AND id = ? AND status = ?`,
		string(domain.StatusQueued), timeRequired(time.Now()), key.FeedID, key.ID, string(fromStatus))
	n, err := rowsAffectedOrErr(res, err)
	if err != nil {
		return fmt.Errorf("store: requeue %s/%s: %w", key.FeedID, key.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: download %s/%s is not %s", ErrIllegalTransition, key.FeedID, key.ID, fromStatus)
	}
	return nil
}

// RequeueAllInStatus bulk-requeues every row of a feed currently in
// fromStatus (used by POST /admin/feeds/{id}/requeue), returning the count
// affected.
func (s *SQLStore) RequeueAllInStatus(ctx context.Context, feedID string, fromStatus domain.DownloadStatus) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status = ?, retries = 0, last_error = NULL, updated_at = ?
		WHERE feed_id = ? AND status = ?`,
		string(domain.StatusQueued), timeRequired(time.Now()), feedID, string(fromStatus))
	n, err := rowsAffectedOrErr(res, err)
	if err != nil {
		return 0, fmt.Errorf("store: bulk requeue feed %s: %w", feedID, err)
	}
	return int(n), nil
}

// SetThumbnailExtension is a targeted writer for artifact metadata only,
// used when only the thumbnail needs refreshing without a full re-download.
func (s *SQLStore) SetThumbnailExtension(ctx context.Context, key domain.DownloadKey, ext string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET thumbnail_ext = ?, updated_at = ? WHERE feed_id = ? AND id = ?`,
		ext, timeRequired(time.Now()), key.FeedID, key.ID)
	return checkDownloadRowsAffected(res, err, key)
}

// SetTranscriptFields is a targeted writer for transcript metadata only.
func (s *SQLStore) SetTranscriptFields(ctx context.Context, key domain.DownloadKey, ext, lang string, source domain.TranscriptSource) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET transcript_ext = ?, transcript_lang = ?, transcript_source = ?, updated_at = ?
		WHERE feed_id = ? AND id = ?`,
		ext, lang, string(source), timeRequired(time.Now()), key.FeedID, key.ID)
	return checkDownloadRowsAffected(res, err, key)
}

// SetDownloadLogs stores the captured output from the most recent download
// attempt, for operator diagnosis.
func (s *SQLStore) SetDownloadLogs(ctx context.Context, key domain.DownloadKey, logs string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET download_logs = ?, updated_at = ? WHERE feed_id = ? AND id = ?`,
		logs, timeRequired(time.Now()), key.FeedID, key.ID)
	return checkDownloadRowsAffected(res, err, key)
}

// GetDownload returns ErrNotFound if no row exists with that key.
func (s *SQLStore) GetDownload(ctx context.Context, key domain.DownloadKey) (*domain.Download, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM downloads WHERE feed_id = ? AND id = ?`, key.FeedID, key.ID)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: download %s/%s", ErrNotFound, key.FeedID, key.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get download %s/%s: %w", key.FeedID, key.ID, err)
	}
	return d, nil
}

// ListByStatus returns a bounded batch, oldest-published first. feedID
// empty matches every feed; a limit of 0 or less returns every matching row.
func (s *SQLStore) ListByStatus(ctx context.Context, feedID string, status domain.DownloadStatus, limit, offset int) ([]*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE status = ?`
	args := []any{string(status)}
	if feedID != "" {
		query += ` AND feed_id = ?`
		args = append(args, feedID)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY published ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryDownloads(ctx, query, args...)
}

// ListCandidatesByKeepLast returns rows in the active set ranked by
// published descending beyond the keep_last'th.
func (s *SQLStore) ListCandidatesByKeepLast(ctx context.Context, feedID string, keepLast int) ([]*domain.Download, error) {
	return s.queryDownloads(ctx, `
		WITH ranked AS (
			SELECT `+downloadColumns+`,
				ROW_NUMBER() OVER (ORDER BY published DESC) AS rnk
			FROM downloads
			WHERE feed_id = ? AND status IN ('DOWNLOADED','ERROR','UPCOMING')
		)
		SELECT feed_id, id, source_url, title, published, ext, mime_type, filesize, duration,
			status, retries, last_error, download_logs, discovered_at, updated_at, downloaded_at,
			remote_thumbnail_url, thumbnail_ext, description, quality_info, playlist_index,
			transcript_ext, transcript_lang, transcript_source
		FROM ranked WHERE rnk > ?`, feedID, keepLast)
}

// ListCandidatesByBeforeDate returns active-set rows published strictly
// before the cutoff; a row published exactly at the cutoff is kept.
func (s *SQLStore) ListCandidatesByBeforeDate(ctx context.Context, feedID string, before time.Time) ([]*domain.Download, error) {
	return s.queryDownloads(ctx, `
		SELECT `+downloadColumns+` FROM downloads
		WHERE feed_id = ? AND status IN ('DOWNLOADED','ERROR','UPCOMING') AND published < ?`,
		feedID, timeRequired(before))
}

// CountNonArchived backs the feed's total_downloads counter.
func (s *SQLStore) CountNonArchived(ctx context.Context, feedID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloads WHERE feed_id = ? AND status <> ?`,
		feedID, string(domain.StatusArchived)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count non-archived for %s: %w", feedID, err)
	}
	return n, nil
}

func (s *SQLStore) queryDownloads(ctx context.Context, query string, args ...any) ([]*domain.Download, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query downloads: %w", err)
	}
	defer rows.Close()

	var out []*domain.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan download: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func rowsAffectedOrErr(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func checkDownloadRowsAffected(res sql.Result, err error, key domain.DownloadKey) error {
	n, err := rowsAffectedOrErr(res, err)
	if err != nil {
		return fmt.Errorf("store: updating download %s/%s: %w", key.FeedID, key.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: download %s/%s", ErrNotFound, key.FeedID, key.ID)
	}
	return nil
}
