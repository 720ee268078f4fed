// Package store is the sole authority on Feed and Download state. Every
// mutation is a named, transactional operation; there is no generic
// row-update method. Backed by modernc.org/sqlite, using the same
// net/url-built DSN idiom as the teacher's read-only analytics queries,
// generalized into a full read/write store with WAL journaling.
package store

import (
	"context"
	"errors"
	"time"

	"vodcast/internal/domain"
)

// ErrNotFound is returned when a feed or download row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrIllegalTransition is returned when an operation's preconditions on the
// current status are not met (e.g. mark_downloaded on an ARCHIVED row).
var ErrIllegalTransition = errors.New("store: illegal state transition")

// Store is the typed contract every pipeline phase and the coordinator
// depend on. Implemented by *SQLStore; fakeable in tests.
type Store interface {
	// Feeds

	UpsertFeed(ctx context.Context, f *domain.Feed) error
	GetFeed(ctx context.Context, feedID string) (*domain.Feed, error)
	ListFeeds(ctx context.Context) ([]*domain.Feed, error)
	ListEnabledFeeds(ctx context.Context) ([]*domain.Feed, error)
	RecordSyncSuccess(ctx context.Context, feedID string, at time.Time) error
	RecordSyncFailure(ctx context.Context, feedID string, at time.Time) error
	SetLastRSSGeneration(ctx context.Context, feedID string, at time.Time) error
	RefreshTotalDownloads(ctx context.Context, feedID string) error

	// Downloads — writes

	UpsertDownload(ctx context.Context, d *domain.Download) error
	BumpRetries(ctx context.Context, key domain.DownloadKey, errMsg string, maxErrors int) (domain.DownloadStatus, error)
	MarkDownloaded(ctx context.Context, key domain.DownloadKey, fields MarkDownloadedFields) error
	MarkUpcomingAsQueued(ctx context.Context, key domain.DownloadKey) error
	Archive(ctx context.Context, key domain.DownloadKey) error
	RequeueDownload(ctx context.Context, key domain.DownloadKey, fromStatus domain.DownloadStatus) error
	RequeueAllInStatus(ctx context.Context, feedID string, fromStatus domain.DownloadStatus) (int, error)
	SetThumbnailExtension(ctx context.Context, key domain.DownloadKey, ext string) error
	SetTranscriptFields(ctx context.Context, key domain.DownloadKey, ext, lang string, source domain.TranscriptSource) error
	SetDownloadLogs(ctx context.Context, key domain.DownloadKey, logs string) error

	// Downloads — reads

	GetDownload(ctx context.Context, key domain.DownloadKey) (*domain.Download, error)
	ListByStatus(ctx context.Context, feedID string, status domain.DownloadStatus, limit, offset int) ([]*domain.Download, error)
	ListCandidatesByKeepLast(ctx context.Context, feedID string, keepLast int) ([]*domain.Download, error)
	ListCandidatesByBeforeDate(ctx context.Context, feedID string, before time.Time) ([]*domain.Download, error)
	CountNonArchived(ctx context.Context, feedID string) (int, error)

	Close() error
}

// MarkDownloadedFields bundles the fields MarkDownloaded refines once a
// media file lands; the thumbnail/transcript fields are optional artifacts.
type MarkDownloadedFields struct {
	Ext              string
	MimeType         string
	Filesize         int64
	Duration         int
	ThumbnailExt     string
	TranscriptExt    string
	TranscriptLang   string
	TranscriptSource domain.TranscriptSource
}
