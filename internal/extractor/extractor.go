// Package extractor is the narrow contract over the external enumeration
// and download tool (yt-dlp). Nothing outside this package ever sees the
// tool's raw JSON; every public method returns typed domain values or one
// of the sentinel errors below.
package extractor

import (
	"context"
	"errors"
	"time"

	"vodcast/internal/domain"
)

// Error taxonomy exposed to callers. Concrete failures are wrapped with
// fmt.Errorf("...: %w", ErrX) so errors.Is still matches.
var (
	ErrNotFound        = errors.New("extractor: not found")
	ErrForbidden       = errors.New("extractor: forbidden")
	ErrRateLimited     = errors.New("extractor: rate limited")
	ErrCookiesRequired = errors.New("extractor: cookies required")
	ErrItemFiltered    = errors.New("extractor: item filtered")
	ErrExtractorFailed = errors.New("extractor: failed")
)

// DiscoveredFeed is the result of a lightweight, metadata-only inspection
// of a feed's configured URL.
type DiscoveredFeed struct {
	SourceType       domain.SourceType
	ResolvedURL      string
	SuggestedTitle   string
	SuggestedAuthor  string
	FeedThumbnailURL string
}

// PlaylistBounds narrows a playlist enumeration.
type PlaylistBounds struct {
	Since       time.Time
	KeepLast    *int
	CookiesPath string
}

// MediaResult is what a successful media download produces: where the
// file landed, plus fields the tool alone knows precisely.
type MediaResult struct {
	Path     string
	Ext      string
	MimeType string
	Filesize int64
	Duration int
}

// Wrapper is the ExtractorWrapper contract. One instance is shared by
// every feed; BreakerWrapper adds per-feed circuit breaking on top of it.
type Wrapper interface {
	// DiscoverFeedProperties inspects url and classifies it into a
	// SourceType, possibly rewriting a channel URL to its canonical
	// videos listing.
	DiscoverFeedProperties(ctx context.Context, url string) (DiscoveredFeed, error)

	// FetchPlaylistMetadata enumerates current items for feed, honoring
	// bounds.Since / bounds.KeepLast. Each result already has Status set
	// to QUEUED or UPCOMING. Per the partial-success contract: if the
	// tool exits non-zero but produced at least one well-formed record,
	// the returned slice is non-empty and err is nil; only a run that
	// produced zero records and exited non-zero returns ErrExtractorFailed.
	FetchPlaylistMetadata(ctx context.Context, feed *domain.Feed, bounds PlaylistBounds) ([]*domain.Download, error)

	// FetchItemMetadata re-fetches metadata for a single already-known
	// item directly from its source URL, without enumerating the whole
	// feed. Used for UPCOMING re-polls and refresh_download_metadata.
	FetchItemMetadata(ctx context.Context, d *domain.Download) (*domain.Download, error)

	// DownloadMedia produces the final media file under tmpDir and
	// returns its location plus any fields only the tool can refine
	// precisely (exact filesize, duration, ext, mime type). d.PlaylistIndex,
	// when set, selects the correct item out of a multi-attachment post.
	DownloadMedia(ctx context.Context, d *domain.Download, tmpDir, cookiesPath string) (MediaResult, error)

	// DownloadFeedThumbnail emits the feed-level artwork into tmpDir,
	// returning its path, or "" if the feed has no artwork.
	DownloadFeedThumbnail(ctx context.Context, feed *domain.Feed, tmpDir string) (string, error)

	// DownloadMediaThumbnail emits d's thumbnail into tmpDir, returning
	// its path, or "" if none is available.
	DownloadMediaThumbnail(ctx context.Context, d *domain.Download, tmpDir string) (string, error)

	// DownloadTranscript obtains a timed-captions track for d in lang,
	// preferring source, returning its path, or "" if none is available.
	DownloadTranscript(ctx context.Context, d *domain.Download, tmpDir, lang string, source domain.TranscriptSource) (string, error)
}
