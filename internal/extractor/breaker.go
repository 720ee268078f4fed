package extractor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"vodcast/internal/domain"
)

// BreakerWrapper wraps a Wrapper with one gobreaker.CircuitBreaker per
// feed ID (DiscoverFeedProperties, which has no feed yet, is keyed by its
// URL), so a rate-limited or dead channel trips only its own breaker
// rather than stalling every other feed's pass. It opens on a run of
// RateLimited/ExtractorFailed results and half-opens after a cooldown.
type BreakerWrapper struct {
	inner Wrapper

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerWrapper wraps inner, creating breakers lazily per feed ID.
func NewBreakerWrapper(inner Wrapper) *BreakerWrapper {
	return &BreakerWrapper{inner: inner, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *BreakerWrapper) breakerFor(feedID string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[feedID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "extractor:" + feedID,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	b.breakers[feedID] = cb
	return cb
}

// tripWorthy reports whether err should count toward opening the breaker.
// NotFound/Forbidden/ItemFiltered/CookiesRequired are steady-state item
// outcomes, not upstream distress signals, so they don't count.
func tripWorthy(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrExtractorFailed)
}

func execute[T any](b *BreakerWrapper, feedID string, call func() (T, error)) (T, error) {
	cb := b.breakerFor(feedID)
	var realErr error
	result, err := cb.Execute(func() (any, error) {
		v, callErr := call()
		realErr = callErr
		if callErr != nil && !tripWorthy(callErr) {
			// Not a distress signal: report success to the breaker but
			// still surface the real error to the caller via realErr.
			return v, nil
		}
		return v, callErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			var zero T
			return zero, fmt.Errorf("%w: circuit open for feed %s", ErrExtractorFailed, feedID)
		}
		var zero T
		return zero, err
	}
	if realErr != nil {
		var zero T
		return zero, realErr
	}
	typed, _ := result.(T)
	return typed, nil
}

func (b *BreakerWrapper) DiscoverFeedProperties(ctx context.Context, url string) (DiscoveredFeed, error) {
	return execute(b, url, func() (DiscoveredFeed, error) {
		return b.inner.DiscoverFeedProperties(ctx, url)
	})
}

func (b *BreakerWrapper) FetchPlaylistMetadata(ctx context.Context, feed *domain.Feed, bounds PlaylistBounds) ([]*domain.Download, error) {
	return execute(b, feed.ID, func() ([]*domain.Download, error) {
		return b.inner.FetchPlaylistMetadata(ctx, feed, bounds)
	})
}

func (b *BreakerWrapper) FetchItemMetadata(ctx context.Context, d *domain.Download) (*domain.Download, error) {
	return execute(b, d.FeedID, func() (*domain.Download, error) {
		return b.inner.FetchItemMetadata(ctx, d)
	})
}

func (b *BreakerWrapper) DownloadMedia(ctx context.Context, d *domain.Download, tmpDir, cookiesPath string) (MediaResult, error) {
	return execute(b, d.FeedID, func() (MediaResult, error) {
		return b.inner.DownloadMedia(ctx, d, tmpDir, cookiesPath)
	})
}

func (b *BreakerWrapper) DownloadFeedThumbnail(ctx context.Context, feed *domain.Feed, tmpDir string) (string, error) {
	return execute(b, feed.ID, func() (string, error) {
		return b.inner.DownloadFeedThumbnail(ctx, feed, tmpDir)
	})
}

func (b *BreakerWrapper) DownloadMediaThumbnail(ctx context.Context, d *domain.Download, tmpDir string) (string, error) {
	return execute(b, d.FeedID, func() (string, error) {
		return b.inner.DownloadMediaThumbnail(ctx, d, tmpDir)
	})
}

func (b *BreakerWrapper) DownloadTranscript(ctx context.Context, d *domain.Download, tmpDir, lang string, source domain.TranscriptSource) (string, error) {
	return execute(b, d.FeedID, func() (string, error) {
		return b.inner.DownloadTranscript(ctx, d, tmpDir, lang, source)
	})
}

var _ Wrapper = (*BreakerWrapper)(nil)
