// Package coordinator sequences a single feed's processing pass —
// enqueue, download, prune, RSS regeneration — and exposes the targeted
// operations (refresh one item, requeue errors, add a manual submission)
// that reuse the same phases outside a full pass.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vodcast/internal/domain"
	"vodcast/internal/extractor"
	"vodcast/internal/metrics"
	"vodcast/internal/pipeline"
	"vodcast/internal/rss"
	"vodcast/internal/store"
)

// Coordinator owns the phase objects and the feed's store/extractor
// collaborators; one instance is shared across every feed.
type Coordinator struct {
	Store      store.Store
	Extractor  extractor.Wrapper
	Enqueuer   *pipeline.Enqueuer
	Downloader *pipeline.Downloader
	Pruner     *pipeline.Pruner
	RSS        *rss.Generator

	// Metrics is optional; a nil value disables metric recording entirely.
	Metrics *metrics.Metrics
}

// New constructs a Coordinator from its collaborators.
func New(s store.Store, x extractor.Wrapper, e *pipeline.Enqueuer, d *pipeline.Downloader, p *pipeline.Pruner, r *rss.Generator) *Coordinator {
	return &Coordinator{Store: s, Extractor: x, Enqueuer: e, Downloader: d, Pruner: p, RSS: r}
}

// ProcessFeed runs enqueue -> download -> prune -> regenerate RSS for a
// single feed. A fatal enqueue failure aborts download and prune for this
// pass, but RSS regeneration still runs if the feed already has
// DOWNLOADED rows, so readers keep seeing the last-good feed.
func (c *Coordinator) ProcessFeed(ctx context.Context, feedID string) error {
	feed, err := c.Store.GetFeed(ctx, feedID)
	if err != nil {
		return fmt.Errorf("coordinator: load feed %s: %w", feedID, err)
	}

	var enqueueErr error
	if enqueueErr = c.Enqueuer.Run(ctx, feed); enqueueErr != nil {
		if c.Metrics != nil {
			c.Metrics.RecordEnqueueError()
		}
	} else {
		if err := c.Downloader.Run(ctx, feed); err != nil {
			return fmt.Errorf("coordinator: download phase for %s: %w", feedID, err)
		}
		if err := c.Pruner.Run(ctx, feed); err != nil {
			return fmt.Errorf("coordinator: prune phase for %s: %w", feedID, err)
		}
	}

	if err := c.regenerateRSS(ctx, feedID); err != nil {
		if enqueueErr != nil {
			return fmt.Errorf("coordinator: enqueue failed (%v) and rss regeneration failed: %w", enqueueErr, err)
		}
		return err
	}
	return enqueueErr
}

func (c *Coordinator) regenerateRSS(ctx context.Context, feedID string) error {
	feed, err := c.Store.GetFeed(ctx, feedID)
	if err != nil {
		return fmt.Errorf("coordinator: reload feed %s for rss: %w", feedID, err)
	}
	downloaded, err := c.Store.ListByStatus(ctx, feedID, domain.StatusDownloaded, 0, 0)
	if err != nil {
		return fmt.Errorf("coordinator: list downloaded for %s: %w", feedID, err)
	}
	if len(downloaded) == 0 {
		return nil
	}
	if err := c.RSS.Regenerate(feed, downloaded); err != nil {
		return fmt.Errorf("coordinator: regenerate rss for %s: %w", feedID, err)
	}
	return c.Store.SetLastRSSGeneration(ctx, feedID, time.Now())
}

// RefreshResult reports what RefreshDownloadMetadata actually changed.
type RefreshResult struct {
	MetadataChanged     bool
	UpdatedFields       []string
	ThumbnailRefreshed  bool
	TranscriptRefreshed bool
}

// RefreshDownloadMetadata re-fetches a single item's metadata, diff-merges
// it through UpsertDownload, and triggers an artifact-selective
// re-download when the thumbnail URL changed, or refreshTranscript is set.
func (c *Coordinator) RefreshDownloadMetadata(ctx context.Context, key domain.DownloadKey, refreshTranscript bool) (RefreshResult, error) {
	existing, err := c.Store.GetDownload(ctx, key)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("coordinator: load download %s/%s: %w", key.FeedID, key.ID, err)
	}
	feed, err := c.Store.GetFeed(ctx, key.FeedID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("coordinator: load feed %s: %w", key.FeedID, err)
	}

	refreshed, err := c.Extractor.FetchItemMetadata(ctx, existing)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("coordinator: refresh metadata for %s/%s: %w", key.FeedID, key.ID, err)
	}
	refreshed.FeedID = existing.FeedID
	refreshed.ID = existing.ID

	var result RefreshResult
	for _, d := range []struct{ name, before, after string }{
		{"title", existing.Title, refreshed.Title},
		{"description", existing.Description, refreshed.Description},
		{"remote_thumbnail_url", existing.RemoteThumbnailURL, refreshed.RemoteThumbnailURL},
		{"quality_info", existing.QualityInfo, refreshed.QualityInfo},
	} {
		if d.before != d.after {
			result.UpdatedFields = append(result.UpdatedFields, d.name)
		}
	}
	result.MetadataChanged = len(result.UpdatedFields) > 0

	if err := c.Store.UpsertDownload(ctx, refreshed); err != nil {
		return RefreshResult{}, fmt.Errorf("coordinator: upsert refreshed %s/%s: %w", key.FeedID, key.ID, err)
	}

	mask := domain.ArtifactMask{
		Thumbnail:  refreshed.RemoteThumbnailURL != existing.RemoteThumbnailURL,
		Transcript: refreshTranscript,
	}
	if !mask.Any() {
		return result, nil
	}
	if err := c.Downloader.DownloadArtifacts(ctx, feed, existing, mask); err != nil {
		return RefreshResult{}, fmt.Errorf("coordinator: refresh artifacts for %s/%s: %w", key.FeedID, key.ID, err)
	}
	result.ThumbnailRefreshed = mask.Thumbnail
	result.TranscriptRefreshed = mask.Transcript
	return result, nil
}

// ErrNotManual is returned when a manual-only operation targets a feed
// that still runs on a cron schedule.
var ErrNotManual = errors.New("coordinator: feed does not accept manual submissions")

// ErrNotVOD is returned when a manual submission resolves to a live or
// upcoming broadcast rather than a finished video-on-demand item.
var ErrNotVOD = errors.New("coordinator: item is not a vod (live or upcoming)")

// SubmissionResult reports the outcome of AddManualSubmission.
type SubmissionResult struct {
	FeedID     string
	DownloadID string
	Status     domain.DownloadStatus
	New        bool
	Message    string
}

// AddManualSubmission fetches single-item metadata for url and inserts or
// requeues it under feedID, which must be a manual feed. It does not run
// a pass itself; the caller (the scheduler, via a manual-submission
// dedup) is responsible for scheduling process_feed afterward.
func (c *Coordinator) AddManualSubmission(ctx context.Context, feedID, url string) (SubmissionResult, error) {
	feed, err := c.Store.GetFeed(ctx, feedID)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("coordinator: load feed %s: %w", feedID, err)
	}
	if !feed.IsManual() {
		return SubmissionResult{}, fmt.Errorf("%w: %s", ErrNotManual, feedID)
	}

	placeholder := &domain.Download{FeedID: feedID, SourceURL: url}
	item, err := c.Extractor.FetchItemMetadata(ctx, placeholder)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("coordinator: fetch manual submission metadata: %w", err)
	}
	item.FeedID = feedID
	if item.Status == domain.StatusUpcoming {
		return SubmissionResult{}, fmt.Errorf("%w: %s/%s", ErrNotVOD, feedID, item.ID)
	}

	existing, err := c.Store.GetDownload(ctx, domain.DownloadKey{FeedID: feedID, ID: item.ID})
	switch {
	case errors.Is(err, store.ErrNotFound):
		item.Status = domain.StatusQueued
		if err := c.Store.UpsertDownload(ctx, item); err != nil {
			return SubmissionResult{}, fmt.Errorf("coordinator: insert manual submission %s/%s: %w", feedID, item.ID, err)
		}
		return SubmissionResult{FeedID: feedID, DownloadID: item.ID, Status: domain.StatusQueued, New: true, Message: "submission queued"}, nil
	case err != nil:
		return SubmissionResult{}, fmt.Errorf("coordinator: load existing submission %s/%s: %w", feedID, item.ID, err)
	}

	for _, from := range []domain.DownloadStatus{domain.StatusArchived, domain.StatusError} {
		if reqErr := c.Store.RequeueDownload(ctx, item.Key(), from); reqErr == nil {
			return SubmissionResult{FeedID: feedID, DownloadID: item.ID, Status: domain.StatusQueued, New: false, Message: "resubmission requeued"}, nil
		} else if !errors.Is(reqErr, store.ErrIllegalTransition) {
			return SubmissionResult{}, reqErr
		}
	}
	return SubmissionResult{FeedID: feedID, DownloadID: existing.ID, Status: existing.Status, New: false, Message: "submission already exists"}, nil
}
