// Package pipeline implements the three per-feed phases — enqueue,
// download, prune — as stateless structs over the shared collaborators
// (store.Store, extractor.Wrapper, filestore.Store, pathutil.Manager),
// constructed once and reused across every feed and every pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"vodcast/internal/domain"
	"vodcast/internal/extractor"
	"vodcast/internal/store"
)

// upcomingRepollConcurrency bounds how many UPCOMING rows are re-checked
// against the extractor at once; these are read-only metadata calls, safe
// to parallelize a few at a time without violating the one-feed-in-flight
// rule (the whole enqueue phase still runs under the global semaphore).
const upcomingRepollConcurrency = 4

// EnqueueError wraps a fatal enqueue-phase failure: the extractor could
// not enumerate the feed at all, or one or more returned items could not
// be stored.
type EnqueueError struct {
	FeedID string
	Err    error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("pipeline: enqueue feed %s: %v", e.FeedID, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// Enqueuer discovers new and re-polls UPCOMING items for a single feed.
type Enqueuer struct {
	Store     store.Store
	Extractor extractor.Wrapper
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(s store.Store, x extractor.Wrapper) *Enqueuer {
	return &Enqueuer{Store: s, Extractor: x}
}

// Run re-polls UPCOMING rows, then fetches the feed's current playlist and
// inserts or metadata-upserts each returned item. It never touches
// artifacts. On fatal failure it records last_failed_sync, increments
// consecutive_failures, and returns the cause (an *EnqueueError for
// enumeration and insert failures); on success it records
// last_successful_sync and resets consecutive_failures.
func (e *Enqueuer) Run(ctx context.Context, feed *domain.Feed) error {
	if err := e.repollUpcoming(ctx, feed); err != nil {
		// A store failure during the re-poll is recorded as a failed sync
		// and returned as-is; fresh enumeration is not attempted in this
		// pass.
		return e.recordFailure(ctx, feed, err)
	}

	bounds := extractor.PlaylistBounds{Since: feed.Since, KeepLast: feed.KeepLast}
	items, err := e.Extractor.FetchPlaylistMetadata(ctx, feed, bounds)
	if err != nil {
		return e.recordFailure(ctx, feed, &EnqueueError{FeedID: feed.ID, Err: err})
	}

	var upsertErrs *multierror.Error
	for _, item := range items {
		if !feed.Since.IsZero() && item.Published.Before(feed.Since) {
			continue
		}
		if err := e.Store.UpsertDownload(ctx, item); err != nil {
			upsertErrs = multierror.Append(upsertErrs, fmt.Errorf("item %s: %w", item.ID, err))
		}
	}
	if upsertErrs.ErrorOrNil() != nil {
		return e.recordFailure(ctx, feed, &EnqueueError{FeedID: feed.ID, Err: upsertErrs})
	}

	if err := e.Store.RecordSyncSuccess(ctx, feed.ID, time.Now()); err != nil {
		return fmt.Errorf("pipeline: record sync success for %s: %w", feed.ID, err)
	}
	return nil
}

func (e *Enqueuer) recordFailure(ctx context.Context, feed *domain.Feed, cause error) error {
	if recErr := e.Store.RecordSyncFailure(ctx, feed.ID, time.Now()); recErr != nil {
		return fmt.Errorf("pipeline: record sync failure for %s: %w (after: %v)", feed.ID, recErr, cause)
	}
	return cause
}

// repollUpcoming re-checks every UPCOMING row for feed against the
// extractor: rows now reported as a finished VOD are marked QUEUED; rows
// that have fallen outside the feed's since/keep_last window are archived.
// An extractor error for an individual item is skipped (a not-found or
// filtered item is archived) and never aborts the phase; the first store
// error from listing or transitioning rows is returned.
func (e *Enqueuer) repollUpcoming(ctx context.Context, feed *domain.Feed) error {
	upcoming, err := e.Store.ListByStatus(ctx, feed.ID, domain.StatusUpcoming, 0, 0)
	if err != nil {
		return fmt.Errorf("pipeline: list upcoming for %s: %w", feed.ID, err)
	}
	if len(upcoming) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upcomingRepollConcurrency)
	for _, d := range upcoming {
		d := d
		g.Go(func() error {
			return e.repollOne(gctx, feed, d)
		})
	}
	return g.Wait()
}

func (e *Enqueuer) repollOne(ctx context.Context, feed *domain.Feed, d *domain.Download) error {
	refreshed, err := e.Extractor.FetchItemMetadata(ctx, d)
	if err != nil {
		if errors.Is(err, extractor.ErrNotFound) || errors.Is(err, extractor.ErrItemFiltered) {
			return e.Store.Archive(ctx, d.Key())
		}
		return nil // transient; retried on the next pass
	}

	if !feed.Since.IsZero() && refreshed.Published.Before(feed.Since) {
		return e.Store.Archive(ctx, d.Key())
	}
	if feed.KeepLast != nil {
		beyond, err := e.Store.ListCandidatesByKeepLast(ctx, feed.ID, *feed.KeepLast)
		if err == nil {
			for _, c := range beyond {
				if c.Key() == d.Key() {
					return e.Store.Archive(ctx, d.Key())
				}
			}
		}
	}
	if refreshed.Status == domain.StatusQueued {
		return e.Store.MarkUpcomingAsQueued(ctx, d.Key())
	}
	return nil
}
