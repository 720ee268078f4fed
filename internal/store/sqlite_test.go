package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodcast/internal/domain"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "vodcast.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFeed(t *testing.T, s *SQLStore, id string) {
	t.Helper()
	require.NoError(t, s.UpsertFeed(context.Background(), &domain.Feed{
		ID:         id,
		IsEnabled:  true,
		SourceType: domain.SourceChannel,
		SourceURL:  "https://example.test/@" + id,
	}))
}

func TestUpsertDownloadIsMetadataOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")

	key := domain.DownloadKey{FeedID: "demo", ID: "v1"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{
		FeedID: "demo", ID: "v1", Title: "first", Published: time.Now(), Status: domain.StatusQueued,
	}))

	_, err := s.BumpRetries(ctx, key, "boom", 3)
	require.NoError(t, err)

	// Re-upserting metadata must not reset retries/last_error/status.
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{
		FeedID: "demo", ID: "v1", Title: "first (renamed)", Published: time.Now(), Status: domain.StatusQueued,
	}))

	got, err := s.GetDownload(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first (renamed)", got.Title)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, "boom", got.LastError)
	assert.Equal(t, domain.StatusQueued, got.Status)
}

func TestBumpRetriesReachesErrorAtCeiling(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	key := domain.DownloadKey{FeedID: "demo", ID: "v9"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: "v9", Title: "x", Published: time.Now(), Status: domain.StatusQueued}))

	var last domain.DownloadStatus
	var err error
	for i := 0; i < 3; i++ {
		last, err = s.BumpRetries(ctx, key, "boom", 3)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.StatusError, last)

	got, err := s.GetDownload(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Retries)
	assert.Equal(t, domain.StatusError, got.Status)

	// Beyond the ceiling: still increments, stays ERROR.
	last, err = s.BumpRetries(ctx, key, "boom again", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, last)
	got, err = s.GetDownload(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Retries)
}

func TestRequeueResetsRetriesAndStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	key := domain.DownloadKey{FeedID: "demo", ID: "v9"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: "v9", Title: "x", Published: time.Now(), Status: domain.StatusQueued}))
	for i := 0; i < 3; i++ {
		_, err := s.BumpRetries(ctx, key, "boom", 3)
		require.NoError(t, err)
	}

	require.NoError(t, s.RequeueDownload(ctx, key, domain.StatusError))

	got, err := s.GetDownload(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.Empty(t, got.LastError)
}

func TestRequeueWrongStatusIsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	key := domain.DownloadKey{FeedID: "demo", ID: "v1"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: "v1", Title: "x", Published: time.Now(), Status: domain.StatusQueued}))

	err := s.RequeueDownload(ctx, key, domain.StatusError)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestArchiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	key := domain.DownloadKey{FeedID: "demo", ID: "v1"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: "v1", Title: "x", Published: time.Now(), Status: domain.StatusQueued}))

	require.NoError(t, s.Archive(ctx, key))
	require.NoError(t, s.Archive(ctx, key))

	got, err := s.GetDownload(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, got.Status)
}

func TestMarkDownloadedRequiresQueuedOrUpcoming(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	key := domain.DownloadKey{FeedID: "demo", ID: "v1"}
	require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: "v1", Title: "x", Published: time.Now(), Status: domain.StatusQueued}))
	require.NoError(t, s.Archive(ctx, key))

	err := s.MarkDownloaded(ctx, key, MarkDownloadedFields{Ext: "mp4", MimeType: "video/mp4", Filesize: 10, Duration: 5})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTotalDownloadsInvariant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	for _, id := range []string{"v1", "v2", "v3"} {
		require.NoError(t, s.UpsertDownload(ctx, &domain.Download{FeedID: "demo", ID: id, Title: id, Published: time.Now(), Status: domain.StatusQueued}))
	}
	require.NoError(t, s.Archive(ctx, domain.DownloadKey{FeedID: "demo", ID: "v3"}))
	require.NoError(t, s.RefreshTotalDownloads(ctx, "demo"))

	count, err := s.CountNonArchived(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f, err := s.GetFeed(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, f.TotalDownloads)
}

func TestListCandidatesByKeepLast(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFeed(t, s, "demo")
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"v1", "v2", "v3"} {
		require.NoError(t, s.UpsertDownload(ctx, &domain.Download{
			FeedID: "demo", ID: id, Title: id,
			Published: base.Add(time.Duration(i) * time.Minute),
			Status:    domain.StatusDownloaded,
		}))
	}

	candidates, err := s.ListCandidatesByKeepLast(ctx, "demo", 2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "v1", candidates[0].ID) // oldest-published is the 3rd by descending rank
}

func TestGetFeedNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFeed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
