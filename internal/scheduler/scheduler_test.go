package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodcast/internal/coordinator"
	"vodcast/internal/domain"
	"vodcast/internal/extractor"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
	"vodcast/internal/pipeline"
	"vodcast/internal/rss"
	"vodcast/internal/store"
)

// countingExtractor counts FetchPlaylistMetadata calls; every pass it
// drives is otherwise a no-op (empty playlist, no downloads).
type countingExtractor struct {
	calls int32
}

func (c *countingExtractor) DiscoverFeedProperties(ctx context.Context, url string) (extractor.DiscoveredFeed, error) {
	return extractor.DiscoveredFeed{}, nil
}

func (c *countingExtractor) FetchPlaylistMetadata(ctx context.Context, feed *domain.Feed, bounds extractor.PlaylistBounds) ([]*domain.Download, error) {
	atomic.AddInt32(&c.calls, 1)
	return nil, nil
}

func (c *countingExtractor) FetchItemMetadata(ctx context.Context, d *domain.Download) (*domain.Download, error) {
	return d, nil
}

func (c *countingExtractor) DownloadMedia(ctx context.Context, d *domain.Download, tmpDir, cookiesPath string) (extractor.MediaResult, error) {
	return extractor.MediaResult{}, nil
}

func (c *countingExtractor) DownloadFeedThumbnail(ctx context.Context, feed *domain.Feed, tmpDir string) (string, error) {
	return "", nil
}

func (c *countingExtractor) DownloadMediaThumbnail(ctx context.Context, d *domain.Download, tmpDir string) (string, error) {
	return "", nil
}

func (c *countingExtractor) DownloadTranscript(ctx context.Context, d *domain.Download, tmpDir, lang string, source domain.TranscriptSource) (string, error) {
	return "", nil
}

func newTestScheduler(t *testing.T) (*FeedScheduler, *store.SQLStore, *countingExtractor) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "db", "vodcast.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	paths := pathutil.New(t.TempDir(), "https://feeds.example.test")
	files := filestore.New()
	x := &countingExtractor{}
	c := coordinator.New(s, x, pipeline.NewEnqueuer(s, x), pipeline.NewDownloader(s, x, files, paths, 3, ""), pipeline.NewPruner(s, files, paths), rss.NewGenerator(paths, files))

	return New(c, s, nil), s, x
}

func seedFeed(t *testing.T, s *store.SQLStore, id, schedule string) *domain.Feed {
	t.Helper()
	f := &domain.Feed{ID: id, IsEnabled: true, SourceType: domain.SourceChannel, SourceURL: "https://example.test/@" + id, Schedule: schedule}
	require.NoError(t, s.UpsertFeed(context.Background(), f))
	return f
}

func TestStartRegistersOnlyNonManualFeeds(t *testing.T) {
	sch, s, _ := newTestScheduler(t)
	seedFeed(t, s, "scheduled", "* * * * *")
	seedFeed(t, s, "manual", domain.ManualSchedule)

	require.NoError(t, sch.Start(context.Background()))
	defer sch.Stop(context.Background())

	assert.Len(t, sch.cron.Entries(), 1)
}

func TestSubmitDedupesWhilePending(t *testing.T) {
	sch, s, x := newTestScheduler(t)
	seedFeed(t, s, "feed1", domain.ManualSchedule)

	// Occupy the semaphore so the first Submit's task must wait in the
	// pending registry instead of running immediately.
	sch.sem <- struct{}{}

	sch.Submit("feed1")
	sch.mu.Lock()
	task := sch.pending["feed1"]
	sch.mu.Unlock()
	require.NotNil(t, task)

	// A second submission while the first is still pending must not
	// queue a new task.
	sch.Submit("feed1")
	sch.mu.Lock()
	assert.Same(t, task, sch.pending["feed1"])
	sch.mu.Unlock()
	assert.Equal(t, int32(0), atomic.LoadInt32(&x.calls))

	<-sch.sem // release the placeholder, letting the blocked task proceed
	select {
	case <-task.done:
	case <-time.After(2 * time.Second):
		t.Fatal("pending task never completed")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&x.calls))
	sch.mu.Lock()
	_, stillPending := sch.pending["feed1"]
	sch.mu.Unlock()
	assert.False(t, stillPending)
}

func TestSubmitAndWaitRunsSynchronously(t *testing.T) {
	sch, s, x := newTestScheduler(t)
	seedFeed(t, s, "feed1", domain.ManualSchedule)

	sch.SubmitAndWait(context.Background(), "feed1")
	assert.Equal(t, int32(1), atomic.LoadInt32(&x.calls))
}
