package coordinator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodcast/internal/domain"
	"vodcast/internal/extractor"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
	"vodcast/internal/pipeline"
	"vodcast/internal/rss"
	"vodcast/internal/store"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "db", "vodcast.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFeed(t *testing.T, s *store.SQLStore, id string, sourceType domain.SourceType) *domain.Feed {
	t.Helper()
	f := &domain.Feed{
		ID:             id,
		IsEnabled:      true,
		SourceType:     sourceType,
		SourceURL:      "https://example.test/@" + id,
		Title:          "Feed " + id,
		Description:    "Description of feed " + id,
		RemoteImageURL: "https://example.test/" + id + ".jpg",
	}
	require.NoError(t, s.UpsertFeed(context.Background(), f))
	return f
}

// fakeExtractor implements extractor.Wrapper with only the behavior each
// coordinator test needs; unused methods return zero values.
type fakeExtractor struct {
	playlist     []*domain.Download
	playlistErr  error
	itemMetadata map[string]*domain.Download
	itemErr      map[string]error
	media        extractor.MediaResult
}

func (f *fakeExtractor) DiscoverFeedProperties(ctx context.Context, url string) (extractor.DiscoveredFeed, error) {
	return extractor.DiscoveredFeed{}, nil
}

func (f *fakeExtractor) FetchPlaylistMetadata(ctx context.Context, feed *domain.Feed, bounds extractor.PlaylistBounds) ([]*domain.Download, error) {
	return f.playlist, f.playlistErr
}

func (f *fakeExtractor) FetchItemMetadata(ctx context.Context, d *domain.Download) (*domain.Download, error) {
	if err, ok := f.itemErr[d.ID]; ok {
		return nil, err
	}
	if m, ok := f.itemMetadata[d.ID]; ok {
		return m, nil
	}
	return d, nil
}

func (f *fakeExtractor) DownloadMedia(ctx context.Context, d *domain.Download, tmpDir, cookiesPath string) (extractor.MediaResult, error) {
	res := f.media
	if res.Path == "" {
		res.Path = filepath.Join(tmpDir, d.ID+".mp4")
	}
	return res, nil
}

func (f *fakeExtractor) DownloadFeedThumbnail(ctx context.Context, feed *domain.Feed, tmpDir string) (string, error) {
	return "", nil
}

func (f *fakeExtractor) DownloadMediaThumbnail(ctx context.Context, d *domain.Download, tmpDir string) (string, error) {
	return "", nil
}

func (f *fakeExtractor) DownloadTranscript(ctx context.Context, d *domain.Download, tmpDir, lang string, source domain.TranscriptSource) (string, error) {
	return "", nil
}

func newCoordinator(s *store.SQLStore, x extractor.Wrapper, dir string) *Coordinator {
	paths := pathutil.New(dir, "https://feeds.example.test")
	files := filestore.New()
	e := pipeline.NewEnqueuer(s, x)
	d := pipeline.NewDownloader(s, x, files, paths, 3, "")
	p := pipeline.NewPruner(s, files, paths)
	r := rss.NewGenerator(paths, files)
	return New(s, x, e, d, p, r)
}

func TestProcessFeedRegeneratesRSSAfterFullPass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceChannel)

	dataDir := t.TempDir()
	paths := pathutil.New(dataDir, "https://feeds.example.test")
	tmpDir, err := paths.TmpDir(feed.ID)
	require.NoError(t, err)
	mediaFile := filepath.Join(tmpDir, "a.mp4")
	require.NoError(t, filestore.New().Save(mediaFile, strings.NewReader("data")))

	x := &fakeExtractor{
		playlist: []*domain.Download{
			{FeedID: feed.ID, ID: "a", SourceURL: "https://example.test/a", Title: "A", Published: time.Now(), Status: domain.StatusQueued},
		},
		media: extractor.MediaResult{Path: mediaFile, Ext: "mp4", MimeType: "video/mp4", Filesize: 4, Duration: 10},
	}
	c := newCoordinator(s, x, dataDir)
	require.NoError(t, c.ProcessFeed(ctx, feed.ID))

	got, err := s.GetDownload(ctx, domain.DownloadKey{FeedID: feed.ID, ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloaded, got.Status)

	refreshed, err := s.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.LastRSSGeneration.IsZero())
}

func TestProcessFeedSkipsRSSWhenNoDownloadedRowsExist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceChannel)

	x := &fakeExtractor{playlistErr: extractor.ErrExtractorFailed}
	c := newCoordinator(s, x, t.TempDir())
	err := c.ProcessFeed(ctx, feed.ID)
	require.Error(t, err)

	refreshed, err := s.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.LastRSSGeneration.IsZero())
	assert.Equal(t, 1, refreshed.ConsecutiveFailures)
}

func TestProcessFeedStillRegeneratesRSSAfterEnqueueFailureWithExistingDownloads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceChannel)
	d := &domain.Download{FeedID: feed.ID, ID: "a", SourceURL: "u", Title: "t", Published: time.Now(), Status: domain.StatusQueued, Ext: "mp4", MimeType: "video/mp4"}
	require.NoError(t, s.UpsertDownload(ctx, d))
	require.NoError(t, s.MarkDownloaded(ctx, d.Key(), store.MarkDownloadedFields{Ext: "mp4", MimeType: "video/mp4"}))

	x := &fakeExtractor{playlistErr: extractor.ErrExtractorFailed}
	c := newCoordinator(s, x, t.TempDir())
	err := c.ProcessFeed(ctx, feed.ID)
	require.Error(t, err)

	refreshed, err := s.GetFeed(ctx, feed.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.LastRSSGeneration.IsZero())
}

func TestRefreshDownloadMetadataMergesIntoExistingRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceChannel)
	d := &domain.Download{FeedID: feed.ID, ID: "a", SourceURL: "u", Title: "old title", Published: time.Now(), Status: domain.StatusQueued}
	require.NoError(t, s.UpsertDownload(ctx, d))

	x := &fakeExtractor{itemMetadata: map[string]*domain.Download{
		"a": {FeedID: feed.ID, ID: "a", SourceURL: "u", Title: "new title", Published: d.Published, Status: domain.StatusQueued},
	}}
	c := newCoordinator(s, x, t.TempDir())
	result, err := c.RefreshDownloadMetadata(ctx, d.Key(), false)
	require.NoError(t, err)
	assert.True(t, result.MetadataChanged)
	assert.Contains(t, result.UpdatedFields, "title")

	got, err := s.GetDownload(ctx, d.Key())
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)
}

func TestAddManualSubmissionRejectsNonManualFeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceChannel)

	x := &fakeExtractor{}
	c := newCoordinator(s, x, t.TempDir())
	_, err := c.AddManualSubmission(ctx, feed.ID, "https://example.test/new")
	assert.ErrorIs(t, err, ErrNotManual)
}

func TestAddManualSubmissionInsertsQueuedItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceManual)

	x := &fakeExtractor{itemMetadata: map[string]*domain.Download{
		"": {FeedID: feed.ID, ID: "new-item", SourceURL: "https://example.test/new", Title: "New", Published: time.Now()},
	}}
	c := newCoordinator(s, x, t.TempDir())
	result, err := c.AddManualSubmission(ctx, feed.ID, "https://example.test/new")
	require.NoError(t, err)
	assert.True(t, result.New)
	assert.Equal(t, domain.StatusQueued, result.Status)

	got, err := s.GetDownload(ctx, domain.DownloadKey{FeedID: feed.ID, ID: "new-item"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
}

func TestAddManualSubmissionRejectsLiveItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceManual)

	x := &fakeExtractor{itemMetadata: map[string]*domain.Download{
		"": {FeedID: feed.ID, ID: "live-item", SourceURL: "https://example.test/live", Title: "Live", Status: domain.StatusUpcoming},
	}}
	c := newCoordinator(s, x, t.TempDir())
	_, err := c.AddManualSubmission(ctx, feed.ID, "https://example.test/live")
	assert.ErrorIs(t, err, ErrNotVOD)
}

func TestAddManualSubmissionReportsExistingStatusWithoutRequeue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	feed := seedFeed(t, s, "feed1", domain.SourceManual)
	d := &domain.Download{FeedID: feed.ID, ID: "already", SourceURL: "u", Title: "t", Published: time.Now(), Status: domain.StatusDownloaded, Ext: "mp4", MimeType: "video/mp4"}
	require.NoError(t, s.UpsertDownload(ctx, d))

	x := &fakeExtractor{itemMetadata: map[string]*domain.Download{
		"": {FeedID: feed.ID, ID: "already", SourceURL: "u", Title: "t", Status: domain.StatusQueued},
	}}
	c := newCoordinator(s, x, t.TempDir())
	result, err := c.AddManualSubmission(ctx, feed.ID, "u")
	require.NoError(t, err)
	assert.False(t, result.New)
	assert.Equal(t, domain.StatusDownloaded, result.Status)
}
