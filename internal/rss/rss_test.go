package rss

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodcast/internal/domain"
	"vodcast/internal/pathutil"
)

func testFeed() *domain.Feed {
	return &domain.Feed{
		ID:          "feed1",
		SourceType:  domain.SourceChannel,
		SourceURL:   "https://example.test/@creator",
		ResolvedURL: "https://example.test/@creator/videos",
		Title:       "Creator Channel",
		Description: "Everything creator posts.",
		Language:    "en",
		Author:      "Creator",
		Category:    "Technology",
		PodcastType: domain.PodcastEpisodic,
		Explicit:    domain.ExplicitNo,
		ImageExt:    "jpg",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testDownload(id string, status domain.DownloadStatus, published time.Time) *domain.Download {
	return &domain.Download{
		FeedID:      "feed1",
		ID:          id,
		SourceURL:   "https://example.test/watch?v=" + id,
		Title:       "Episode " + id,
		Description: "Description for " + id,
		Published:   published,
		Ext:         "mp4",
		MimeType:    "video/mp4",
		Filesize:    1024,
		Duration:    600,
		Status:      status,
	}
}

func TestBuildFeedOnlyIncludesDownloadedItems(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	downloads := []*domain.Download{
		testDownload("a", domain.StatusDownloaded, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
		testDownload("b", domain.StatusQueued, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)),
		testDownload("c", domain.StatusArchived, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)),
	}

	built, err := BuildFeed(feed, downloads, paths)
	require.NoError(t, err)
	require.Len(t, built.Items, 1)
	assert.Equal(t, "Episode a", built.Items[0].Title)
}

func TestBuildFeedOrdersItemsByPublishedAscending(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	downloads := []*domain.Download{
		testDownload("later", domain.StatusDownloaded, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
		testDownload("earlier", domain.StatusDownloaded, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	built, err := BuildFeed(feed, downloads, paths)
	require.NoError(t, err)
	require.Len(t, built.Items, 2)
	assert.Equal(t, "Episode earlier", built.Items[0].Title)
	assert.Equal(t, "Episode later", built.Items[1].Title)
}

func TestBuildFeedAssignsSequentialEpisodesForSerialPodcasts(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	feed.PodcastType = domain.PodcastSerial
	downloads := []*domain.Download{
		testDownload("a", domain.StatusDownloaded, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		testDownload("b", domain.StatusDownloaded, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
	}

	built, err := BuildFeed(feed, downloads, paths)
	require.NoError(t, err)
	require.Len(t, built.Items, 2)
	require.NotNil(t, built.Items[0].ItunesEpisode)
	require.NotNil(t, built.Items[1].ItunesEpisode)
	assert.Equal(t, 1, *built.Items[0].ItunesEpisode)
	assert.Equal(t, 2, *built.Items[1].ItunesEpisode)
}

func TestBuildFeedValidatesAndRendersPSPRSS(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	downloads := []*domain.Download{
		testDownload("a", domain.StatusDownloaded, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	built, err := BuildFeed(feed, downloads, paths)
	require.NoError(t, err)
	require.NoError(t, built.ValidatePSP())

	out, err := built.ToPSPRSSString()
	require.NoError(t, err)
	assert.Contains(t, out, "<itunes:category")
	assert.Contains(t, out, "Episode a")
	assert.True(t, strings.Contains(out, "feed1"))
}

func TestBuildFeedItemGUIDIsStableAcrossRebuilds(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	d := testDownload("a", domain.StatusDownloaded, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := BuildFeed(feed, []*domain.Download{d}, paths)
	require.NoError(t, err)
	second, err := BuildFeed(feed, []*domain.Download{d}, paths)
	require.NoError(t, err)

	assert.Equal(t, first.Items[0].ID, second.Items[0].ID)
}

func TestBuildFeedDefaultsMissingCategoryAtValidation(t *testing.T) {
	paths := pathutil.New(t.TempDir(), "https://cast.example.test")
	feed := testFeed()
	feed.Category = ""
	d := testDownload("a", domain.StatusDownloaded, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	built, err := BuildFeed(feed, []*domain.Download{d}, paths)
	require.NoError(t, err)
	// EffectiveCategory falls back to DefaultCategory, so validation still passes.
	require.NoError(t, built.ValidatePSP())
}
