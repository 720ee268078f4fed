// Package rss renders a feed's DOWNLOADED items into a PSP-1 compliant
// podcast RSS document using github.com/jo-hoe/gofeedx, and publishes it
// atomically through internal/filestore. It replaces a hand-rolled
// encoding/xml struct with a library that already implements the iTunes
// and Podcast Index namespaces plus PSP-1 validation.
package rss

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jo-hoe/gofeedx"

	"vodcast/internal/domain"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
)

// Generator builds and publishes a feed's RSS document.
type Generator struct {
	paths *pathutil.Manager
	files *filestore.Store
}

// NewGenerator constructs a Generator.
func NewGenerator(paths *pathutil.Manager, files *filestore.Store) *Generator {
	return &Generator{paths: paths, files: files}
}

// Regenerate renders feed's current DOWNLOADED downloads into PSP-1 RSS and
// writes it atomically to the feed's feed_xml_path. Non-DOWNLOADED rows
// (queued, upcoming, errored, skipped, archived) are never published.
func (g *Generator) Regenerate(feed *domain.Feed, downloads []*domain.Download) error {
	built, err := BuildFeed(feed, downloads, g.paths)
	if err != nil {
		return fmt.Errorf("rss: build feed %s: %w", feed.ID, err)
	}

	var buf bytes.Buffer
	if err := built.WritePSPRSS(&buf); err != nil {
		return fmt.Errorf("rss: render feed %s: %w", feed.ID, err)
	}

	target, err := g.paths.FeedXMLPath(feed.ID)
	if err != nil {
		return fmt.Errorf("rss: resolve feed_xml_path for %s: %w", feed.ID, err)
	}
	if err := g.files.Save(target, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("rss: save feed %s: %w", feed.ID, err)
	}
	return nil
}

// BuildFeed maps feed and its DOWNLOADED downloads onto a gofeedx.Feed,
// ready for ValidatePSP/WritePSPRSS. Downloads in any other status are
// filtered out before this is called by the caller (the coordinator),
// but BuildFeed filters defensively too since a stray non-DOWNLOADED row
// must never reach the published feed.
func BuildFeed(feed *domain.Feed, downloads []*domain.Download, paths *pathutil.Manager) (*gofeedx.Feed, error) {
	feedURL, err := paths.FeedURL(feed.ID)
	if err != nil {
		return nil, err
	}

	explicit := effectiveExplicitBool(feed.EffectiveExplicit())

	f := &gofeedx.Feed{
		Title:       feed.Title,
		Description: effectiveDescription(feed),
		Link:        &gofeedx.Link{Href: effectiveLink(feed)},
		Author:      &gofeedx.Author{Name: feed.Author, Email: feed.AuthorEmail},
		Language:    effectiveLanguage(feed.Language),
		Copyright:   "",
		Updated:     feed.LastRSSGeneration,
		Created:     feed.CreatedAt,
		ID:          feed.ID,
		FeedURL:     feedURL,
		Categories:  []*gofeedx.Category{{Text: feed.EffectiveCategory()}},

		ItunesExplicit: &explicit,
		ItunesType:     string(feed.EffectivePodcastType()),
	}

	if href, err := feedImageHref(feed, paths); err == nil && href != "" {
		f.ItunesImageHref = href
		f.Image = &gofeedx.Image{Url: href, Title: feed.Title, Link: effectiveLink(feed)}
	}

	live := filterDownloaded(downloads)
	sort.Slice(live, func(i, j int) bool { return live[i].Published.Before(live[j].Published) })

	serial := feed.EffectivePodcastType() == domain.PodcastSerial
	for i, d := range live {
		item, err := buildItem(feed, d, paths, explicit)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", d.ID, err)
		}
		if serial {
			episode := i + 1
			item.ItunesEpisode = &episode
		}
		f.Add(item)
	}

	return f, nil
}

func filterDownloaded(downloads []*domain.Download) []*domain.Download {
	out := make([]*domain.Download, 0, len(downloads))
	for _, d := range downloads {
		if d.Status == domain.StatusDownloaded {
			out = append(out, d)
		}
	}
	return out
}

func buildItem(feed *domain.Feed, d *domain.Download, paths *pathutil.Manager, feedExplicit bool) (*gofeedx.Item, error) {
	mediaURL, err := paths.MediaURL(feed.ID, d.ID, d.Ext)
	if err != nil {
		return nil, err
	}

	item := &gofeedx.Item{
		Title:       d.Title,
		Link:        &gofeedx.Link{Href: d.SourceURL},
		Description: d.Description,
		ID:          itemGUID(feed.ID, d.ID),
		IsPermaLink: "false",
		Updated:     d.UpdatedAt,
		Created:     d.Published,
		Enclosure: &gofeedx.Enclosure{
			Url:    mediaURL,
			Length: d.Filesize,
			Type:   d.MimeType,
		},
		DurationSeconds: d.Duration,
		ItunesExplicit:  &feedExplicit,
	}

	if d.HasThumbnail() {
		if href, err := paths.ImageURL(feed.ID, d.ID, d.ThumbnailExt); err == nil {
			item.ItunesImageHref = href
		}
	}

	if d.HasTranscript() {
		if href, err := paths.TranscriptURL(feed.ID, d.ID, d.TranscriptLang, d.TranscriptExt); err == nil {
			item.Transcripts = []gofeedx.PSPTranscript{{
				Url:      href,
				Type:     transcriptMimeType(d.TranscriptExt),
				Language: d.TranscriptLang,
			}}
		}
	}

	return item, nil
}

// itemGUID is stable across regenerations: it depends only on the feed and
// download identity, never on mutable fields like title or status.
func itemGUID(feedID, downloadID string) string {
	return feedID + ":" + downloadID
}

func effectiveLink(feed *domain.Feed) string {
	if feed.ResolvedURL != "" {
		return feed.ResolvedURL
	}
	return feed.SourceURL
}

func effectiveDescription(feed *domain.Feed) string {
	if feed.Description != "" {
		return feed.Description
	}
	if feed.Subtitle != "" {
		return feed.Subtitle
	}
	return feed.Title
}

func effectiveLanguage(lang string) string {
	if lang == "" {
		return "en"
	}
	return lang
}

func effectiveExplicitBool(e domain.Explicit) bool {
	return e == domain.ExplicitYes
}

func feedImageHref(feed *domain.Feed, paths *pathutil.Manager) (string, error) {
	if feed.ImageExt == "" {
		return feed.RemoteImageURL, nil
	}
	return paths.ImageURL(feed.ID, "", feed.ImageExt)
}

func transcriptMimeType(ext string) string {
	switch ext {
	case "srt":
		return "application/x-subrip"
	case "vtt":
		return "text/vtt"
	default:
		return "text/plain"
	}
}
