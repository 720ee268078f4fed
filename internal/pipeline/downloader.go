package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"vodcast/internal/domain"
	"vodcast/internal/extractor"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
	"vodcast/internal/store"
)

// Downloader fetches media (plus thumbnail/transcript) for QUEUED items
// and moves the results into their canonical on-disk locations.
type Downloader struct {
	Store       store.Store
	Extractor   extractor.Wrapper
	Files       *filestore.Store
	Paths       *pathutil.Manager
	MaxErrors   int
	CookiesPath string
}

// NewDownloader constructs a Downloader. maxErrors is the retry ceiling
// passed through to store.BumpRetries.
func NewDownloader(s store.Store, x extractor.Wrapper, f *filestore.Store, p *pathutil.Manager, maxErrors int, cookiesPath string) *Downloader {
	return &Downloader{Store: s, Extractor: x, Files: f, Paths: p, MaxErrors: maxErrors, CookiesPath: cookiesPath}
}

// Run processes every QUEUED download for feed, oldest-published first.
// Items are attempted independently: one item's failure never aborts the
// batch.
func (dl *Downloader) Run(ctx context.Context, feed *domain.Feed) error {
	queued, err := dl.Store.ListByStatus(ctx, feed.ID, domain.StatusQueued, 0, 0)
	if err != nil {
		return fmt.Errorf("pipeline: list queued for %s: %w", feed.ID, err)
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].Published.Before(queued[j].Published) })

	for _, d := range queued {
		dl.processOne(ctx, feed, d)
	}
	return nil
}

func (dl *Downloader) processOne(ctx context.Context, feed *domain.Feed, d *domain.Download) {
	tmpDir, err := dl.Paths.TmpDir(feed.ID)
	if err != nil {
		dl.bumpOrLog(ctx, d, fmt.Sprintf("allocate tmp dir: %v", err))
		return
	}
	defer os.RemoveAll(tmpDir)

	media, err := dl.Extractor.DownloadMedia(ctx, d, tmpDir, dl.CookiesPath)
	if err != nil {
		if errors.Is(err, extractor.ErrItemFiltered) {
			if archErr := dl.Store.Archive(ctx, d.Key()); archErr != nil {
				dl.logFailure(ctx, d, fmt.Sprintf("archive after item-filtered: %v", archErr))
			}
			return
		}
		dl.bumpOrLog(ctx, d, err.Error())
		return
	}

	mediaPath, err := dl.Paths.MediaPath(feed.ID, d.ID, media.Ext)
	if err != nil {
		dl.bumpOrLog(ctx, d, fmt.Sprintf("resolve media path: %v", err))
		return
	}
	if err := dl.Files.SaveFromPath(mediaPath, media.Path); err != nil {
		dl.bumpOrLog(ctx, d, fmt.Sprintf("move media into place: %v", err))
		return
	}

	fields := store.MarkDownloadedFields{
		Ext:      media.Ext,
		MimeType: media.MimeType,
		Filesize: media.Filesize,
		Duration: media.Duration,
	}

	// Thumbnail and transcript are best-effort: a failure here is not
	// written to download_logs, is never retried, and never prevents the
	// row from being marked DOWNLOADED once the media itself has landed;
	// the missing artifact's fields are simply left empty.
	if thumbSrc, err := dl.Extractor.DownloadMediaThumbnail(ctx, d, tmpDir); err == nil && thumbSrc != "" {
		ext := extOf(thumbSrc)
		thumbPath, pathErr := dl.Paths.ImagePath(feed.ID, d.ID, ext)
		if pathErr == nil && dl.Files.SaveFromPath(thumbPath, thumbSrc) == nil {
			fields.ThumbnailExt = ext
		}
	}

	if feed.TranscriptLang != "" {
		if ext, lang, source, ok := dl.downloadTranscript(ctx, feed, d, tmpDir); ok {
			fields.TranscriptExt = ext
			fields.TranscriptLang = lang
			fields.TranscriptSource = source
		}
	}

	if err := dl.Store.MarkDownloaded(ctx, d.Key(), fields); err != nil {
		dl.logFailure(ctx, d, fmt.Sprintf("mark downloaded: %v", err))
	}
}

// downloadTranscript tries each source in feed.TranscriptSourcePriority in
// order (defaulting to creator-then-auto), returning the first that
// succeeds.
func (dl *Downloader) downloadTranscript(ctx context.Context, feed *domain.Feed, d *domain.Download, tmpDir string) (ext, lang string, source domain.TranscriptSource, ok bool) {
	priority := feed.TranscriptSourcePriority
	if len(priority) == 0 {
		priority = []domain.TranscriptSource{domain.TranscriptCreator, domain.TranscriptAuto}
	}
	for _, src := range priority {
		path, err := dl.Extractor.DownloadTranscript(ctx, d, tmpDir, feed.TranscriptLang, src)
		if err != nil || path == "" {
			continue
		}
		transcriptExt := extOf(path)
		target, pathErr := dl.Paths.TranscriptPath(feed.ID, d.ID, feed.TranscriptLang, transcriptExt)
		if pathErr != nil || dl.Files.SaveFromPath(target, path) != nil {
			continue
		}
		return transcriptExt, feed.TranscriptLang, src, true
	}
	return "", "", "", false
}

// bumpOrLog records errMsg through BumpRetries, which moves d to ERROR once
// MaxErrors is reached; only a failure of BumpRetries itself is written to
// download_logs.
func (dl *Downloader) bumpOrLog(ctx context.Context, d *domain.Download, errMsg string) {
	if _, err := dl.Store.BumpRetries(ctx, d.Key(), errMsg, dl.MaxErrors); err != nil {
		dl.logFailure(ctx, d, fmt.Sprintf("bump retries: %v (original: %s)", err, errMsg))
	}
}

func (dl *Downloader) logFailure(ctx context.Context, d *domain.Download, msg string) {
	_ = dl.Store.SetDownloadLogs(ctx, d.Key(), msg)
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// DownloadArtifacts performs a targeted, artifact-selective (re)download
// for d, honoring mask, and writes only the corresponding fields. Used by
// refresh_download_metadata when only a subset of artifacts needs
// refreshing.
func (dl *Downloader) DownloadArtifacts(ctx context.Context, feed *domain.Feed, d *domain.Download, mask domain.ArtifactMask) error {
	if !mask.Any() {
		return nil
	}
	tmpDir, err := dl.Paths.TmpDir(feed.ID)
	if err != nil {
		return fmt.Errorf("pipeline: allocate tmp dir for %s/%s: %w", feed.ID, d.ID, err)
	}
	defer os.RemoveAll(tmpDir)

	if mask.Media {
		media, err := dl.Extractor.DownloadMedia(ctx, d, tmpDir, dl.CookiesPath)
		if err != nil {
			return fmt.Errorf("pipeline: refresh media for %s/%s: %w", feed.ID, d.ID, err)
		}
		mediaPath, err := dl.Paths.MediaPath(feed.ID, d.ID, media.Ext)
		if err != nil {
			return fmt.Errorf("pipeline: resolve media path for %s/%s: %w", feed.ID, d.ID, err)
		}
		if err := dl.Files.SaveFromPath(mediaPath, media.Path); err != nil {
			return fmt.Errorf("pipeline: move media for %s/%s: %w", feed.ID, d.ID, err)
		}
	}

	if mask.Thumbnail {
		if thumbSrc, err := dl.Extractor.DownloadMediaThumbnail(ctx, d, tmpDir); err == nil && thumbSrc != "" {
			ext := extOf(thumbSrc)
			thumbPath, pathErr := dl.Paths.ImagePath(feed.ID, d.ID, ext)
			if pathErr == nil && dl.Files.SaveFromPath(thumbPath, thumbSrc) == nil {
				if setErr := dl.Store.SetThumbnailExtension(ctx, d.Key(), ext); setErr != nil {
					return fmt.Errorf("pipeline: record thumbnail for %s/%s: %w", feed.ID, d.ID, setErr)
				}
			}
		}
	}

	if mask.Transcript && feed.TranscriptLang != "" {
		if ext, lang, source, ok := dl.downloadTranscript(ctx, feed, d, tmpDir); ok {
			if err := dl.Store.SetTranscriptFields(ctx, d.Key(), ext, lang, source); err != nil {
				return fmt.Errorf("pipeline: record transcript for %s/%s: %w", feed.ID, d.ID, err)
			}
		}
	}
	return nil
}
