package pipeline

import (
	"context"
	"fmt"

	"vodcast/internal/domain"
	"vodcast/internal/filestore"
	"vodcast/internal/pathutil"
	"vodcast/internal/store"
)

// Pruner enforces a feed's keep_last and since retention policy: deletes
// out-of-policy artifacts and archives their rows.
type Pruner struct {
	Store store.Store
	Files *filestore.Store
	Paths *pathutil.Manager
}

// NewPruner constructs a Pruner.
func NewPruner(s store.Store, f *filestore.Store, p *pathutil.Manager) *Pruner {
	return &Pruner{Store: s, Files: f, Paths: p}
}

// Run prunes feed's active-set rows that fall outside keep_last or since,
// unions the two candidate sets, deletes media/thumbnail/transcript for
// any DOWNLOADED candidate, archives every candidate, then refreshes
// total_downloads. Re-running with unchanged inputs makes no further
// changes, since archived rows never reappear as candidates.
func (p *Pruner) Run(ctx context.Context, feed *domain.Feed) error {
	candidates := map[domain.DownloadKey]*domain.Download{}

	if feed.KeepLast != nil {
		byKeepLast, err := p.Store.ListCandidatesByKeepLast(ctx, feed.ID, *feed.KeepLast)
		if err != nil {
			return fmt.Errorf("pipeline: list keep_last candidates for %s: %w", feed.ID, err)
		}
		for _, d := range byKeepLast {
			candidates[d.Key()] = d
		}
	}

	if !feed.Since.IsZero() {
		bySince, err := p.Store.ListCandidatesByBeforeDate(ctx, feed.ID, feed.Since)
		if err != nil {
			return fmt.Errorf("pipeline: list since candidates for %s: %w", feed.ID, err)
		}
		for _, d := range bySince {
			candidates[d.Key()] = d
		}
	}

	for _, d := range candidates {
		if d.Status == domain.StatusDownloaded {
			p.deleteArtifacts(feed, d)
		}
		if err := p.Store.Archive(ctx, d.Key()); err != nil {
			return fmt.Errorf("pipeline: archive %s/%s: %w", feed.ID, d.ID, err)
		}
	}

	if err := p.Store.RefreshTotalDownloads(ctx, feed.ID); err != nil {
		return fmt.Errorf("pipeline: refresh total_downloads for %s: %w", feed.ID, err)
	}
	return nil
}

// deleteArtifacts removes d's on-disk files. A missing file is not an
// error and nothing is recorded for it, so one missing artifact never
// blocks deletion of the others or the row's archival. A failure to delete
// the media file is written to download_logs; thumbnail and transcript
// delete failures are ignored.
func (p *Pruner) deleteArtifacts(feed *domain.Feed, d *domain.Download) {
	if mediaPath, err := p.Paths.MediaPath(feed.ID, d.ID, d.Ext); err == nil {
		if _, delErr := p.Files.Delete(mediaPath); delErr != nil {
			_ = p.Store.SetDownloadLogs(context.Background(), d.Key(), fmt.Sprintf("prune: delete media: %v", delErr))
		}
	}
	if d.HasThumbnail() {
		if thumbPath, err := p.Paths.ImagePath(feed.ID, d.ID, d.ThumbnailExt); err == nil {
			_, _ = p.Files.Delete(thumbPath)
		}
	}
	if d.HasTranscript() {
		if transcriptPath, err := p.Paths.TranscriptPath(feed.ID, d.ID, d.TranscriptLang, d.TranscriptExt); err == nil {
			_, _ = p.Files.Delete(transcriptPath)
		}
	}
}
