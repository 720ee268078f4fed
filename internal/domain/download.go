package domain

import "time"

// DownloadStatus is the state of a single download within the pipeline's
// status machine.
type DownloadStatus string

const (
	StatusUpcoming   DownloadStatus = "UPCOMING"
	StatusQueued     DownloadStatus = "QUEUED"
	StatusDownloaded DownloadStatus = "DOWNLOADED"
	StatusError      DownloadStatus = "ERROR"
	StatusSkipped    DownloadStatus = "SKIPPED"
	StatusArchived   DownloadStatus = "ARCHIVED"
)

// ActiveStatuses is the set of statuses the pruner considers for retention
// (downloads still "live" in the feed, as opposed to terminal).
var ActiveStatuses = []DownloadStatus{StatusDownloaded, StatusError, StatusUpcoming}

// IsTerminal reports whether no further automatic transition applies.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusArchived
}

// DownloadKey is the composite primary key of a download row.
type DownloadKey struct {
	FeedID string
	ID     string
}

// Download is one item belonging to a feed; the unit of state in the pipeline.
type Download struct {
	FeedID string
	ID     string

	SourceURL string
	Title     string
	Published time.Time

	Ext      string
	MimeType string
	Filesize int64
	Duration int

	Status        DownloadStatus
	Retries       int
	LastError     string
	DownloadLogs  string

	DiscoveredAt time.Time
	UpdatedAt    time.Time
	DownloadedAt time.Time

	RemoteThumbnailURL string
	ThumbnailExt       string

	Description string
	QualityInfo string

	PlaylistIndex int // 0 means unset

	TranscriptExt    string
	TranscriptLang   string
	TranscriptSource TranscriptSource
}

// Key returns the composite identity of this row.
func (d *Download) Key() DownloadKey {
	return DownloadKey{FeedID: d.FeedID, ID: d.ID}
}

// HasThumbnail reports whether a thumbnail file is expected to exist.
func (d *Download) HasThumbnail() bool {
	return d.ThumbnailExt != ""
}

// HasTranscript reports whether a transcript file is expected to exist.
func (d *Download) HasTranscript() bool {
	return d.TranscriptExt != ""
}

// ArtifactMask selects which artifacts an artifact-selective download
// fetches; every artifact whose flag is set is fetched again, whether or
// not its file already exists.
type ArtifactMask struct {
	Media      bool
	Thumbnail  bool
	Transcript bool
}

// Any reports whether the mask requests at least one artifact.
func (m ArtifactMask) Any() bool {
	return m.Media || m.Thumbnail || m.Transcript
}

// FullArtifactMask requests every artifact kind.
func FullArtifactMask() ArtifactMask {
	return ArtifactMask{Media: true, Thumbnail: true, Transcript: true}
}
