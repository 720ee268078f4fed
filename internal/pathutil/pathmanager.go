// Package pathutil resolves feed and download identifiers into filesystem
// paths under a data root, and into public URLs under a base URL. It is
// the single choke point for validating identifiers used as path
// components, grounded on the teacher's own identifier-vetting habits in
// its Google Drive query builders (internal/gdrive) and generalized into
// an explicit contract here.
package pathutil

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidIdentifier is returned when a feed ID, download ID, or
// extension is unsafe to use as a path component.
var ErrInvalidIdentifier = errors.New("pathutil: invalid identifier")

// Manager maps logical identifiers onto the on-disk data layout and onto
// the URLs the HTTP layer serves.
type Manager struct {
	dataRoot string
	baseURL  string
}

// New constructs a Manager rooted at dataRoot, building URLs under baseURL.
// baseURL may be empty; callers that never need media_url/feed_url should
// pass "" and avoid those methods.
func New(dataRoot, baseURL string) *Manager {
	return &Manager{
		dataRoot: filepath.Clean(dataRoot),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// ValidateIdentifier rejects identifiers that are empty, are "." or "..",
// contain a path separator, or contain a control character.
func ValidateIdentifier(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	if strings.ContainsRune(id, '/') || strings.ContainsRune(id, '\\') || strings.ContainsRune(id, os.PathSeparator) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidIdentifier, id)
		}
	}
	return nil
}

func (m *Manager) validateAll(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue // callers pass "" for genuinely optional components
		}
		if err := ValidateIdentifier(id); err != nil {
			return err
		}
	}
	return nil
}

// DataRoot returns the configured root directory.
func (m *Manager) DataRoot() string { return m.dataRoot }

// MediaPath returns {data_root}/media/{feed_id}/{download_id}.{ext}.
func (m *Manager) MediaPath(feedID, downloadID, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, ext); err != nil {
		return "", err
	}
	return filepath.Join(m.dataRoot, "media", feedID, downloadID+"."+ext), nil
}

// MediaURL returns {base_url}/media/{feed_id}/{download_id}.{ext}.
func (m *Manager) MediaURL(feedID, downloadID, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, ext); err != nil {
		return "", err
	}
	return m.joinURL("media", feedID, downloadID+"."+ext), nil
}

// ImagePath returns the feed artwork path when downloadID is empty, or the
// per-download thumbnail path otherwise.
func (m *Manager) ImagePath(feedID, downloadID, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, ext); err != nil {
		return "", err
	}
	if downloadID == "" {
		return filepath.Join(m.dataRoot, "images", feedID+"."+ext), nil
	}
	return filepath.Join(m.dataRoot, "images", feedID, "downloads", downloadID+"."+ext), nil
}

// ImageURL is the URL counterpart of ImagePath.
func (m *Manager) ImageURL(feedID, downloadID, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, ext); err != nil {
		return "", err
	}
	if downloadID == "" {
		return m.joinURL("images", feedID+"."+ext), nil
	}
	return m.joinURL("images", feedID, downloadID+"."+ext), nil
}

// TranscriptPath returns {data_root}/transcripts/{feed_id}/{download_id}.{lang}.{ext}.
func (m *Manager) TranscriptPath(feedID, downloadID, lang, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, lang, ext); err != nil {
		return "", err
	}
	return filepath.Join(m.dataRoot, "transcripts", feedID, fmt.Sprintf("%s.%s.%s", downloadID, lang, ext)), nil
}

// TranscriptURL is the URL counterpart of TranscriptPath.
func (m *Manager) TranscriptURL(feedID, downloadID, lang, ext string) (string, error) {
	if err := m.validateAll(feedID, downloadID, lang, ext); err != nil {
		return "", err
	}
	return m.joinURL("transcripts", feedID, fmt.Sprintf("%s.%s.%s", downloadID, lang, ext)), nil
}

// FeedXMLPath returns {data_root}/feeds/{feed_id}.xml.
func (m *Manager) FeedXMLPath(feedID string) (string, error) {
	if err := m.validateAll(feedID); err != nil {
		return "", err
	}
	return filepath.Join(m.dataRoot, "feeds", feedID+".xml"), nil
}

// FeedURL returns {base_url}/feeds/{feed_id}.xml.
func (m *Manager) FeedURL(feedID string) (string, error) {
	if err := m.validateAll(feedID); err != nil {
		return "", err
	}
	return m.joinURL("feeds", feedID+".xml"), nil
}

// DatabasePath returns {data_root}/db/{name}.
func (m *Manager) DatabasePath(name string) string {
	return filepath.Join(m.dataRoot, "db", name)
}

// TmpFile returns a unique, feed-scoped temporary file path under
// {data_root}/tmp/{feed_id}/. The directory is created if absent; the file
// itself is not created — callers write to it and rename into place.
func (m *Manager) TmpFile(feedID string) (string, error) {
	if err := m.validateAll(feedID); err != nil {
		return "", err
	}
	dir := filepath.Join(m.dataRoot, "tmp", feedID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pathutil: creating tmp dir: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()), nil
}

// TmpDir returns (creating if absent) a fresh per-feed staging directory
// under {data_root}/tmp/{feed_id}/{uuid}/, used by writers that must
// produce several files before any of them are renamed into place.
func (m *Manager) TmpDir(feedID string) (string, error) {
	if err := m.validateAll(feedID); err != nil {
		return "", err
	}
	dir := filepath.Join(m.dataRoot, "tmp", feedID, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pathutil: creating tmp dir: %w", err)
	}
	return dir, nil
}

func (m *Manager) joinURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = (&url.URL{Path: s}).EscapedPath()
	}
	return m.baseURL + "/" + strings.Join(escaped, "/")
}
