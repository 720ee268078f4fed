// Package config loads the validated settings object and the feed-list
// mapping that drives the rest of the process: environment variables
// supply the ambient settings, a YAML file enumerates the feeds a
// StateReconciler pass will sync against the store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vodcast/internal/domain"
)

// Settings is the validated, process-wide configuration object. Every
// field has a zero-value-safe default except DataDir, which is required.
type Settings struct {
	DataDir     string
	BaseURL     string
	ConfigFile  string
	CookiesPath string

	ServerHost      string
	ServerPort      int
	AdminServerPort int
	TrustedProxies  []string

	LogFormat            string
	LogLevel             string
	LogIncludeStacktrace bool

	YTChannel       string
	YTDlpUpdateFreq time.Duration

	PotProviderURL string
}

// Load reads Settings from the environment and validates DataDir is set
// and usable. It does not read ConfigFile; call LoadFeeds separately
// once Settings.ConfigFile is known.
func Load() (*Settings, error) {
	s := &Settings{
		DataDir:     os.Getenv("VODCAST_DATA_DIR"),
		BaseURL:     os.Getenv("VODCAST_BASE_URL"),
		ConfigFile:  os.Getenv("VODCAST_CONFIG_FILE"),
		CookiesPath: os.Getenv("VODCAST_COOKIES_PATH"),

		ServerHost:      getEnvWithDefault("VODCAST_SERVER_HOST", "0.0.0.0"),
		ServerPort:      getEnvInt("VODCAST_SERVER_PORT", 8080),
		AdminServerPort: getEnvInt("VODCAST_ADMIN_SERVER_PORT", 8081),
		TrustedProxies:  getEnvList("VODCAST_TRUSTED_PROXIES"),

		LogFormat:            getEnvWithDefault("VODCAST_LOG_FORMAT", "json"),
		LogLevel:             getEnvWithDefault("VODCAST_LOG_LEVEL", "info"),
		LogIncludeStacktrace: getEnvWithDefault("VODCAST_LOG_INCLUDE_STACKTRACE", "false") == "true",

		YTChannel:       getEnvWithDefault("VODCAST_YT_CHANNEL", "stable"),
		YTDlpUpdateFreq: getEnvDuration("VODCAST_YT_DLP_UPDATE_FREQ", 24*time.Hour),

		PotProviderURL: os.Getenv("VODCAST_POT_PROVIDER_URL"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the invariants Load can't enforce by construction.
// A non-nil error here is an unrecoverable startup condition.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if info, err := os.Stat(s.DataDir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("config: stat data_dir %s: %w", s.DataDir, err)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("config: data_dir %s is not a directory", s.DataDir)
	}
	if s.ServerPort <= 0 || s.ServerPort > 65535 {
		return fmt.Errorf("config: server_port %d out of range", s.ServerPort)
	}
	if s.AdminServerPort <= 0 || s.AdminServerPort > 65535 {
		return fmt.Errorf("config: admin_server_port %d out of range", s.AdminServerPort)
	}
	switch s.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: log_format %q must be json or text", s.LogFormat)
	}
	return nil
}

// feedFile is the YAML shape of ConfigFile: a top-level list of feeds,
// each mapping directly onto the subset of domain.Feed an operator
// configures (the rest is sync/runtime state the store owns).
type feedFile struct {
	Feeds []feedEntry `yaml:"feeds"`
}

type feedEntry struct {
	ID         string `yaml:"id"`
	SourceType string `yaml:"source_type"`
	SourceURL  string `yaml:"source_url"`
	Schedule   string `yaml:"schedule"`

	Since    string `yaml:"since"`
	KeepLast *int   `yaml:"keep_last"`

	Title          string `yaml:"title"`
	Subtitle       string `yaml:"subtitle"`
	Description    string `yaml:"description"`
	Language       string `yaml:"language"`
	Author         string `yaml:"author"`
	AuthorEmail    string `yaml:"author_email"`
	RemoteImageURL string `yaml:"remote_image_url"`
	Category       string `yaml:"category"`
	PodcastType    string `yaml:"podcast_type"`
	Explicit       string `yaml:"explicit"`

	TranscriptLang           string   `yaml:"transcript_lang"`
	TranscriptSourcePriority []string `yaml:"transcript_source_priority"`

	NotifyURL string `yaml:"notify_url"`
}

// LoadFeeds parses path into the feed definitions an operator manages
// by hand. Every entry is returned with IsEnabled true; the
// StateReconciler decides what to do about feeds absent from this list.
func LoadFeeds(path string) ([]*domain.Feed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read feed file %s: %w", path, err)
	}
	var parsed feedFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse feed file %s: %w", path, err)
	}

	feeds := make([]*domain.Feed, 0, len(parsed.Feeds))
	for _, e := range parsed.Feeds {
		f, err := e.toDomain()
		if err != nil {
			return nil, fmt.Errorf("config: feed %q: %w", e.ID, err)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (e feedEntry) toDomain() (*domain.Feed, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if strings.ContainsAny(e.ID, "/\\") || e.ID == "." || e.ID == ".." {
		return nil, fmt.Errorf("id %q is not safe as a path component", e.ID)
	}

	f := &domain.Feed{
		ID:             e.ID,
		IsEnabled:      true,
		SourceType:     domain.SourceType(e.SourceType),
		SourceURL:      e.SourceURL,
		Schedule:       e.Schedule,
		KeepLast:       e.KeepLast,
		Title:          e.Title,
		Subtitle:       e.Subtitle,
		Description:    e.Description,
		Language:       e.Language,
		Author:         e.Author,
		AuthorEmail:    e.AuthorEmail,
		RemoteImageURL: e.RemoteImageURL,
		Category:       e.Category,
		PodcastType:    domain.PodcastType(e.PodcastType),
		Explicit:       domain.Explicit(e.Explicit),
		TranscriptLang: e.TranscriptLang,
		NotifyURL:      e.NotifyURL,
	}
	if f.SourceType == "" {
		f.SourceType = domain.SourceUnknown
	}
	if f.Schedule == "" {
		f.Schedule = domain.ManualSchedule
	}
	if e.Since != "" {
		since, err := time.Parse(time.RFC3339, e.Since)
		if err != nil {
			return nil, fmt.Errorf("since %q: %w", e.Since, err)
		}
		f.Since = since
	}
	for _, p := range e.TranscriptSourcePriority {
		f.TranscriptSourcePriority = append(f.TranscriptSourcePriority, domain.TranscriptSource(p))
	}
	return f, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
