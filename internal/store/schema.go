package store

// schema is applied idempotently at startup. Migration beyond
// CREATE-IF-NOT-EXISTS is out of scope; evolving a live schema is an
// external collaborator's job.
const schema = `
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS feeds (
	id                         TEXT PRIMARY KEY,
	is_enabled                 INTEGER NOT NULL DEFAULT 1,
	source_type                TEXT NOT NULL,
	source_url                  TEXT NOT NULL DEFAULT '',
	resolved_url                TEXT NOT NULL DEFAULT '',
	last_successful_sync        TEXT,
	last_failed_sync            TEXT,
	consecutive_failures        INTEGER NOT NULL DEFAULT 0,
	since                       TEXT,
	keep_last                   INTEGER,
	schedule                    TEXT NOT NULL DEFAULT '',
	title                       TEXT NOT NULL DEFAULT '',
	subtitle                    TEXT NOT NULL DEFAULT '',
	description                 TEXT NOT NULL DEFAULT '',
	language                    TEXT NOT NULL DEFAULT '',
	author                      TEXT NOT NULL DEFAULT '',
	author_email                TEXT NOT NULL DEFAULT '',
	remote_image_url            TEXT NOT NULL DEFAULT '',
	image_ext                   TEXT NOT NULL DEFAULT '',
	category                    TEXT NOT NULL DEFAULT '',
	podcast_type                TEXT NOT NULL DEFAULT '',
	explicit                    TEXT NOT NULL DEFAULT '',
	transcript_lang             TEXT NOT NULL DEFAULT '',
	transcript_source_priority  TEXT NOT NULL DEFAULT '',
	notify_url                  TEXT NOT NULL DEFAULT '',
	created_at                  TEXT NOT NULL,
	updated_at                  TEXT NOT NULL,
	last_rss_generation         TEXT,
	total_downloads              INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS downloads (
	feed_id              TEXT NOT NULL REFERENCES feeds(id),
	id                   TEXT NOT NULL,
	source_url           TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL DEFAULT '',
	published            TEXT NOT NULL,
	ext                  TEXT NOT NULL DEFAULT '',
	mime_type            TEXT NOT NULL DEFAULT '',
	filesize             INTEGER NOT NULL DEFAULT 0,
	duration             INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	retries              INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT,
	download_logs        TEXT,
	discovered_at        TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	downloaded_at        TEXT,
	remote_thumbnail_url TEXT NOT NULL DEFAULT '',
	thumbnail_ext        TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	quality_info         TEXT NOT NULL DEFAULT '',
	playlist_index       INTEGER NOT NULL DEFAULT 0,
	transcript_ext       TEXT NOT NULL DEFAULT '',
	transcript_lang      TEXT NOT NULL DEFAULT '',
	transcript_source    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (feed_id, id)
);

CREATE INDEX IF NOT EXISTS idx_downloads_feed_status ON downloads(feed_id, status);
CREATE INDEX IF NOT EXISTS idx_downloads_feed_published ON downloads(feed_id, published);
`
