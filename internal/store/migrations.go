package store

import "fmt"

// migration is one versioned schema step. Migrations are append-only and must
// never drop previously-fetched enrichment columns (message bodies,
// attachments); losing that data on upgrade is a correctness bug.
type migration struct {
	version int
	sql     string
}

var migrationsByScope = map[Scope][]migration{
	ScopeApp: {
		{1, `
			CREATE TABLE IF NOT EXISTS app_settings (
				id           INTEGER PRIMARY KEY CHECK (id = 1),
				theme        TEXT NOT NULL DEFAULT 'system',
				swipe_left   TEXT NOT NULL DEFAULT 'archive',
				swipe_right  TEXT NOT NULL DEFAULT 'mark_as_read',
				last_user_id TEXT NOT NULL DEFAULT '',
				updated_at   INTEGER NOT NULL DEFAULT 0
			);
		`},
	},
	ScopeUser: {
		{1, `
			CREATE TABLE IF NOT EXISTS user_settings (
				user_id          TEXT PRIMARY KEY,
				email            TEXT NOT NULL,
				threads_per_page INTEGER NOT NULL DEFAULT 50,
				signature_id     TEXT NOT NULL DEFAULT '',
				last_mailbox_id  TEXT NOT NULL DEFAULT '',
				created_at       INTEGER NOT NULL,
				updated_at       INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS accounts (
				mailbox_id              TEXT PRIMARY KEY,
				email                   TEXT NOT NULL,
				imap_server_hostname    TEXT NOT NULL,
				imap_username           TEXT NOT NULL,
				encrypted_imap_password BLOB NOT NULL,
				created_at              INTEGER NOT NULL
			);
		`},
	},
	ScopeMailboxInfo: {
		{1, `
			CREATE TABLE IF NOT EXISTS mailboxes (
				user_id               TEXT NOT NULL,
				mailbox_id            TEXT NOT NULL,
				uuid                  TEXT NOT NULL,
				email                 TEXT NOT NULL,
				quota_used_bytes      INTEGER NOT NULL DEFAULT 0,
				quota_max_bytes       INTEGER NOT NULL DEFAULT 0,
				unread_remote         INTEGER NOT NULL DEFAULT 0,
				unread_local          INTEGER NOT NULL DEFAULT 0,
				can_manage_filters    INTEGER NOT NULL DEFAULT 0,
				can_manage_signatures INTEGER NOT NULL DEFAULT 0,
				signature             TEXT NOT NULL DEFAULT '',
				feature_flags         TEXT NOT NULL DEFAULT '[]',
				updated_at            INTEGER NOT NULL,
				PRIMARY KEY (user_id, mailbox_id)
			);
		`},
	},
	ScopeMailboxContent: {
		{1, `
			CREATE TABLE IF NOT EXISTS folders (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL,
				path         TEXT NOT NULL,
				role         TEXT NOT NULL DEFAULT '',
				is_favorite  INTEGER NOT NULL DEFAULT 0,
				is_collapsed INTEGER NOT NULL DEFAULT 0,
				updated_at   INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS folder_sync (
				folder_id    TEXT PRIMARY KEY,
				cursor       TEXT NOT NULL DEFAULT '',
				synced_at    INTEGER,
				thread_count INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS threads (
				uid             TEXT PRIMARY KEY,
				folder_id       TEXT NOT NULL,
				subject         TEXT NOT NULL DEFAULT '',
				unseen_count    INTEGER NOT NULL DEFAULT 0,
				is_favorite     INTEGER NOT NULL DEFAULT 0,
				last_message_at INTEGER
			);
			CREATE INDEX IF NOT EXISTS idx_threads_folder ON threads (folder_id);

			CREATE TABLE IF NOT EXISTS messages (
				uid              TEXT PRIMARY KEY,
				folder_id        TEXT NOT NULL,
				thread_uid       TEXT,
				imap_uid         INTEGER NOT NULL DEFAULT 0,
				subject          TEXT NOT NULL DEFAULT '',
				from_address     TEXT NOT NULL DEFAULT '',
				to_addresses     TEXT NOT NULL DEFAULT '[]',
				cc_addresses     TEXT NOT NULL DEFAULT '[]',
				sent_at          INTEGER,
				seen             INTEGER NOT NULL DEFAULT 0,
				favorite         INTEGER NOT NULL DEFAULT 0,
				spam             INTEGER NOT NULL DEFAULT 0,
				body_text        TEXT NOT NULL DEFAULT '',
				unsafe_body_html TEXT NOT NULL DEFAULT '',
				fully_downloaded INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages (thread_uid);
			CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages (folder_id);

			CREATE TABLE IF NOT EXISTS attachments (
				id          TEXT PRIMARY KEY,
				message_uid TEXT NOT NULL,
				filename    TEXT NOT NULL DEFAULT '',
				mime_type   TEXT NOT NULL DEFAULT '',
				size_bytes  INTEGER NOT NULL DEFAULT 0,
				is_inline   INTEGER NOT NULL DEFAULT 0,
				content_id  TEXT NOT NULL DEFAULT '',
				downloaded  INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments (message_uid);
		`},
		{2, `
			CREATE INDEX IF NOT EXISTS idx_messages_seen ON messages (thread_uid, seen);
		`},
	},
}

// migrate applies any outstanding migrations for the store's scope.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrationsByScope[s.scope] {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration v%d: %w", m.version, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s','now'))",
			m.version,
		); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
	}

	return nil
}
