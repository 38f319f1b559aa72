package store

import (
	"fmt"
	"time"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/jmoiron/sqlx"
)

// schemaVersion is the version this build reads and writes. Databases
// written by a newer build are refused rather than downgraded.
const schemaVersion = 4

const baseSchema = `
CREATE TABLE IF NOT EXISTS meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	ctime INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS song (
	song_id INTEGER PRIMARY KEY,
	artist TEXT NOT NULL,
	title TEXT NOT NULL,
	language TEXT NOT NULL,
	edition TEXT NOT NULL,
	golden_notes BOOLEAN NOT NULL,
	rating REAL NOT NULL,
	views INTEGER NOT NULL,
	sample_url TEXT NOT NULL DEFAULT '',
	year INTEGER,
	genre TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	remote_mtime INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS song_language (
	song_id INTEGER NOT NULL REFERENCES song (song_id) ON DELETE CASCADE,
	language TEXT NOT NULL,
	PRIMARY KEY (song_id, language)
);

CREATE TABLE IF NOT EXISTS song_genre (
	song_id INTEGER NOT NULL REFERENCES song (song_id) ON DELETE CASCADE,
	genre TEXT NOT NULL,
	PRIMARY KEY (song_id, genre)
);

CREATE TABLE IF NOT EXISTS song_creator (
	song_id INTEGER NOT NULL REFERENCES song (song_id) ON DELETE CASCADE,
	creator TEXT NOT NULL,
	PRIMARY KEY (song_id, creator)
);

CREATE TABLE IF NOT EXISTS sync_folder (
	folder_id INTEGER PRIMARY KEY,
	song_id INTEGER NOT NULL,
	path TEXT NOT NULL UNIQUE,
	mtime INTEGER NOT NULL,
	meta_tags TEXT NOT NULL DEFAULT '',
	pinned BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS active_sync_folder (
	song_id INTEGER NOT NULL,
	folder_id INTEGER NOT NULL REFERENCES sync_folder (folder_id) ON DELETE CASCADE,
	rank INTEGER NOT NULL,
	PRIMARY KEY (song_id, rank)
);

CREATE TABLE IF NOT EXISTS resource_file (
	folder_id INTEGER NOT NULL REFERENCES sync_folder (folder_id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	fname TEXT NOT NULL,
	mtime INTEGER NOT NULL,
	resource TEXT NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (folder_id, kind)
);

CREATE TABLE IF NOT EXISTS custom_data (
	folder_id INTEGER NOT NULL REFERENCES sync_folder (folder_id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (folder_id, key)
);

CREATE TABLE IF NOT EXISTS saved_search (
	name TEXT PRIMARY KEY,
	search TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT 0,
	subscribed BOOLEAN NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_song USING fts5 (
	artist, title, language, edition, year, genre, creator, padded_id,
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS session_song (
	song_id INTEGER PRIMARY KEY,
	is_playing BOOLEAN NOT NULL DEFAULT 0,
	download_status TEXT NOT NULL DEFAULT ''
);
`

func (db *DB) migrate() error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		var version int
		err := tx.Get(&version, "SELECT version FROM meta WHERE id = 1")
		if err != nil {
			// Missing meta table means a fresh database.
			version = 0
		}
		if version > schemaVersion {
			return &domain.MigrationError{
				Version: version,
				Err:     fmt.Errorf("database version %d is newer than supported version %d", version, schemaVersion),
			}
		}
		for v := version + 1; v <= schemaVersion; v++ {
			if err := applyMigration(tx, v); err != nil {
				return &domain.MigrationError{Version: v, Err: err}
			}
		}
		if version == 0 {
			_, err = tx.Exec(
				"INSERT INTO meta (id, version, ctime) VALUES (1, ?, ?)",
				schemaVersion, time.Now().UnixMicro(),
			)
		} else if version < schemaVersion {
			_, err = tx.Exec("UPDATE meta SET version = ? WHERE id = 1", schemaVersion)
		}
		return err
	})
}

func applyMigration(tx *sqlx.Tx, version int) error {
	switch version {
	case 1:
		_, err := tx.Exec(baseSchema)
		return err
	case 2:
		// Earlier builds could leave folder-scoped rows behind after a
		// folder was removed. Sweep orphans before relying on cascades.
		for _, stmt := range []string{
			"DELETE FROM resource_file WHERE folder_id NOT IN (SELECT folder_id FROM sync_folder)",
			"DELETE FROM custom_data WHERE folder_id NOT IN (SELECT folder_id FROM sync_folder)",
			"DELETE FROM active_sync_folder WHERE folder_id NOT IN (SELECT folder_id FROM sync_folder)",
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	case 3:
		if _, err := tx.Exec("ALTER TABLE song ADD COLUMN tags TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		if _, err := tx.Exec("DROP TABLE IF EXISTS fts_song"); err != nil {
			return err
		}
		_, err := tx.Exec(`
CREATE VIRTUAL TABLE fts_song USING fts5 (
	artist, title, language, edition, year, genre, creator, tags, padded_id,
	tokenize='unicode61 remove_diacritics 2'
);`)
		if err != nil {
			return err
		}
		return rebuildFTS(tx)
	case 4:
		// sync_folder gains the song cascade and its own remote_mtime.
		// SQLite cannot add a foreign key in place, so the table is
		// rebuilt. The folder-scoped children are copied aside first:
		// the implicit delete of the old rows would cascade into them.
		for _, stmt := range []string{
			"DELETE FROM sync_folder WHERE song_id NOT IN (SELECT song_id FROM song)",
			"CREATE TABLE resource_file_mig AS SELECT * FROM resource_file",
			"CREATE TABLE custom_data_mig AS SELECT * FROM custom_data",
			"CREATE TABLE active_sync_folder_mig AS SELECT * FROM active_sync_folder",
			`CREATE TABLE sync_folder_new (
	folder_id INTEGER PRIMARY KEY,
	song_id INTEGER NOT NULL REFERENCES song (song_id) ON DELETE CASCADE,
	path TEXT NOT NULL UNIQUE,
	mtime INTEGER NOT NULL,
	meta_tags TEXT NOT NULL DEFAULT '',
	pinned BOOLEAN NOT NULL DEFAULT 0,
	remote_mtime INTEGER NOT NULL DEFAULT 0
)`,
			`INSERT INTO sync_folder_new (folder_id, song_id, path, mtime, meta_tags, pinned, remote_mtime)
SELECT f.folder_id, f.song_id, f.path, f.mtime, f.meta_tags, f.pinned, s.remote_mtime
FROM sync_folder f JOIN song s ON f.song_id = s.song_id`,
			"DROP TABLE sync_folder",
			"ALTER TABLE sync_folder_new RENAME TO sync_folder",
			"INSERT INTO resource_file SELECT * FROM resource_file_mig WHERE folder_id IN (SELECT folder_id FROM sync_folder)",
			"INSERT INTO custom_data SELECT * FROM custom_data_mig WHERE folder_id IN (SELECT folder_id FROM sync_folder)",
			"INSERT INTO active_sync_folder SELECT * FROM active_sync_folder_mig WHERE folder_id IN (SELECT folder_id FROM sync_folder)",
			"DROP TABLE resource_file_mig",
			"DROP TABLE custom_data_mig",
			"DROP TABLE active_sync_folder_mig",
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown migration version %d", version)
	}
}

// rebuildFTS recomputes the full-text index from scratch. Normal writes
// keep it current row by row; this is only needed after schema changes.
func rebuildFTS(tx *sqlx.Tx) error {
	if _, err := tx.Exec("DELETE FROM fts_song"); err != nil {
		return err
	}
	_, err := tx.Exec(`
INSERT INTO fts_song (rowid, artist, title, language, edition, year, genre, creator, tags, padded_id)
SELECT
	s.song_id, s.artist, s.title, s.language, s.edition,
	COALESCE(CAST(s.year AS TEXT), ''),
	(SELECT COALESCE(group_concat(genre, ', '), '') FROM song_genre WHERE song_id = s.song_id),
	(SELECT COALESCE(group_concat(creator, ', '), '') FROM song_creator WHERE song_id = s.song_id),
	s.tags,
	printf('%05d', s.song_id)
FROM song s;`)
	return err
}
