package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/jmoiron/sqlx"
)

// UpsertSong writes a remote song record, its decomposed language, genre and
// creator sets, and the matching full-text row, all in one transaction.
func (db *DB) UpsertSong(song *domain.RemoteSong) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		return upsertSongTx(tx, song)
	})
}

// UpsertSongs is the batch variant used by catalog refreshes.
func (db *DB) UpsertSongs(songs []*domain.RemoteSong) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		for _, song := range songs {
			if err := upsertSongTx(tx, song); err != nil {
				return fmt.Errorf("song %d: %w", song.SongID, err)
			}
		}
		return nil
	})
}

func upsertSongTx(tx *sqlx.Tx, song *domain.RemoteSong) error {
	_, err := tx.NamedExec(`
INSERT INTO song (song_id, artist, title, language, edition, golden_notes, rating, views, sample_url, year, genre, creator, tags, remote_mtime)
VALUES (:song_id, :artist, :title, :language, :edition, :golden_notes, :rating, :views, :sample_url, :year, :genre, :creator, :tags, :remote_mtime)
ON CONFLICT (song_id) DO UPDATE SET
	artist = excluded.artist,
	title = excluded.title,
	language = excluded.language,
	edition = excluded.edition,
	golden_notes = excluded.golden_notes,
	rating = excluded.rating,
	views = excluded.views,
	sample_url = excluded.sample_url,
	year = excluded.year,
	genre = excluded.genre,
	creator = excluded.creator,
	tags = excluded.tags,
	remote_mtime = excluded.remote_mtime`, song)
	if err != nil {
		return &domain.StoreError{Op: "upsert song", Err: err}
	}
	if err := replaceSet(tx, "song_language", "language", song.SongID, song.Languages()); err != nil {
		return err
	}
	if err := replaceSet(tx, "song_genre", "genre", song.SongID, song.Genres()); err != nil {
		return err
	}
	if err := replaceSet(tx, "song_creator", "creator", song.SongID, song.Creators()); err != nil {
		return err
	}
	return updateFTSTx(tx, song)
}

func replaceSet(tx *sqlx.Tx, table, column string, id domain.SongID, values []string) error {
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE song_id = ?", table), id); err != nil {
		return &domain.StoreError{Op: "clear " + table, Err: err}
	}
	for _, v := range values {
		_, err := tx.Exec(
			fmt.Sprintf("INSERT OR IGNORE INTO %s (song_id, %s) VALUES (?, ?)", table, column),
			id, v,
		)
		if err != nil {
			return &domain.StoreError{Op: "insert " + table, Err: err}
		}
	}
	return nil
}

func updateFTSTx(tx *sqlx.Tx, song *domain.RemoteSong) error {
	if _, err := tx.Exec("DELETE FROM fts_song WHERE rowid = ?", song.SongID); err != nil {
		return &domain.StoreError{Op: "clear fts row", Err: err}
	}
	year := ""
	if song.Year != nil {
		year = fmt.Sprintf("%d", *song.Year)
	}
	_, err := tx.Exec(`
INSERT INTO fts_song (rowid, artist, title, language, edition, year, genre, creator, tags, padded_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.SongID, song.Artist, song.Title, song.Language, song.Edition,
		year, strings.Join(song.Genres(), ", "), strings.Join(song.Creators(), ", "),
		song.Tags, song.SongID.Padded(),
	)
	if err != nil {
		return &domain.StoreError{Op: "insert fts row", Err: err}
	}
	return nil
}

// GetSong returns the song or nil if it is not in the catalog.
func (db *DB) GetSong(id domain.SongID) (*domain.RemoteSong, error) {
	var song domain.RemoteSong
	err := db.Get(&song, "SELECT * FROM song WHERE song_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get song", Err: err}
	}
	return &song, nil
}

// DeleteSong removes the song and its full-text row. The foreign keys
// cascade through the lookup sets, the song's folders and their resource and
// custom-data rows.
func (db *DB) DeleteSong(id domain.SongID) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM song WHERE song_id = ?", id); err != nil {
			return &domain.StoreError{Op: "delete song", Err: err}
		}
		if _, err := tx.Exec("DELETE FROM fts_song WHERE rowid = ?", id); err != nil {
			return &domain.StoreError{Op: "delete fts row", Err: err}
		}
		return nil
	})
}

func (db *DB) AllSongIDs() ([]domain.SongID, error) {
	var ids []domain.SongID
	if err := db.Select(&ids, "SELECT song_id FROM song ORDER BY song_id"); err != nil {
		return nil, &domain.StoreError{Op: "list song ids", Err: err}
	}
	return ids, nil
}

// MaxSongID returns the highest known id, or 0 for an empty catalog.
// Incremental catalog refreshes resume from here.
func (db *DB) MaxSongID() (domain.SongID, error) {
	var id domain.SongID
	err := db.Get(&id, "SELECT COALESCE(MAX(song_id), 0) FROM song")
	if err != nil {
		return 0, &domain.StoreError{Op: "max song id", Err: err}
	}
	return id, nil
}

// SetRemoteMtime records when the remote last changed the song, as observed
// during a sync.
func (db *DB) SetRemoteMtime(id domain.SongID, mtime int64) error {
	if _, err := db.Exec("UPDATE song SET remote_mtime = ? WHERE song_id = ?", mtime, id); err != nil {
		return &domain.StoreError{Op: "set remote mtime", Err: err}
	}
	return nil
}

func (db *DB) SongCount() (int, error) {
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM song"); err != nil {
		return 0, &domain.StoreError{Op: "count songs", Err: err}
	}
	return n, nil
}

// FindSimilar matches songs whose artist and title both start with the
// given phrases. Used to spot likely duplicates of an existing folder.
func (db *DB) FindSimilar(artist, title string) ([]domain.SongID, error) {
	query := fmt.Sprintf(`artist: ^"%s" AND title: ^"%s"`, ftsEscape(artist), ftsEscape(title))
	var ids []domain.SongID
	err := db.Select(&ids, "SELECT rowid FROM fts_song WHERE fts_song MATCH ? ORDER BY rowid", query)
	if err != nil {
		return nil, &domain.StoreError{Op: "find similar", Err: err}
	}
	return ids, nil
}

// ftsEscape makes a value safe for use inside an fts5 quoted phrase.
func ftsEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

type ValueCount struct {
	Value string `db:"value" json:"value"`
	Count int    `db:"count" json:"count"`
}

// Facet helpers back the filter sidebars: distinct values with usage counts.

func (db *DB) LanguagesWithCount() ([]ValueCount, error) {
	return db.facet("SELECT language AS value, COUNT(*) AS count FROM song_language GROUP BY language ORDER BY language")
}

func (db *DB) GenresWithCount() ([]ValueCount, error) {
	return db.facet("SELECT genre AS value, COUNT(*) AS count FROM song_genre GROUP BY genre ORDER BY genre")
}

func (db *DB) CreatorsWithCount() ([]ValueCount, error) {
	return db.facet("SELECT creator AS value, COUNT(*) AS count FROM song_creator GROUP BY creator ORDER BY creator")
}

func (db *DB) EditionsWithCount() ([]ValueCount, error) {
	return db.facet("SELECT edition AS value, COUNT(*) AS count FROM song WHERE edition != '' GROUP BY edition ORDER BY edition")
}

func (db *DB) YearsWithCount() ([]ValueCount, error) {
	return db.facet("SELECT CAST(year AS TEXT) AS value, COUNT(*) AS count FROM song WHERE year IS NOT NULL GROUP BY year ORDER BY year")
}

func (db *DB) facet(query string) ([]ValueCount, error) {
	var out []ValueCount
	if err := db.Select(&out, query); err != nil {
		return nil, &domain.StoreError{Op: "facet query", Err: err}
	}
	return out, nil
}
