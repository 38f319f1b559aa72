package store

import (
	"github.com/cesargomez89/karasync/internal/domain"
)

// Session state is process-scoped: download progress and the playing marker
// live in session_song and are wiped on startup rather than persisted.

func (db *DB) ResetSession() error {
	if _, err := db.Exec("DELETE FROM session_song"); err != nil {
		return &domain.StoreError{Op: "reset session", Err: err}
	}
	return nil
}

func (db *DB) SetDownloadStatus(songID domain.SongID, status domain.DownloadStatus) error {
	_, err := db.Exec(`
INSERT INTO session_song (song_id, download_status) VALUES (?, ?)
ON CONFLICT (song_id) DO UPDATE SET download_status = excluded.download_status`,
		songID, string(status))
	if err != nil {
		return &domain.StoreError{Op: "set download status", Err: err}
	}
	return nil
}

func (db *DB) GetDownloadStatus(songID domain.SongID) (domain.DownloadStatus, error) {
	var status string
	err := db.Get(&status,
		"SELECT COALESCE((SELECT download_status FROM session_song WHERE song_id = ?), '')", songID)
	if err != nil {
		return domain.DownloadStatusNone, &domain.StoreError{Op: "get download status", Err: err}
	}
	return domain.DownloadStatus(status), nil
}

// SetPlaying marks the given song as the one currently playing, clearing any
// previous marker. Pass 0 to clear.
func (db *DB) SetPlaying(songID domain.SongID) error {
	if _, err := db.Exec("UPDATE session_song SET is_playing = 0 WHERE is_playing = 1"); err != nil {
		return &domain.StoreError{Op: "clear playing", Err: err}
	}
	if songID == 0 {
		return nil
	}
	_, err := db.Exec(`
INSERT INTO session_song (song_id, is_playing) VALUES (?, 1)
ON CONFLICT (song_id) DO UPDATE SET is_playing = 1`, songID)
	if err != nil {
		return &domain.StoreError{Op: "set playing", Err: err}
	}
	return nil
}
