package store

import (
	"testing"

	"github.com/cesargomez89/karasync/internal/domain"
)

func TestDB_DownloadStatus(t *testing.T) {
	db := setupTestDB(t)

	status, err := db.GetDownloadStatus(1)
	if err != nil {
		t.Fatalf("GetDownloadStatus failed: %v", err)
	}
	if status != domain.DownloadStatusNone {
		t.Errorf("Expected empty status, got %q", status)
	}
	if !status.CanBeDownloaded() {
		t.Error("Expected fresh song to be downloadable")
	}

	if err := db.SetDownloadStatus(1, domain.DownloadStatusDownloading); err != nil {
		t.Fatalf("SetDownloadStatus failed: %v", err)
	}
	status, _ = db.GetDownloadStatus(1)
	if status.CanBeDownloaded() {
		t.Error("Expected running download to block re-queueing")
	}
	if !status.CanBeAborted() {
		t.Error("Expected running download to be abortable")
	}

	// session state does not survive a restart
	if err := db.ResetSession(); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}
	status, _ = db.GetDownloadStatus(1)
	if status != domain.DownloadStatusNone {
		t.Errorf("Expected reset status, got %q", status)
	}
}

func TestDB_SetPlaying(t *testing.T) {
	db := setupTestDB(t)

	if err := db.SetPlaying(1); err != nil {
		t.Fatalf("SetPlaying failed: %v", err)
	}
	if err := db.SetPlaying(2); err != nil {
		t.Fatalf("SetPlaying failed: %v", err)
	}

	var playing []int64
	if err := db.Select(&playing, "SELECT song_id FROM session_song WHERE is_playing = 1"); err != nil {
		t.Fatal(err)
	}
	if len(playing) != 1 || playing[0] != 2 {
		t.Errorf("Expected only song 2 playing, got %v", playing)
	}

	if err := db.SetPlaying(0); err != nil {
		t.Fatalf("SetPlaying(0) failed: %v", err)
	}
	playing = nil
	if err := db.Select(&playing, "SELECT song_id FROM session_song WHERE is_playing = 1"); err != nil {
		t.Fatal(err)
	}
	if len(playing) != 0 {
		t.Errorf("Expected no song playing, got %v", playing)
	}
}
