package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/storage"
)

func TestSyncSong_FullDownload(t *testing.T) {
	coord, db, fetcher, cfg := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3,co=example.com/c.jpg")
	fetcher.remoteMtime = 777_000
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")
	fetcher.resources["https://example.com/c.jpg"] = []byte("cover-bytes")

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	dir := filepath.Join(cfg.SongDir, "Falco - Rock Me Amadeus")
	for _, name := range []string{
		"Falco - Rock Me Amadeus.txt",
		"Falco - Rock Me Amadeus.mp3",
		"Falco - Rock Me Amadeus [CO].jpg",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s on disk: %v", name, err)
		}
	}

	folder, err := db.ActiveFolder(42)
	if err != nil || folder == nil {
		t.Fatalf("Expected active folder, got %v, %v", folder, err)
	}
	if folder.Path != dir {
		t.Errorf("Expected path %q, got %q", dir, folder.Path)
	}
	if folder.RemoteMtime != 777_000 {
		t.Errorf("Expected folder synced against remote mtime 777000, got %d", folder.RemoteMtime)
	}
	// the marker file carries the folder id
	if _, err := os.Stat(filepath.Join(dir, folder.MarkerName())); err != nil {
		t.Errorf("Expected marker file: %v", err)
	}

	audio, err := db.GetResource(folder.FolderID, domain.KindAudio)
	if err != nil || audio == nil {
		t.Fatalf("Expected audio record, got %v, %v", audio, err)
	}
	if audio.Status != domain.StatusSuccess {
		t.Errorf("Expected success, got %s", audio.Status)
	}
	if video, _ := db.GetResource(folder.FolderID, domain.KindVideo); video != nil {
		t.Errorf("Expected no video record, got %+v", video)
	}

	status, _ := db.GetDownloadStatus(42)
	if status != domain.DownloadStatusNone {
		t.Errorf("Expected idle status after sync, got %q", status)
	}
}

func TestSyncSong_SecondPassUnchanged(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("first SyncSong failed: %v", err)
	}
	fetched := len(fetcher.fetched)

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("second SyncSong failed: %v", err)
	}
	if len(fetcher.fetched) != fetched {
		t.Errorf("Expected no refetch, got %v", fetcher.fetched[fetched:])
	}

	folder, _ := db.ActiveFolder(42)
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio.Status != domain.StatusUnchanged {
		t.Errorf("Expected unchanged, got %s", audio.Status)
	}
	text, _ := db.GetResource(folder.FolderID, domain.KindText)
	if text.Status != domain.StatusUnchanged {
		t.Errorf("Expected unchanged text, got %s", text.Status)
	}
}

func TestSyncSong_TextChangeRewrites(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")
	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	// only line endings differ, so the text counts as unchanged
	folder, _ := db.ActiveFolder(42)
	fetcher.txt = "\uFEFF" + strings.ReplaceAll(songText("a=example.com/a.mp3"), "\n", "\r\n")
	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}
	text, _ := db.GetResource(folder.FolderID, domain.KindText)
	if text.Status != domain.StatusUnchanged {
		t.Errorf("Expected unchanged for cosmetic diff, got %s", text.Status)
	}

	// a real lyric change rewrites the file
	fetcher.txt = songText("a=example.com/a.mp3") + ": 4 1 0 more\nE\n"
	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}
	text, _ = db.GetResource(folder.FolderID, domain.KindText)
	if text.Status != domain.StatusSuccess {
		t.Errorf("Expected rewrite, got %s", text.Status)
	}
}

func TestSyncSong_AudioFallsBackToVideo(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3,v=example.com/v.mp4")
	fetcher.fail["https://example.com/a.mp3"] = domain.ErrSourceUnavailable
	fetcher.resources["https://example.com/v.mp4"] = []byte("video-bytes")

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	folder, _ := db.ActiveFolder(42)
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio == nil || audio.Status != domain.StatusFallback {
		t.Fatalf("Expected fallback audio, got %+v", audio)
	}
	if audio.Source != "https://example.com/v.mp4" {
		t.Errorf("Expected video source recorded, got %s", audio.Source)
	}
	// fallback audio must not collide with the video file
	video, _ := db.GetResource(folder.FolderID, domain.KindVideo)
	if video == nil || video.Filename == audio.Filename {
		t.Errorf("Filename collision: audio %+v video %+v", audio, video)
	}

	// on the next pass the fallback is still current, no refetch
	fetched := len(fetcher.fetched)
	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}
	audio, _ = db.GetResource(folder.FolderID, domain.KindAudio)
	if audio.Status != domain.StatusUnchanged {
		t.Errorf("Expected unchanged fallback, got %s", audio.Status)
	}
	if len(fetcher.fetched) != fetched {
		t.Errorf("Expected no refetch, got %v", fetcher.fetched[fetched:])
	}
}

func TestSyncSong_CommentSourceFallback(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3,v=example.com/v.mp4")
	fetcher.fail["https://example.com/a.mp3"] = domain.ErrSourceUnavailable
	fetcher.fail["https://example.com/v.mp4"] = domain.ErrSourceUnavailable
	fetcher.comments = []string{"https://example.com/comment.mp4"}
	fetcher.resources["https://example.com/comment.mp4"] = []byte("comment-bytes")

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	folder, _ := db.ActiveFolder(42)
	video, _ := db.GetResource(folder.FolderID, domain.KindVideo)
	if video == nil || video.Status != domain.StatusFallback {
		t.Fatalf("Expected fallback video from comment source, got %+v", video)
	}
	if video.Source != "https://example.com/comment.mp4" {
		t.Errorf("Expected comment source recorded, got %s", video.Source)
	}
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio == nil || audio.Status != domain.StatusFallback {
		t.Fatalf("Expected fallback audio from comment source, got %+v", audio)
	}
	if audio.Filename == video.Filename {
		t.Errorf("Filename collision: audio %+v video %+v", audio, video)
	}

	// the comment source stays known, so the next pass is unchanged
	fetched := len(fetcher.fetched)
	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}
	video, _ = db.GetResource(folder.FolderID, domain.KindVideo)
	if video.Status != domain.StatusUnchanged {
		t.Errorf("Expected unchanged video, got %s", video.Status)
	}
	if len(fetcher.fetched) != fetched {
		t.Errorf("Expected no refetch, got %v", fetcher.fetched[fetched:])
	}
}

func TestSyncSong_UnavailableCover(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3,co=example.com/c.jpg")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")
	fetcher.fail["https://example.com/c.jpg"] = domain.ErrSourceUnavailable

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	folder, _ := db.ActiveFolder(42)
	cover, _ := db.GetResource(folder.FolderID, domain.KindCover)
	if cover == nil || cover.Status != domain.StatusUnavailable {
		t.Fatalf("Expected unavailable cover, got %+v", cover)
	}
	if cover.Filename != "" {
		t.Errorf("Expected no file recorded, got %s", cover.Filename)
	}
	// the failed kind does not block the others
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio == nil || audio.Status != domain.StatusSuccess {
		t.Errorf("Expected audio success, got %+v", audio)
	}
}

func TestSyncSong_TransferRetries(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3")
	fetcher.fail["https://example.com/a.mp3"] = domain.ErrTransferFailed

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	// RetryCount is 2, so the flaky source is tried twice
	attempts := 0
	for _, src := range fetcher.fetched {
		if src == "https://example.com/a.mp3" {
			attempts++
		}
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}

	folder, _ := db.ActiveFolder(42)
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio == nil || audio.Status != domain.StatusFailed {
		t.Fatalf("Expected failed audio, got %+v", audio)
	}
}

func TestSyncSong_PinnedFolderUntouched(t *testing.T) {
	coord, db, fetcher, cfg := setupCoordinator(t)
	seedSyncSong(t, db)

	dir := filepath.Join(cfg.SongDir, "Falco - Rock Me Amadeus")
	if err := storage.EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	folder := &domain.SyncFolder{FolderID: 7, SongID: 42, Path: dir, Mtime: 1, Pinned: true}
	if err := db.UpsertFolder(folder); err != nil {
		t.Fatalf("UpsertFolder failed: %v", err)
	}
	if err := db.UpdateActive(42); err != nil {
		t.Fatalf("UpdateActive failed: %v", err)
	}

	fetcher.txt = songText("a=example.com/a.mp3")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")

	if err := coord.SyncSong(context.Background(), 42); err != nil {
		t.Fatalf("SyncSong failed: %v", err)
	}

	if len(fetcher.fetched) != 0 {
		t.Errorf("Expected no transfers for pinned folder, got %v", fetcher.fetched)
	}
	if _, err := os.Stat(filepath.Join(dir, "Falco - Rock Me Amadeus.mp3")); !os.IsNotExist(err) {
		t.Error("Expected no audio file in pinned folder")
	}
}

func TestSyncSong_AbortKeepsCommittedKinds(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher.txt = songText("a=example.com/a.mp3,v=example.com/v.mp4")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")
	fetcher.resources["https://example.com/v.mp4"] = []byte("video-bytes")
	fetcher.onFetch = func(source string) {
		if source == "https://example.com/v.mp4" {
			cancel()
		}
	}

	err := coord.SyncSong(ctx, 42)
	if !errors.Is(err, domain.ErrAborted) {
		t.Fatalf("Expected abort, got %v", err)
	}

	// text and audio landed before the abort and must be persisted
	folder, _ := db.ActiveFolder(42)
	if folder == nil {
		t.Fatal("Expected folder to be persisted")
	}
	audio, _ := db.GetResource(folder.FolderID, domain.KindAudio)
	if audio == nil || audio.Status != domain.StatusSuccess {
		t.Errorf("Expected committed audio, got %+v", audio)
	}
	if video, _ := db.GetResource(folder.FolderID, domain.KindVideo); video != nil {
		t.Errorf("Expected no video record, got %+v", video)
	}
	if _, err := os.Stat(filepath.Join(folder.Path, "Falco - Rock Me Amadeus.mp3")); err != nil {
		t.Errorf("Expected audio file on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(folder.Path, "Falco - Rock Me Amadeus.mp4")); !os.IsNotExist(err) {
		t.Error("Expected no video file on disk")
	}

	status, _ := db.GetDownloadStatus(42)
	if status != domain.DownloadStatusNone {
		t.Errorf("Expected status cleared after abort, got %q", status)
	}
}

func TestEnqueueAndWait(t *testing.T) {
	coord, db, fetcher, _ := setupCoordinator(t)
	seedSyncSong(t, db)

	fetcher.txt = songText("a=example.com/a.mp3")
	fetcher.resources["https://example.com/a.mp3"] = []byte("audio-bytes")

	if err := coord.Enqueue(42); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// enqueueing again while pending is a no-op
	if err := coord.Enqueue(42); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	coord.Wait()

	folder, err := db.ActiveFolder(42)
	if err != nil || folder == nil {
		t.Fatalf("Expected folder after queued sync, got %v, %v", folder, err)
	}
}

