package syncer

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/cesargomez89/karasync/internal/config"
	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/logger"
	"github.com/cesargomez89/karasync/internal/store"
)

type mockFetcher struct {
	txt         string
	remoteMtime int64
	comments    []string
	resources   map[string][]byte
	fail        map[string]error
	// onFetch runs before each resource fetch, letting tests trigger
	// aborts at a precise point
	onFetch func(source string)
	fetched []string
}

func (m *mockFetcher) FetchResource(ctx context.Context, kind domain.ResourceKind, source string) (io.ReadCloser, error) {
	if m.onFetch != nil {
		m.onFetch(source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.fetched = append(m.fetched, source)
	if err, ok := m.fail[source]; ok {
		return nil, err
	}
	data, ok := m.resources[source]
	if !ok {
		return nil, domain.ErrSourceUnavailable
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockFetcher) FetchSongText(ctx context.Context, songID domain.SongID) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	return m.txt, m.remoteMtime, nil
}

func (m *mockFetcher) FetchCommentSources(ctx context.Context, songID domain.SongID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.comments, nil
}

func setupCoordinator(t *testing.T) (*Coordinator, *store.DB, *mockFetcher, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		SongDir:         filepath.Join(dir, "songs"),
		PathTemplate:    "{{.Artist}} - {{.Title}}/{{.Artist}} - {{.Title}}",
		Workers:         2,
		TransferTimeout: 5_000_000_000,
		RetryCount:      2,
	}
	fetcher := &mockFetcher{
		resources: map[string][]byte{},
		fail:      map[string]error{},
	}
	log := logger.New(logger.Config{Level: "error", Format: "text"})
	coord := NewCoordinator(db, fetcher, cfg, log)
	t.Cleanup(coord.Close)
	return coord, db, fetcher, cfg
}

func seedSyncSong(t *testing.T, db *store.DB) *domain.RemoteSong {
	t.Helper()
	song := &domain.RemoteSong{
		SongID:   42,
		Artist:   "Falco",
		Title:    "Rock Me Amadeus",
		Language: "German",
		Genre:    "Pop",
	}
	if err := db.UpsertSong(song); err != nil {
		t.Fatalf("UpsertSong failed: %v", err)
	}
	return song
}

func songText(directive string) string {
	return "#ARTIST:Falco\n#TITLE:Rock Me Amadeus\n#VIDEO:" + directive + "\n: 0 1 0 la\nE\n"
}
