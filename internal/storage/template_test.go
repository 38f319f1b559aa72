package storage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/cesargomez89/karasync/internal/domain"
)

func templateSong() *domain.RemoteSong {
	return &domain.RemoteSong{
		SongID: 42,
		Artist: "AC/DC",
		Title:  "T.N.T.",
		Genre:  "Rock",
	}
}

func TestBuildSongPath(t *testing.T) {
	data := NewPathTemplateData(templateSong(), nil)
	got, err := BuildSongPath("{{.Artist}} - {{.Title}}/{{.Artist}} - {{.Title}}", "/songs", data)
	if err != nil {
		t.Fatalf("BuildSongPath failed: %v", err)
	}
	want := filepath.Join("/songs", "ACDC - T.N.T", "ACDC - T.N.T")
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestBuildSongPathWithID(t *testing.T) {
	data := NewPathTemplateData(templateSong(), nil)
	got, err := BuildSongPath("{{.Genre}}/{{.SongID}} - {{.Title}}", "/songs", data)
	if err != nil {
		t.Fatalf("BuildSongPath failed: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join("Rock", "42 - T.N.T")) {
		t.Errorf("Unexpected path %q", got)
	}
}

func TestBuildSongPathCustomFields(t *testing.T) {
	data := NewPathTemplateData(templateSong(), map[string]string{"difficulty": "ha/rd"})
	got, err := BuildSongPath("{{index .Custom \"difficulty\"}}/{{.Title}}", "/songs", data)
	if err != nil {
		t.Fatalf("BuildSongPath failed: %v", err)
	}
	if !strings.Contains(got, "hard") {
		t.Errorf("Expected sanitized custom field in %q", got)
	}
}

func TestBuildSongPathRejectsEscape(t *testing.T) {
	data := NewPathTemplateData(templateSong(), nil)
	if _, err := BuildSongPath("../../outside/{{.Title}}", "/songs", data); err == nil {
		t.Error("Expected escape to be rejected")
	}
	if _, err := BuildSongPath("{{.Title}}", "/songs", data); err != nil {
		t.Errorf("Plain template should pass: %v", err)
	}
}

func TestBuildSongPathBadTemplate(t *testing.T) {
	data := NewPathTemplateData(templateSong(), nil)
	if _, err := BuildSongPath("{{.Title", "/songs", data); err == nil {
		t.Error("Expected parse error")
	}
}
