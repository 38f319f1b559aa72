package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cesargomez89/karasync/internal/domain"
)

// PathTemplateData holds the data for path template execution. Custom holds
// the folder's user-defined key/value fields.
type PathTemplateData struct {
	Artist  string
	Title   string
	SongID  string
	Year    int
	Genre   string
	Edition string
	Custom  map[string]string
}

// NewPathTemplateData builds template data from song metadata, sanitizing
// every component for filesystem use.
func NewPathTemplateData(song *domain.RemoteSong, custom map[string]string) *PathTemplateData {
	year := 0
	if song.Year != nil {
		year = *song.Year
	}
	sanitized := make(map[string]string, len(custom))
	for k, v := range custom {
		sanitized[k] = Sanitize(v)
	}
	return &PathTemplateData{
		Artist:  Sanitize(song.Artist),
		Title:   Sanitize(song.Title),
		SongID:  song.SongID.String(),
		Year:    year,
		Genre:   Sanitize(song.Genre),
		Edition: Sanitize(song.Edition),
		Custom:  sanitized,
	}
}

// BuildSongPath executes the template and joins the result onto baseDir. The
// final component is the filename stem for the folder's resource files.
func BuildSongPath(templateStr, baseDir string, data *PathTemplateData) (string, error) {
	tmpl, err := template.New("songpath").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse path template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute path template: %w", err)
	}
	full := filepath.Join(baseDir, buf.String())
	clean := filepath.Clean(full)
	rel, err := filepath.Rel(baseDir, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path template escapes the song directory: %s", clean)
	}
	return clean, nil
}
