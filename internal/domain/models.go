package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SongID is the catalog-assigned identifier of a remote song.
type SongID int

func (id SongID) String() string {
	return strconv.Itoa(int(id))
}

// Padded returns the id zero-padded to five digits for prefix search in the
// full-text index.
func (id SongID) Padded() string {
	return fmt.Sprintf("%05d", int(id))
}

func ParseSongID(s string) (SongID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid song id: %q", s)
	}
	return SongID(n), nil
}

// RemoteSong is the catalog's metadata about a song. Exactly one row exists
// per id; the comma-separated language/genre/creator fields are decomposed
// into lookup tables by the store whenever the raw value changes.
type RemoteSong struct {
	SongID      SongID  `json:"song_id" db:"song_id"`
	Artist      string  `json:"artist" db:"artist"`
	Title       string  `json:"title" db:"title"`
	Language    string  `json:"language" db:"language"`
	Edition     string  `json:"edition" db:"edition"`
	GoldenNotes bool    `json:"golden_notes" db:"golden_notes"`
	Rating      float64 `json:"rating" db:"rating"` // half-star steps in [0, 5]
	Views       int     `json:"views" db:"views"`
	SampleURL   string  `json:"sample_url" db:"sample_url"`
	Year        *int    `json:"year,omitempty" db:"year"`
	Genre       string  `json:"genre" db:"genre"`
	Creator     string  `json:"creator" db:"creator"`
	Tags        string  `json:"tags" db:"tags"`
	RemoteMtime int64   `json:"remote_mtime" db:"remote_mtime"`
}

func (s *RemoteSong) Languages() []string { return splitSet(s.Language) }
func (s *RemoteSong) Genres() []string    { return splitSet(s.Genre) }
func (s *RemoteSong) Creators() []string  { return splitSet(s.Creator) }

func splitSet(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResourceKind identifies one of the files a song folder may hold.
type ResourceKind string

const (
	KindText         ResourceKind = "text"
	KindAudio        ResourceKind = "audio"
	KindInstrumental ResourceKind = "instrumental"
	KindVocals       ResourceKind = "vocals"
	KindVideo        ResourceKind = "video"
	KindCover        ResourceKind = "cover"
	KindBackground   ResourceKind = "background"
)

// AllResourceKinds lists every kind in the order a sync pass processes them.
var AllResourceKinds = []ResourceKind{
	KindText, KindAudio, KindInstrumental, KindVocals,
	KindVideo, KindCover, KindBackground,
}

func (k ResourceKind) Valid() bool {
	for _, kind := range AllResourceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ResourceStatus is the advisory outcome of the last sync attempt for one
// (folder, kind) pair. It is surfaced to the UI but never used to drop songs
// from the catalog.
type ResourceStatus string

const (
	StatusAbsent      ResourceStatus = "absent"
	StatusPending     ResourceStatus = "pending"
	StatusSuccess     ResourceStatus = "success"
	StatusUnchanged   ResourceStatus = "unchanged"
	StatusFallback    ResourceStatus = "fallback"
	StatusUnavailable ResourceStatus = "unavailable"
	StatusFailed      ResourceStatus = "failed"
)

// Retryable reports whether the status signals a transient condition worth
// retrying before the next full resync.
func (s ResourceStatus) Retryable() bool {
	return s == StatusFailed
}

// SyncFolder is one local directory believed to hold a copy of a RemoteSong.
// Many folders may reference the same song; the store's active ranking picks
// the canonical one.
type SyncFolder struct {
	FolderID    int64  `json:"folder_id" db:"folder_id"`
	SongID      SongID `json:"song_id" db:"song_id"`
	Path        string `json:"path" db:"path"`
	Mtime       int64  `json:"mtime" db:"mtime"` // unix micros of the marker file
	MetaTags    string `json:"meta_tags" db:"meta_tags"`
	Pinned      bool   `json:"pinned" db:"pinned"`
	RemoteMtime int64  `json:"remote_mtime" db:"remote_mtime"`
}

// MarkerSuffix is the file extension of folder marker files.
const MarkerSuffix = ".karasync"

// MarkerName is the name of the folder's marker file, derived from its id.
func (f *SyncFolder) MarkerName() string {
	return FolderMarkerName(f.FolderID)
}

func FolderMarkerName(folderID int64) string {
	return fmt.Sprintf("%016x%s", uint64(folderID), MarkerSuffix)
}

// ParseFolderMarkerName extracts the folder id from a marker file name.
func ParseFolderMarkerName(name string) (int64, bool) {
	hex, ok := strings.CutSuffix(name, MarkerSuffix)
	if !ok || len(hex) != 16 {
		return 0, false
	}
	n, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return int64(n), true
}

// ResourceRecord is the stored state of one resource file inside a folder.
// At most one record exists per (folder, kind).
type ResourceRecord struct {
	FolderID int64          `json:"folder_id" db:"folder_id"`
	Kind     ResourceKind   `json:"kind" db:"kind"`
	Filename string         `json:"fname" db:"fname"`
	Mtime    int64          `json:"mtime" db:"mtime"` // unix micros
	Source   string         `json:"resource" db:"resource"`
	Status   ResourceStatus `json:"status" db:"status"`
}

// DownloadStatus is the transient per-song state for the process lifetime.
// It is reset at startup and never written to the song folder.
type DownloadStatus string

const (
	DownloadStatusNone        DownloadStatus = ""
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusFailed      DownloadStatus = "failed"
)

func (s DownloadStatus) CanBeDownloaded() bool {
	return s == DownloadStatusNone || s == DownloadStatusFailed
}

func (s DownloadStatus) CanBeAborted() bool {
	return s == DownloadStatusPending || s == DownloadStatusDownloading
}
