package syncer

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/storage"
)

// markerVersion is the marker file format this build reads and writes.
// Markers written by a newer build are left untouched.
const markerVersion = 1

// folderMeta is the JSON payload of a folder's marker file. It mirrors the
// folder's store record so a song directory stays self-describing when moved
// between machines or roots.
type folderMeta struct {
	Version     int                      `json:"version"`
	SongID      domain.SongID            `json:"song_id"`
	MetaTags    string                   `json:"meta_tags"`
	Pinned      bool                     `json:"pinned,omitempty"`
	RemoteMtime int64                    `json:"remote_mtime,omitempty"`
	Resources   map[string]*resourceMeta `json:"resources"`
	Custom      map[string]string        `json:"custom,omitempty"`
}

type resourceMeta struct {
	Fname    string `json:"fname"`
	Mtime    int64  `json:"mtime"`
	Resource string `json:"resource"`
	Status   string `json:"status"`
}

// newFolderID draws a random non-zero id for a new song folder. Random ids
// keep markers unique across machines so moved folders are recognized.
func newFolderID() int64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(err)
		}
		if id := int64(binary.BigEndian.Uint64(buf[:])); id != 0 {
			return id
		}
	}
}

// readFolderMeta loads and validates the marker file at path. A marker with
// a newer version than this build returns ErrMarkerTooNew.
func readFolderMeta(path string) (*folderMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta folderMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid marker file %s: %w", path, err)
	}
	if meta.Version > markerVersion {
		return nil, fmt.Errorf("%w: marker %s has version %d", domain.ErrMarkerTooNew, path, meta.Version)
	}
	if meta.Resources == nil {
		meta.Resources = map[string]*resourceMeta{}
	}
	return &meta, nil
}

// writeFolderMeta writes the marker atomically and returns its new mtime in
// unix micros.
func writeFolderMeta(folder *domain.SyncFolder, resources []*domain.ResourceRecord, custom map[string]string) (int64, error) {
	meta := folderMeta{
		Version:     markerVersion,
		SongID:      folder.SongID,
		MetaTags:    folder.MetaTags,
		Pinned:      folder.Pinned,
		RemoteMtime: folder.RemoteMtime,
		Resources:   map[string]*resourceMeta{},
		Custom:      custom,
	}
	for _, res := range resources {
		meta.Resources[string(res.Kind)] = &resourceMeta{
			Fname:    res.Filename,
			Mtime:    res.Mtime,
			Resource: res.Source,
			Status:   string(res.Status),
		}
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return 0, err
	}
	path := filepath.Join(folder.Path, folder.MarkerName())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return storage.GetMtime(path), nil
}

// markerRecords converts the marker payload into store resource records.
func (m *folderMeta) markerRecords(folderID int64) []*domain.ResourceRecord {
	out := make([]*domain.ResourceRecord, 0, len(m.Resources))
	for kind, res := range m.Resources {
		k := domain.ResourceKind(kind)
		if !k.Valid() {
			continue
		}
		out = append(out, &domain.ResourceRecord{
			FolderID: folderID,
			Kind:     k,
			Filename: res.Fname,
			Mtime:    res.Mtime,
			Source:   res.Resource,
			Status:   domain.ResourceStatus(res.Status),
		})
	}
	return out
}
