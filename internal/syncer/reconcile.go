package syncer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/storage"
)

// ReconcileStats summarizes one folder scan.
type ReconcileStats struct {
	Found   int `json:"found"`
	Added   int `json:"added"`
	Moved   int `json:"moved"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// Reconcile walks the song root and lines the store up with what is on disk.
// Folders are identified by their marker file, so a renamed or moved folder
// keeps its identity and history. Folders no longer on disk are dropped from
// the store; a folder copied (marker id seen twice) gets a fresh identity.
func (c *Coordinator) Reconcile(root string) (*ReconcileStats, error) {
	log := c.log.WithComponent("reconcile")
	root = filepath.Clean(root)

	known, err := c.db.FoldersInRoot(root)
	if err != nil {
		return nil, err
	}
	knownByID := map[int64]*domain.SyncFolder{}
	for _, folder := range known {
		knownByID[folder.FolderID] = folder
	}

	stats := &ReconcileStats{}
	seen := map[int64]bool{}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		folderID, ok := domain.ParseFolderMarkerName(d.Name())
		if !ok {
			return nil
		}
		stats.Found++
		dir := filepath.Dir(path)
		mtime := storage.GetMtime(path)

		meta, err := readFolderMeta(path)
		if err != nil {
			if errors.Is(err, domain.ErrMarkerTooNew) {
				log.Warn("skipping folder written by a newer version", "path", dir)
				return nil
			}
			log.Warn("skipping unreadable marker", "path", path, "error", err)
			return nil
		}

		// the folder store cascades from the catalog, so a folder whose
		// song is gone cannot be adopted
		song, err := c.db.GetSong(meta.SongID)
		if err != nil {
			return err
		}
		if song == nil {
			log.Warn("skipping folder for unknown song", "path", dir, "song_id", meta.SongID)
			return nil
		}

		if seen[folderID] {
			// a copied folder carries the same marker; give the copy
			// its own identity and rewrite its marker
			stats.Added++
			return c.splitCopiedFolder(path, dir, meta)
		}
		seen[folderID] = true

		prior, ok := knownByID[folderID]
		switch {
		case !ok:
			stats.Added++
			return c.adoptFolder(folderID, dir, meta)
		case prior.Path != dir && storage.MtimeInSync(prior.Mtime, mtime):
			// same marker, same content, new location
			stats.Moved++
			prior.Path = dir
			return c.db.UpsertFolder(prior)
		case !storage.MtimeInSync(prior.Mtime, mtime):
			// marker changed behind our back, trust the disk
			stats.Updated++
			return c.adoptFolderAt(folderID, dir, mtime, meta)
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	for _, folder := range known {
		if seen[folder.FolderID] {
			continue
		}
		stats.Removed++
		if err := c.db.DeleteFolder(folder.FolderID); err != nil {
			return nil, err
		}
	}

	if err := c.db.ResetActive(root); err != nil {
		return nil, err
	}
	log.Info("reconciled song folders",
		"found", stats.Found, "added", stats.Added, "moved", stats.Moved,
		"updated", stats.Updated, "removed", stats.Removed)
	return stats, nil
}

func (c *Coordinator) adoptFolder(folderID int64, dir string, meta *folderMeta) error {
	mtime := storage.GetMtime(filepath.Join(dir, domain.FolderMarkerName(folderID)))
	return c.adoptFolderAt(folderID, dir, mtime, meta)
}

func (c *Coordinator) splitCopiedFolder(oldMarker, dir string, meta *folderMeta) error {
	folder := &domain.SyncFolder{
		FolderID:    newFolderID(),
		SongID:      meta.SongID,
		Path:        dir,
		MetaTags:    meta.MetaTags,
		Pinned:      meta.Pinned,
		RemoteMtime: meta.RemoteMtime,
	}
	if err := c.evictStalePathRow(dir, folder.FolderID); err != nil {
		return err
	}
	records := meta.markerRecords(folder.FolderID)
	mtime, err := writeFolderMeta(folder, records, meta.Custom)
	if err != nil {
		return err
	}
	if err := os.Remove(oldMarker); err != nil {
		return err
	}
	folder.Mtime = mtime
	if err := c.db.UpsertFolderWithResources(folder, records); err != nil {
		return err
	}
	if len(meta.Custom) > 0 {
		return c.db.ReplaceCustomData(folder.FolderID, meta.Custom)
	}
	return nil
}

// adoptFolderAt writes a folder into the store exactly as its marker
// describes it.
func (c *Coordinator) adoptFolderAt(folderID int64, dir string, mtime int64, meta *folderMeta) error {
	if err := c.evictStalePathRow(dir, folderID); err != nil {
		return err
	}
	folder := &domain.SyncFolder{
		FolderID:    folderID,
		SongID:      meta.SongID,
		Path:        dir,
		Mtime:       mtime,
		MetaTags:    meta.MetaTags,
		Pinned:      meta.Pinned,
		RemoteMtime: meta.RemoteMtime,
	}
	if err := c.db.UpsertFolderWithResources(folder, meta.markerRecords(folderID)); err != nil {
		return err
	}
	if len(meta.Custom) > 0 {
		return c.db.ReplaceCustomData(folderID, meta.Custom)
	}
	return nil
}

// evictStalePathRow drops a store row that still claims the directory under
// a different folder id, so the adopting upsert does not trip the unique
// path constraint.
func (c *Coordinator) evictStalePathRow(dir string, folderID int64) error {
	existing, err := c.db.GetFolderByPath(dir)
	if err != nil {
		return err
	}
	if existing != nil && existing.FolderID != folderID {
		return c.db.DeleteFolder(existing.FolderID)
	}
	return nil
}

// RemoveSong deletes the song's folders from disk and store. With trash set,
// folders are moved into a trash directory under the song root instead of
// being deleted outright.
func (c *Coordinator) RemoveSong(songID domain.SongID, trash bool) error {
	folders, err := c.db.FoldersForSong(songID)
	if err != nil {
		return err
	}
	for _, folder := range folders {
		if trash {
			trashDir := filepath.Join(c.cfg.SongDir, ".trash")
			if err := storage.Trash(folder.Path, trashDir); err != nil && !storage.IsNotExist(err) {
				return err
			}
			// templates may nest song folders under an artist directory
			if parent := filepath.Dir(folder.Path); parent != filepath.Clean(c.cfg.SongDir) {
				if err := storage.DeleteFolderIfEmpty(parent); err != nil {
					return err
				}
			}
		}
		if err := c.db.DeleteFolder(folder.FolderID); err != nil {
			return err
		}
	}
	return c.db.UpdateActive(songID)
}
