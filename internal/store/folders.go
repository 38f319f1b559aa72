package store

import (
	"database/sql"
	"errors"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/jmoiron/sqlx"
)

// UpsertFolder writes the folder record keyed by its id, replacing any prior
// row for the same path.
func (db *DB) UpsertFolder(folder *domain.SyncFolder) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		return upsertFolderTx(tx, folder)
	})
}

func upsertFolderTx(tx *sqlx.Tx, folder *domain.SyncFolder) error {
	_, err := tx.NamedExec(`
INSERT INTO sync_folder (folder_id, song_id, path, mtime, meta_tags, pinned, remote_mtime)
VALUES (:folder_id, :song_id, :path, :mtime, :meta_tags, :pinned, :remote_mtime)
ON CONFLICT (folder_id) DO UPDATE SET
	song_id = excluded.song_id,
	path = excluded.path,
	mtime = excluded.mtime,
	meta_tags = excluded.meta_tags,
	pinned = excluded.pinned,
	remote_mtime = excluded.remote_mtime`, folder)
	if err != nil {
		return &domain.StoreError{Op: "upsert folder", Err: err}
	}
	return nil
}

// UpsertFolderWithResources writes the folder and the full new set of its
// resource records in one transaction. Existing records for kinds not in the
// new set are removed.
func (db *DB) UpsertFolderWithResources(folder *domain.SyncFolder, resources []*domain.ResourceRecord) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		if err := upsertFolderTx(tx, folder); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM resource_file WHERE folder_id = ?", folder.FolderID); err != nil {
			return &domain.StoreError{Op: "clear resources", Err: err}
		}
		for _, res := range resources {
			if err := upsertResourceTx(tx, res); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) GetFolder(folderID int64) (*domain.SyncFolder, error) {
	var folder domain.SyncFolder
	err := db.Get(&folder, "SELECT * FROM sync_folder WHERE folder_id = ?", folderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get folder", Err: err}
	}
	return &folder, nil
}

func (db *DB) GetFolderByPath(path string) (*domain.SyncFolder, error) {
	var folder domain.SyncFolder
	err := db.Get(&folder, "SELECT * FROM sync_folder WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get folder by path", Err: err}
	}
	return &folder, nil
}

func (db *DB) FoldersForSong(songID domain.SongID) ([]*domain.SyncFolder, error) {
	var folders []*domain.SyncFolder
	err := db.Select(&folders,
		"SELECT * FROM sync_folder WHERE song_id = ? ORDER BY path", songID)
	if err != nil {
		return nil, &domain.StoreError{Op: "folders for song", Err: err}
	}
	return folders, nil
}

// FoldersInRoot returns every folder whose path lies under root.
func (db *DB) FoldersInRoot(root string) ([]*domain.SyncFolder, error) {
	var folders []*domain.SyncFolder
	err := db.Select(&folders,
		"SELECT * FROM sync_folder WHERE path GLOB ? ORDER BY path", root+"/*")
	if err != nil {
		return nil, &domain.StoreError{Op: "folders in root", Err: err}
	}
	return folders, nil
}

func (db *DB) DeleteFolder(folderID int64) error {
	if _, err := db.Exec("DELETE FROM sync_folder WHERE folder_id = ?", folderID); err != nil {
		return &domain.StoreError{Op: "delete folder", Err: err}
	}
	return nil
}

func (db *DB) SetFolderPinned(folderID int64, pinned bool) error {
	if _, err := db.Exec("UPDATE sync_folder SET pinned = ? WHERE folder_id = ?", pinned, folderID); err != nil {
		return &domain.StoreError{Op: "pin folder", Err: err}
	}
	return nil
}

// ResetActive recomputes the canonical-folder ranking for every song that has
// a folder under root. Ranks are assigned by ascending path so rescans of the
// same tree are deterministic.
func (db *DB) ResetActive(root string) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`
DELETE FROM active_sync_folder WHERE song_id IN
	(SELECT song_id FROM sync_folder WHERE path GLOB ?)`, root+"/*")
		if err != nil {
			return &domain.StoreError{Op: "clear active folders", Err: err}
		}
		_, err = tx.Exec(`
INSERT INTO active_sync_folder (song_id, folder_id, rank)
SELECT song_id, folder_id, row_number() OVER (PARTITION BY song_id ORDER BY path)
FROM sync_folder WHERE path GLOB ?`, root+"/*")
		if err != nil {
			return &domain.StoreError{Op: "rank active folders", Err: err}
		}
		return nil
	})
}

// UpdateActive recomputes the ranking for a single song.
func (db *DB) UpdateActive(songID domain.SongID) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM active_sync_folder WHERE song_id = ?", songID); err != nil {
			return &domain.StoreError{Op: "clear active folder", Err: err}
		}
		_, err := tx.Exec(`
INSERT INTO active_sync_folder (song_id, folder_id, rank)
SELECT song_id, folder_id, row_number() OVER (ORDER BY path)
FROM sync_folder WHERE song_id = ?`, songID)
		if err != nil {
			return &domain.StoreError{Op: "rank active folder", Err: err}
		}
		return nil
	})
}

// ActiveFolder returns the rank-1 folder for the song, or nil if the song has
// no folder on disk.
func (db *DB) ActiveFolder(songID domain.SongID) (*domain.SyncFolder, error) {
	var folder domain.SyncFolder
	err := db.Get(&folder, `
SELECT f.*
FROM active_sync_folder a
JOIN sync_folder f ON a.folder_id = f.folder_id
WHERE a.song_id = ? AND a.rank = 1`, songID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get active folder", Err: err}
	}
	return &folder, nil
}

func upsertResourceTx(tx *sqlx.Tx, res *domain.ResourceRecord) error {
	_, err := tx.NamedExec(`
INSERT INTO resource_file (folder_id, kind, fname, mtime, resource, status)
VALUES (:folder_id, :kind, :fname, :mtime, :resource, :status)
ON CONFLICT (folder_id, kind) DO UPDATE SET
	fname = excluded.fname,
	mtime = excluded.mtime,
	resource = excluded.resource,
	status = excluded.status`, res)
	if err != nil {
		return &domain.StoreError{Op: "upsert resource", Err: err}
	}
	return nil
}

func (db *DB) GetResource(folderID int64, kind domain.ResourceKind) (*domain.ResourceRecord, error) {
	var res domain.ResourceRecord
	err := db.Get(&res,
		"SELECT * FROM resource_file WHERE folder_id = ? AND kind = ?", folderID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get resource", Err: err}
	}
	return &res, nil
}

func (db *DB) ResourcesForFolder(folderID int64) ([]*domain.ResourceRecord, error) {
	var out []*domain.ResourceRecord
	err := db.Select(&out,
		"SELECT * FROM resource_file WHERE folder_id = ? ORDER BY kind", folderID)
	if err != nil {
		return nil, &domain.StoreError{Op: "list resources", Err: err}
	}
	return out, nil
}

// CustomData returns the folder's free-form key/value annotations.
func (db *DB) CustomData(folderID int64) (map[string]string, error) {
	rows, err := db.Queryx("SELECT key, value FROM custom_data WHERE folder_id = ?", folderID)
	if err != nil {
		return nil, &domain.StoreError{Op: "get custom data", Err: err}
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, &domain.StoreError{Op: "scan custom data", Err: err}
		}
		out[key] = value
	}
	return out, rows.Err()
}

// ReplaceCustomData swaps the folder's annotations for the given set.
func (db *DB) ReplaceCustomData(folderID int64, data map[string]string) error {
	return db.WithTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM custom_data WHERE folder_id = ?", folderID); err != nil {
			return &domain.StoreError{Op: "clear custom data", Err: err}
		}
		for key, value := range data {
			_, err := tx.Exec(
				"INSERT INTO custom_data (folder_id, key, value) VALUES (?, ?, ?)",
				folderID, key, value)
			if err != nil {
				return &domain.StoreError{Op: "insert custom data", Err: err}
			}
		}
		return nil
	})
}
