package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/jmoiron/sqlx"
)

// SavedSearch is a named, persisted Search. At most one saved search is the
// default; subscribed searches feed automatic downloads.
type SavedSearch struct {
	Name       string  `db:"name" json:"name"`
	Search     *Search `db:"-" json:"search"`
	IsDefault  bool    `db:"is_default" json:"is_default"`
	Subscribed bool    `db:"subscribed" json:"subscribed"`
}

type savedSearchRow struct {
	Name       string `db:"name"`
	Search     string `db:"search"`
	IsDefault  bool   `db:"is_default"`
	Subscribed bool   `db:"subscribed"`
}

func (r *savedSearchRow) decode() (*SavedSearch, error) {
	var search Search
	if err := json.Unmarshal([]byte(r.Search), &search); err != nil {
		return nil, fmt.Errorf("failed to decode saved search %q: %w", r.Name, err)
	}
	return &SavedSearch{
		Name:       r.Name,
		Search:     &search,
		IsDefault:  r.IsDefault,
		Subscribed: r.Subscribed,
	}, nil
}

// SaveSearch stores the search under the requested name. If the name is
// taken, a numeric suffix is appended until a free name is found, so saving
// "Rock" twice yields "Rock" and "Rock (1)". The stored name is returned.
// Marking a search default clears the flag from every other search.
func (db *DB) SaveSearch(saved *SavedSearch) (string, error) {
	encoded, err := json.Marshal(saved.Search)
	if err != nil {
		return "", fmt.Errorf("failed to encode search: %w", err)
	}
	name := saved.Name
	err = db.WithTx(func(tx *sqlx.Tx) error {
		for n := 1; ; n++ {
			var taken int
			if err := tx.Get(&taken, "SELECT COUNT(*) FROM saved_search WHERE name = ?", name); err != nil {
				return &domain.StoreError{Op: "check search name", Err: err}
			}
			if taken == 0 {
				break
			}
			name = fmt.Sprintf("%s (%d)", saved.Name, n)
		}
		_, err := tx.Exec(
			"INSERT INTO saved_search (name, search, is_default, subscribed) VALUES (?, ?, ?, ?)",
			name, string(encoded), saved.IsDefault, saved.Subscribed)
		if err != nil {
			return &domain.StoreError{Op: "insert saved search", Err: err}
		}
		if saved.IsDefault {
			return clearOtherDefaults(tx, name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// UpdateSearch overwrites an existing saved search in place.
func (db *DB) UpdateSearch(saved *SavedSearch) error {
	encoded, err := json.Marshal(saved.Search)
	if err != nil {
		return fmt.Errorf("failed to encode search: %w", err)
	}
	return db.WithTx(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(
			"UPDATE saved_search SET search = ?, is_default = ?, subscribed = ? WHERE name = ?",
			string(encoded), saved.IsDefault, saved.Subscribed, saved.Name)
		if err != nil {
			return &domain.StoreError{Op: "update saved search", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no saved search named %q", saved.Name)
		}
		if saved.IsDefault {
			return clearOtherDefaults(tx, saved.Name)
		}
		return nil
	})
}

// RenameSearch changes a saved search's name, keeping its flags. The new
// name gets the same collision suffixing as SaveSearch.
func (db *DB) RenameSearch(oldName, newName string) (string, error) {
	name := newName
	err := db.WithTx(func(tx *sqlx.Tx) error {
		for n := 1; ; n++ {
			var taken int
			err := tx.Get(&taken,
				"SELECT COUNT(*) FROM saved_search WHERE name = ? AND name != ?", name, oldName)
			if err != nil {
				return &domain.StoreError{Op: "check search name", Err: err}
			}
			if taken == 0 {
				break
			}
			name = fmt.Sprintf("%s (%d)", newName, n)
		}
		res, err := tx.Exec("UPDATE saved_search SET name = ? WHERE name = ?", name, oldName)
		if err != nil {
			return &domain.StoreError{Op: "rename saved search", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no saved search named %q", oldName)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

func (db *DB) DeleteSearch(name string) error {
	if _, err := db.Exec("DELETE FROM saved_search WHERE name = ?", name); err != nil {
		return &domain.StoreError{Op: "delete saved search", Err: err}
	}
	return nil
}

// ListSearches returns saved searches by name. With subscribedOnly set, only
// searches feeding automatic downloads are returned.
func (db *DB) ListSearches(subscribedOnly bool) ([]*SavedSearch, error) {
	query := "SELECT * FROM saved_search ORDER BY name"
	if subscribedOnly {
		query = "SELECT * FROM saved_search WHERE subscribed = 1 ORDER BY name"
	}
	var rows []savedSearchRow
	if err := db.Select(&rows, query); err != nil {
		return nil, &domain.StoreError{Op: "list saved searches", Err: err}
	}
	out := make([]*SavedSearch, 0, len(rows))
	for i := range rows {
		saved, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (db *DB) GetSearch(name string) (*SavedSearch, error) {
	var row savedSearchRow
	err := db.Get(&row, "SELECT * FROM saved_search WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get saved search", Err: err}
	}
	return row.decode()
}

// DefaultSearch returns the search flagged as default, or nil.
func (db *DB) DefaultSearch() (*SavedSearch, error) {
	var row savedSearchRow
	err := db.Get(&row, "SELECT * FROM saved_search WHERE is_default = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "get default search", Err: err}
	}
	return row.decode()
}

// SubscribedSongIDs evaluates every subscribed search and returns the union
// of their results.
func (db *DB) SubscribedSongIDs() ([]domain.SongID, error) {
	searches, err := db.ListSearches(true)
	if err != nil {
		return nil, err
	}
	seen := map[domain.SongID]bool{}
	var ids []domain.SongID
	for _, saved := range searches {
		matched, err := db.SearchSongs(saved.Search)
		if err != nil {
			return nil, err
		}
		for _, id := range matched {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func clearOtherDefaults(tx *sqlx.Tx, name string) error {
	if _, err := tx.Exec("UPDATE saved_search SET is_default = 0 WHERE name != ?", name); err != nil {
		return &domain.StoreError{Op: "clear default searches", Err: err}
	}
	return nil
}
