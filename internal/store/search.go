package store

import (
	"fmt"
	"strings"

	"github.com/cesargomez89/karasync/internal/domain"
)

// SongOrder selects the sort column of a search.
type SongOrder int

const (
	OrderNone SongOrder = iota
	OrderSongID
	OrderArtist
	OrderTitle
	OrderEdition
	OrderLanguage
	OrderGoldenNotes
	OrderRating
	OrderViews
	OrderYear
	OrderGenre
	OrderCreator
)

func (o SongOrder) sql() string {
	switch o {
	case OrderSongID:
		return "song.song_id"
	case OrderArtist:
		return "song.artist"
	case OrderTitle:
		return "song.title"
	case OrderEdition:
		return "song.edition"
	case OrderLanguage:
		return "song.language"
	case OrderGoldenNotes:
		return "song.golden_notes"
	case OrderRating:
		return "song.rating"
	case OrderViews:
		return "song.views"
	case OrderYear:
		return "song.year"
	case OrderGenre:
		return "song.genre"
	case OrderCreator:
		return "song.creator"
	default:
		return ""
	}
}

// Search describes one song query: a free-text needle plus per-column value
// filters, with ordering. It serializes to JSON for saved searches.
type Search struct {
	Order      SongOrder        `json:"order"`
	Descending bool             `json:"descending"`
	Text       string           `json:"text"`
	Artists    []string         `json:"artists,omitempty"`
	Titles     []string         `json:"titles,omitempty"`
	Editions   []string         `json:"editions,omitempty"`
	Languages  []string         `json:"languages,omitempty"`
	Genres     []string         `json:"genres,omitempty"`
	Creators   []string         `json:"creators,omitempty"`
	Ratings    []float64        `json:"ratings,omitempty"`
	Statuses   []domain.ResourceStatus `json:"statuses,omitempty"`
	Views      [][2]int         `json:"views,omitempty"` // inclusive lower, exclusive upper; upper < 0 means open
	Years      []int            `json:"years,omitempty"`
	GoldenNotes *bool           `json:"golden_notes,omitempty"`
	Downloaded  *bool           `json:"downloaded,omitempty"`
}

// Statement builds the SQL for this search. Params returns the matching
// positional arguments.
func (s *Search) Statement() string {
	var b strings.Builder
	b.WriteString(`SELECT DISTINCT song.song_id FROM song
LEFT JOIN session_song ON song.song_id = session_song.song_id
LEFT JOIN active_sync_folder active ON song.song_id = active.song_id AND active.rank = 1
LEFT JOIN sync_folder folder ON active.folder_id = folder.folder_id`)
	where := s.filters()
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if order := s.Order.sql(); order != "" {
		b.WriteString("\nORDER BY ")
		b.WriteString(order)
		if s.Descending {
			b.WriteString(" DESC")
		}
		b.WriteString(", song.song_id")
	}
	return b.String()
}

func (s *Search) filters() []string {
	var where []string
	if s.ftsQuery() != "" {
		where = append(where, "song.song_id IN (SELECT rowid FROM fts_song WHERE fts_song MATCH ?)")
	}
	where = appendInFilter(where, "song.artist", len(s.Artists))
	where = appendInFilter(where, "song.title", len(s.Titles))
	where = appendInFilter(where, "song.edition", len(s.Editions))
	if n := len(s.Languages); n > 0 {
		where = append(where, fmt.Sprintf(
			"song.song_id IN (SELECT song_id FROM song_language WHERE language IN (%s))", placeholders(n)))
	}
	if n := len(s.Genres); n > 0 {
		where = append(where, fmt.Sprintf(
			"song.song_id IN (SELECT song_id FROM song_genre WHERE genre IN (%s))", placeholders(n)))
	}
	if n := len(s.Creators); n > 0 {
		where = append(where, fmt.Sprintf(
			"song.song_id IN (SELECT song_id FROM song_creator WHERE creator IN (%s))", placeholders(n)))
	}
	where = appendInFilter(where, "song.rating", len(s.Ratings))
	if n := len(s.Statuses); n > 0 {
		where = append(where, fmt.Sprintf(
			"song.song_id IN (SELECT f.song_id FROM sync_folder f JOIN resource_file r ON f.folder_id = r.folder_id WHERE r.status IN (%s))",
			placeholders(n)))
	}
	for _, span := range s.Views {
		if span[1] < 0 {
			where = append(where, "song.views >= ?")
		} else {
			where = append(where, "(song.views >= ? AND song.views < ?)")
		}
	}
	where = appendInFilter(where, "song.year", len(s.Years))
	if s.GoldenNotes != nil {
		where = append(where, "song.golden_notes = ?")
	}
	if s.Downloaded != nil {
		if *s.Downloaded {
			where = append(where, "folder.folder_id IS NOT NULL")
		} else {
			where = append(where, "folder.folder_id IS NULL")
		}
	}
	return where
}

func (s *Search) Params() []any {
	var params []any
	if q := s.ftsQuery(); q != "" {
		params = append(params, q)
	}
	for _, v := range s.Artists {
		params = append(params, v)
	}
	for _, v := range s.Titles {
		params = append(params, v)
	}
	for _, v := range s.Editions {
		params = append(params, v)
	}
	for _, v := range s.Languages {
		params = append(params, v)
	}
	for _, v := range s.Genres {
		params = append(params, v)
	}
	for _, v := range s.Creators {
		params = append(params, v)
	}
	for _, v := range s.Ratings {
		params = append(params, v)
	}
	for _, v := range s.Statuses {
		params = append(params, string(v))
	}
	for _, span := range s.Views {
		params = append(params, span[0])
		if span[1] >= 0 {
			params = append(params, span[1])
		}
	}
	for _, v := range s.Years {
		params = append(params, v)
	}
	if s.GoldenNotes != nil {
		params = append(params, *s.GoldenNotes)
	}
	return params
}

// ftsQuery turns the free-text needle into an fts5 query where every
// whitespace-separated word must match as a prefix.
func (s *Search) ftsQuery() string {
	words := strings.Fields(s.Text)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + ftsEscape(w) + `"*`
	}
	return strings.Join(quoted, " ")
}

func appendInFilter(where []string, column string, n int) []string {
	if n == 0 {
		return where
	}
	return append(where, fmt.Sprintf("%s IN (%s)", column, placeholders(n)))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// SearchSongs runs the search and returns matching ids in requested order.
func (db *DB) SearchSongs(search *Search) ([]domain.SongID, error) {
	var ids []domain.SongID
	if err := db.Select(&ids, search.Statement(), search.Params()...); err != nil {
		return nil, &domain.StoreError{Op: "search songs", Err: err}
	}
	return ids, nil
}
