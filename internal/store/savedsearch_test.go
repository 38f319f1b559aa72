package store

import (
	"testing"
)

func TestDB_SaveSearchCollisions(t *testing.T) {
	db := setupTestDB(t)

	for i, want := range []string{"Rock", "Rock (1)", "Rock (2)"} {
		name, err := db.SaveSearch(&SavedSearch{Name: "Rock", Search: &Search{Text: "rock"}})
		if err != nil {
			t.Fatalf("SaveSearch %d failed: %v", i, err)
		}
		if name != want {
			t.Errorf("Expected name %q, got %q", want, name)
		}
	}
}

func TestDB_DefaultSearchIsExclusive(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.SaveSearch(&SavedSearch{Name: "first", Search: &Search{}, IsDefault: true}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}
	if _, err := db.SaveSearch(&SavedSearch{Name: "second", Search: &Search{}, IsDefault: true}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}

	def, err := db.DefaultSearch()
	if err != nil {
		t.Fatalf("DefaultSearch failed: %v", err)
	}
	if def == nil || def.Name != "second" {
		t.Fatalf("Expected second as default, got %+v", def)
	}
}

func TestDB_RenameSearch(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.SaveSearch(&SavedSearch{Name: "Rock", Search: &Search{}, Subscribed: true}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}
	if _, err := db.SaveSearch(&SavedSearch{Name: "Pop", Search: &Search{}}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}

	// renaming onto a taken name gets a suffix
	name, err := db.RenameSearch("Pop", "Rock")
	if err != nil {
		t.Fatalf("RenameSearch failed: %v", err)
	}
	if name != "Rock (1)" {
		t.Errorf("Expected Rock (1), got %q", name)
	}

	// renaming to the same name is a no-op, not a collision
	name, err = db.RenameSearch("Rock", "Rock")
	if err != nil {
		t.Fatalf("RenameSearch failed: %v", err)
	}
	if name != "Rock" {
		t.Errorf("Expected Rock, got %q", name)
	}

	// flags survive the rename
	saved, err := db.GetSearch("Rock")
	if err != nil {
		t.Fatalf("GetSearch failed: %v", err)
	}
	if saved == nil || !saved.Subscribed {
		t.Errorf("Expected subscription to survive rename, got %+v", saved)
	}

	if _, err := db.RenameSearch("missing", "anything"); err == nil {
		t.Error("Expected error renaming a missing search")
	}
}

func TestDB_SubscribedSongIDs(t *testing.T) {
	db := setupTestDB(t)
	seedSongs(t, db)

	if _, err := db.SaveSearch(&SavedSearch{Name: "english", Search: &Search{Languages: []string{"English"}}, Subscribed: true}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}
	if _, err := db.SaveSearch(&SavedSearch{Name: "rock", Search: &Search{Genres: []string{"Rock"}}, Subscribed: true}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}
	if _, err := db.SaveSearch(&SavedSearch{Name: "german", Search: &Search{Languages: []string{"German"}}}); err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}

	ids, err := db.SubscribedSongIDs()
	if err != nil {
		t.Fatalf("SubscribedSongIDs failed: %v", err)
	}
	// union of both subscribed searches, unsubscribed one ignored
	if len(ids) != 2 {
		t.Fatalf("Expected 2 songs, got %v", ids)
	}
	seen := map[int]bool{}
	for _, id := range ids {
		seen[int(id)] = true
	}
	if !seen[1] || !seen[3] {
		t.Errorf("Expected songs 1 and 3, got %v", ids)
	}
}
