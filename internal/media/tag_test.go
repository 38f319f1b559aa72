package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"

	"github.com/cesargomez89/karasync/internal/domain"
)

func testSong() *domain.RemoteSong {
	year := 1986
	return &domain.RemoteSong{
		SongID:   42,
		Artist:   "Falco",
		Title:    "Rock Me Amadeus",
		Language: "German",
		Genre:    "Pop",
		Year:     &year,
	}
}

func TestTagAudio_MP3RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	// bare audio data without any existing tag
	if err := os.WriteFile(path, []byte{0xFF, 0xFB, 0x90, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	cover := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(cover, []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0644); err != nil {
		t.Fatal(err)
	}

	if err := TagAudio(path, testSong(), "Rock me\nAmadeus\n", cover); err != nil {
		t.Fatalf("TagAudio failed: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("Failed to reopen tag: %v", err)
	}
	defer tag.Close()

	if tag.Artist() != "Falco" {
		t.Errorf("Expected artist Falco, got %q", tag.Artist())
	}
	if tag.Title() != "Rock Me Amadeus" {
		t.Errorf("Expected title Rock Me Amadeus, got %q", tag.Title())
	}
	if tag.Genre() != "Pop" {
		t.Errorf("Expected genre Pop, got %q", tag.Genre())
	}
	if tag.Year() != "1986" {
		t.Errorf("Expected year 1986, got %q", tag.Year())
	}
	if lang := tag.GetTextFrame("TLAN").Text; lang != "German" {
		t.Errorf("Expected language German, got %q", lang)
	}

	lyricsFrames := tag.GetFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
	if len(lyricsFrames) != 1 {
		t.Fatalf("Expected 1 lyrics frame, got %d", len(lyricsFrames))
	}
	uslt, ok := lyricsFrames[0].(id3v2.UnsynchronisedLyricsFrame)
	if !ok {
		t.Fatalf("Unexpected frame type %T", lyricsFrames[0])
	}
	if uslt.Lyrics != "Rock me\nAmadeus\n" {
		t.Errorf("Unexpected lyrics %q", uslt.Lyrics)
	}

	picFrames := tag.GetFrames(tag.CommonID("Attached picture"))
	if len(picFrames) != 1 {
		t.Fatalf("Expected 1 picture frame, got %d", len(picFrames))
	}
	pic, ok := picFrames[0].(id3v2.PictureFrame)
	if !ok {
		t.Fatalf("Unexpected frame type %T", picFrames[0])
	}
	if pic.MimeType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", pic.MimeType)
	}
	if pic.PictureType != id3v2.PTFrontCover {
		t.Errorf("Expected front cover type, got %d", pic.PictureType)
	}
}

func TestTagAudio_SkipsOptionalFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte{0xFF, 0xFB}, 0644); err != nil {
		t.Fatal(err)
	}

	song := &domain.RemoteSong{SongID: 1, Artist: "Nena", Title: "99 Luftballons"}
	if err := TagAudio(path, song, "", ""); err != nil {
		t.Fatalf("TagAudio failed: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("Failed to reopen tag: %v", err)
	}
	defer tag.Close()

	if tag.Artist() != "Nena" {
		t.Errorf("Expected artist Nena, got %q", tag.Artist())
	}
	if tag.Genre() != "" {
		t.Errorf("Expected no genre, got %q", tag.Genre())
	}
	if frames := tag.GetFrames(tag.CommonID("Unsynchronised lyrics/text transcription")); len(frames) != 0 {
		t.Errorf("Expected no lyrics frame, got %d", len(frames))
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 0 {
		t.Errorf("Expected no picture frame, got %d", len(frames))
	}
}

func TestTagAudio_UnsupportedFormatUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.ogg")
	payload := []byte("OggS fake audio")
	if err := os.WriteFile(path, payload, 0644); err != nil {
		t.Fatal(err)
	}

	if err := TagAudio(path, testSong(), "lyrics", ""); err != nil {
		t.Fatalf("TagAudio failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Error("Expected unsupported file to be left untouched")
	}
}

func TestCoverMIME(t *testing.T) {
	if got := coverMIME("cover.PNG"); got != "image/png" {
		t.Errorf("Expected image/png, got %q", got)
	}
	if got := coverMIME("cover.jpg"); got != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", got)
	}
	if got := coverMIME(""); got != "image/jpeg" {
		t.Errorf("Expected image/jpeg default, got %q", got)
	}
}
