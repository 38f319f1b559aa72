package metatags

import (
	"testing"
)

const sampleText = "\uFEFF#ARTIST:Falco\n" +
	"#TITLE:Rock Me Amadeus\n" +
	"#VIDEO:a=example.com/a.mp3,co=cover.jpg\n" +
	"#BPM:240\n" +
	": 0 4 0 Rock\n" +
	": 4 4 0  me\n" +
	"- 10\n" +
	"* 12 4 2 A\n" +
	": 16 4 2 ma\n" +
	": 20 4 4 deus\n" +
	"E\n"

func TestExtractFromText(t *testing.T) {
	got := ExtractFromText(sampleText)
	if got != "a=example.com/a.mp3,co=cover.jpg" {
		t.Errorf("ExtractFromText = %q", got)
	}

	// a plain file name in the header is not a directive string
	tags, errs := Parse(ExtractFromText("#VIDEO:Falco - Rock Me Amadeus.mp4\n: 0 1 0 x\n"))
	if len(errs) != 0 {
		t.Errorf("Parse returned errors: %v", errs)
	}
	if tags.Video != "" {
		t.Errorf("Video = %q", tags.Video)
	}

	// no header line at all
	if got := ExtractFromText(": 0 1 0 hello\n"); got != "" {
		t.Errorf("ExtractFromText = %q", got)
	}
}

func TestExtractLyrics(t *testing.T) {
	got := ExtractLyrics(sampleText)
	want := "Rock me\nAmadeus\n"
	if got != want {
		t.Errorf("ExtractLyrics = %q, want %q", got, want)
	}
}

func TestExtractLyricsStopsAtEnd(t *testing.T) {
	txt := ": 0 1 0 before\nE\n: 0 1 0 after\n"
	if got := ExtractLyrics(txt); got != "before\n" {
		t.Errorf("ExtractLyrics = %q", got)
	}
}
