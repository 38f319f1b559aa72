// Package media embeds catalog metadata into downloaded audio files so the
// songs show up properly in players and library scanners.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"github.com/cesargomez89/karasync/internal/domain"
)

// TagAudio writes artist, title, genre, language, year, lyrics and cover art
// into the audio file at path. The format is picked by extension; formats
// without a supported tag container are skipped without error.
func TagAudio(path string, song *domain.RemoteSong, lyrics, coverPath string) error {
	var cover []byte
	if coverPath != "" {
		data, err := os.ReadFile(coverPath)
		if err == nil {
			cover = data
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return tagMP3(path, song, lyrics, cover, coverMIME(coverPath))
	case ".flac":
		return tagFLAC(path, song, lyrics, cover, coverMIME(coverPath))
	default:
		return nil
	}
}

func tagMP3(path string, song *domain.RemoteSong, lyrics string, cover []byte, mime string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetArtist(song.Artist)
	tag.SetTitle(song.Title)
	if song.Genre != "" {
		tag.SetGenre(song.Genre)
	}
	if song.Year != nil {
		tag.SetYear(fmt.Sprintf("%d", *song.Year))
	}
	if song.Language != "" {
		tag.AddTextFrame("TLAN", id3v2.EncodingUTF8, song.Language)
	}
	if lyrics != "" {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "und",
			ContentDescriptor: "",
			Lyrics:            lyrics,
		})
	}
	if len(cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Picture:     cover,
		})
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save mp3 tag: %w", err)
	}
	return nil
}

func tagFLAC(path string, song *domain.RemoteSong, lyrics string, cover []byte, mime string) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse flac: %w", err)
	}

	// drop any previous comment and picture blocks, we rewrite both
	blocks := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment || block.Type == flac.Picture {
			continue
		}
		blocks = append(blocks, block)
	}
	f.Meta = blocks

	vc := flacvorbis.New()
	addComment(vc, flacvorbis.FIELD_ARTIST, song.Artist)
	addComment(vc, flacvorbis.FIELD_TITLE, song.Title)
	addComment(vc, flacvorbis.FIELD_GENRE, song.Genre)
	addComment(vc, "LANGUAGE", song.Language)
	if song.Year != nil {
		addComment(vc, flacvorbis.FIELD_DATE, fmt.Sprintf("%d", *song.Year))
	}
	addComment(vc, "LYRICS", lyrics)
	vcBlock := vc.Marshal()
	f.Meta = append(f.Meta, &vcBlock)

	if len(cover) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "", cover, mime)
		if err != nil {
			return fmt.Errorf("failed to build picture block: %w", err)
		}
		picBlock := pic.Marshal()
		f.Meta = append(f.Meta, &picBlock)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save flac: %w", err)
	}
	return nil
}

func addComment(vc *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	if value != "" {
		_ = vc.Add(field, value)
	}
}

func coverMIME(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
