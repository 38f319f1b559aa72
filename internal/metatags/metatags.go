// Package metatags parses the resource directives embedded in a song's text
// file. A directive string is a comma-separated list of key=value tokens,
// e.g. "a=xPU8OAjjS4k,co=example.com/cover.jpg,co-crop=0-0-1200-1200".
// Parsing is total and deterministic: malformed tokens are collected as
// per-token errors and never abort the rest of the parse.
package metatags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cesargomez89/karasync/internal/domain"
)

// Commas separate tokens, so they are percent-escaped inside values.
const commaEscape = "%2C"

// EncodeValue escapes characters with special meaning in the tag syntax.
func EncodeValue(v string) string {
	return strings.ReplaceAll(v, ",", commaEscape)
}

// DecodeValue reverses EncodeValue.
func DecodeValue(v string) string {
	return strings.ReplaceAll(v, commaEscape, ",")
}

// defaultProtocol is assumed for sources without an explicit protocol tag.
const defaultProtocol = "https"

// fanartHost serves bare image ids without a host part.
const fanartHost = "images.fanart.tv/fanart"

// VideoCrop removes symmetric margins from a video: left-right-top-bottom.
// This encoding is distinct from ImageCrop and must not be confused with it.
type VideoCrop struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

func (c VideoCrop) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", c.Left, c.Right, c.Top, c.Bottom)
}

func parseVideoCrop(value string) (*VideoCrop, error) {
	n, err := splitInts(value, 4)
	if err != nil {
		return nil, err
	}
	return &VideoCrop{Left: n[0], Right: n[1], Top: n[2], Bottom: n[3]}, nil
}

// ImageCrop selects an explicit rectangle from an image:
// left-top-width-height.
type ImageCrop struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (c ImageCrop) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", c.Left, c.Top, c.Width, c.Height)
}

// Right and Bottom are the exclusive far edges of the crop rectangle.
func (c ImageCrop) Right() int  { return c.Left + c.Width }
func (c ImageCrop) Bottom() int { return c.Top + c.Height }

func parseImageCrop(value string) (*ImageCrop, error) {
	n, err := splitInts(value, 4)
	if err != nil {
		return nil, err
	}
	return &ImageCrop{Left: n[0], Top: n[1], Width: n[2], Height: n[3]}, nil
}

// Resize scales an image to width-height. A single integer means a square.
type Resize struct {
	Width  int
	Height int
}

func (r Resize) String() string {
	if r.Width == r.Height {
		return strconv.Itoa(r.Width)
	}
	return fmt.Sprintf("%d-%d", r.Width, r.Height)
}

func parseResize(value string) (*Resize, error) {
	if !strings.Contains(value, "-") {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("expected a non-negative integer")
		}
		return &Resize{Width: n, Height: n}, nil
	}
	n, err := splitInts(value, 2)
	if err != nil {
		return nil, err
	}
	return &Resize{Width: n[0], Height: n[1]}, nil
}

// ImageTags holds the directives for the cover or background image.
//
// The processing order is asymmetric: covers are resized before cropping so
// the end result keeps a square aspect, while backgrounds are cropped before
// resizing so they fit the frame exactly.
type ImageTags struct {
	Source       string
	Protocol     string // defaults to https
	Rotate       *float64
	Crop         *ImageCrop
	Resize       *Resize
	Contrast     float64
	ContrastAuto bool
}

// SourceURL resolves the raw source to a full URL.
func (t *ImageTags) SourceURL() string {
	proto := t.Protocol
	if proto == "" {
		proto = defaultProtocol
	}
	switch {
	case strings.Contains(t.Source, "://"):
		return t.Source
	case strings.Contains(t.Source, "/"):
		return proto + "://" + t.Source
	default:
		return proto + "://" + fanartHost + "/" + t.Source
	}
}

// NeedsProcessing reports whether any post-download image work is requested.
func (t *ImageTags) NeedsProcessing() bool {
	return t.Rotate != nil || t.Crop != nil || t.Resize != nil ||
		t.ContrastAuto || t.Contrast != 0
}

// Medley marks the start and end beat of a song's medley section.
type Medley struct {
	Start int
	End   int
}

func (m Medley) String() string {
	return fmt.Sprintf("%d-%d", m.Start, m.End)
}

func parseMedley(value string) (*Medley, error) {
	n, err := splitInts(value, 2)
	if err != nil {
		return nil, err
	}
	return &Medley{Start: n[0], End: n[1]}, nil
}

// MetaTags is the structured directive set parsed from a song's text.
type MetaTags struct {
	Audio         string
	AudioProtocol string
	Video         string
	VideoProtocol string
	VideoTrim     *Trim
	VideoCrop     *VideoCrop
	Cover         *ImageTags
	Background    *ImageTags
	Player1       string
	Player2       string
	Preview       *float64
	Medley        *Medley

	// Unknown keeps unrecognized tokens verbatim so forward-compatible
	// catalog content survives a re-serialization round trip.
	Unknown []string
}

// Parse decodes a directive string. It never fails; malformed tokens are
// returned as ParseErrors alongside whatever could be parsed.
func Parse(raw string) (*MetaTags, []*domain.ParseError) {
	tags := &MetaTags{}
	if !strings.Contains(raw, "=") {
		// probably a regular file name, not a directive string
		return tags, nil
	}
	var errs []*domain.ParseError
	fail := func(key, value, reason string) {
		errs = append(errs, &domain.ParseError{Key: key, Value: value, Reason: reason})
	}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			fail("", pair, "missing key or value")
			continue
		}
		value = DecodeValue(value)
		if err := tags.parsePair(strings.ToLower(key), value); err != nil {
			if _, known := err.(*unknownKeyError); known {
				tags.Unknown = append(tags.Unknown, pair)
			} else {
				fail(strings.ToLower(key), value, err.Error())
			}
		}
	}
	return tags, errs
}

type unknownKeyError struct{}

func (*unknownKeyError) Error() string { return "unknown key" }

func (t *MetaTags) parsePair(key, value string) error {
	switch key {
	case "a":
		if err := checkSourceValue(value); err != nil {
			return err
		}
		t.Audio = value
	case "a-protocol":
		t.AudioProtocol = value
	case "v":
		if err := checkSourceValue(value); err != nil {
			return err
		}
		t.Video = value
	case "v-protocol":
		t.VideoProtocol = value
	case "v-trim":
		trim, err := parseTrim(value)
		if err != nil {
			return err
		}
		t.VideoTrim = trim
	case "v-crop":
		crop, err := parseVideoCrop(value)
		if err != nil {
			return err
		}
		t.VideoCrop = crop
	case "co":
		t.Cover = &ImageTags{Source: value, Protocol: defaultProtocol}
	case "co-protocol":
		if t.Cover != nil {
			t.Cover.Protocol = value
		}
	case "co-rotate":
		return t.withCover(func(c *ImageTags) error {
			deg, err := parseFloat(value)
			if err != nil {
				return err
			}
			c.Rotate = &deg
			return nil
		})
	case "co-crop":
		return t.withCover(func(c *ImageTags) error {
			crop, err := parseImageCrop(value)
			if err != nil {
				return err
			}
			c.Crop = crop
			return nil
		})
	case "co-resize":
		return t.withCover(func(c *ImageTags) error {
			resize, err := parseResize(value)
			if err != nil {
				return err
			}
			c.Resize = resize
			return nil
		})
	case "co-contrast":
		return t.withCover(func(c *ImageTags) error {
			if value == "auto" {
				c.ContrastAuto = true
				return nil
			}
			f, err := parseFloat(value)
			if err != nil {
				return err
			}
			c.Contrast = f
			return nil
		})
	case "bg":
		t.Background = &ImageTags{Source: value, Protocol: defaultProtocol}
	case "bg-protocol":
		if t.Background != nil {
			t.Background.Protocol = value
		}
	case "bg-crop":
		return t.withBackground(func(b *ImageTags) error {
			crop, err := parseImageCrop(value)
			if err != nil {
				return err
			}
			b.Crop = crop
			return nil
		})
	case "bg-resize":
		return t.withBackground(func(b *ImageTags) error {
			resize, err := parseResize(value)
			if err != nil {
				return err
			}
			b.Resize = resize
			return nil
		})
	case "p1":
		t.Player1 = value
	case "p2":
		t.Player2 = value
	case "preview":
		secs, err := parseFloat(value)
		if err != nil {
			return err
		}
		t.Preview = &secs
	case "medley":
		medley, err := parseMedley(value)
		if err != nil {
			return err
		}
		t.Medley = medley
	default:
		return &unknownKeyError{}
	}
	return nil
}

func (t *MetaTags) withCover(fn func(*ImageTags) error) error {
	if t.Cover == nil {
		return fmt.Errorf("no preceding co tag")
	}
	return fn(t.Cover)
}

func (t *MetaTags) withBackground(fn func(*ImageTags) error) error {
	if t.Background == nil {
		return fmt.Errorf("no preceding bg tag")
	}
	return fn(t.Background)
}

// AudioResource is the source to fetch audio from. If only a video
// directive is present it supplies both audio and video; an explicit audio
// directive overrides it.
func (t *MetaTags) AudioResource() string {
	if t.Audio != "" {
		return t.Audio
	}
	return t.Video
}

// VideoResource is the source to fetch video from, if any.
func (t *MetaTags) VideoResource() string {
	return t.Video
}

// IsAudioOnly reports whether a resource is explicitly set for audio only.
func (t *MetaTags) IsAudioOnly() bool {
	return t.Audio != "" && t.Video == ""
}

// AudioURL resolves the audio source with its protocol. Short platform ids
// are returned as-is; the fetcher resolves those itself.
func (t *MetaTags) AudioURL() string {
	return sourceURL(t.AudioResource(), t.AudioProtocol)
}

func (t *MetaTags) VideoURL() string {
	return sourceURL(t.Video, t.VideoProtocol)
}

func sourceURL(source, protocol string) string {
	if source == "" || !strings.Contains(source, "/") {
		return source
	}
	if protocol == "" {
		protocol = defaultProtocol
	}
	return protocol + "://" + source
}

// PlayerName returns the duet name for player 1 or 2, defaulting to the
// literal "P1"/"P2".
func (t *MetaTags) PlayerName(n int) string {
	switch n {
	case 1:
		if t.Player1 != "" {
			return t.Player1
		}
		return "P1"
	case 2:
		if t.Player2 != "" {
			return t.Player2
		}
		return "P2"
	}
	return ""
}

// IsDuet reports whether duet player names are present.
func (t *MetaTags) IsDuet() bool {
	return t.Player1 != "" || t.Player2 != ""
}

// String renders the canonical serialization. Parsing the result yields an
// equal directive set.
func (t *MetaTags) String() string {
	var tokens []string
	add := func(key, value string) {
		if value != "" {
			tokens = append(tokens, key+"="+EncodeValue(value))
		}
	}
	add("a", t.Audio)
	if t.Audio != "" && t.AudioProtocol != "" && t.AudioProtocol != defaultProtocol {
		add("a-protocol", t.AudioProtocol)
	}
	add("v", t.Video)
	if t.Video != "" && t.VideoProtocol != "" && t.VideoProtocol != defaultProtocol {
		add("v-protocol", t.VideoProtocol)
	}
	if t.VideoTrim != nil {
		add("v-trim", t.VideoTrim.String())
	}
	if t.VideoCrop != nil {
		add("v-crop", t.VideoCrop.String())
	}
	tokens = appendImageTokens(tokens, "co", t.Cover, true)
	tokens = appendImageTokens(tokens, "bg", t.Background, false)
	add("p1", t.Player1)
	add("p2", t.Player2)
	if t.Preview != nil {
		add("preview", formatFloat(*t.Preview))
	}
	if t.Medley != nil {
		add("medley", t.Medley.String())
	}
	tokens = append(tokens, t.Unknown...)
	return strings.Join(tokens, ",")
}

func appendImageTokens(tokens []string, prefix string, img *ImageTags, isCover bool) []string {
	if img == nil {
		return tokens
	}
	tokens = append(tokens, prefix+"="+EncodeValue(img.Source))
	if img.Protocol != "" && img.Protocol != defaultProtocol {
		tokens = append(tokens, prefix+"-protocol="+img.Protocol)
	}
	if isCover && img.Rotate != nil {
		tokens = append(tokens, prefix+"-rotate="+formatFloat(*img.Rotate))
	}
	if img.Crop != nil {
		tokens = append(tokens, prefix+"-crop="+img.Crop.String())
	}
	if img.Resize != nil {
		tokens = append(tokens, prefix+"-resize="+img.Resize.String())
	}
	if isCover {
		if img.ContrastAuto {
			tokens = append(tokens, prefix+"-contrast=auto")
		} else if img.Contrast != 0 {
			tokens = append(tokens, prefix+"-contrast="+formatFloat(img.Contrast))
		}
	}
	return tokens
}

func checkSourceValue(value string) error {
	if strings.Contains(value, ":") {
		return fmt.Errorf("must not contain ':'")
	}
	return nil
}

func splitInts(value string, want int) ([]int, error) {
	parts := strings.Split(value, "-")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d integers separated by '-'", want)
	}
	out := make([]int, want)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("expected %d non-negative integers separated by '-'", want)
		}
		out[i] = n
	}
	return out, nil
}

func parseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number")
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
