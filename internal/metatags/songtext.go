package metatags

import (
	"strings"
)

// ExtractLyrics reduces a song text to its plain lyric lines, dropping the
// header, note timing and pitch columns. Line breaks in the notes become
// line breaks in the lyrics.
func ExtractLyrics(txt string) string {
	var b strings.Builder
	var line strings.Builder
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
		line.Reset()
	}
	for _, raw := range strings.Split(txt, "\n") {
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		switch raw[0] {
		case ':', '*', 'F', 'R', 'G':
			// ": start len pitch text", keep the text
			fields := strings.SplitN(raw, " ", 5)
			if len(fields) == 5 {
				line.WriteString(fields[4])
			}
		case '-':
			flush()
		case 'E':
			flush()
			return b.String()
		}
	}
	flush()
	return b.String()
}

// ExtractFromText finds the directive string inside a song text. Directives
// travel in the #VIDEO header line; a plain file name there parses to an
// empty tag set.
func ExtractFromText(txt string) string {
	for _, line := range strings.Split(txt, "\n") {
		line = strings.TrimPrefix(strings.TrimSpace(line), "\uFEFF")
		if !strings.HasPrefix(line, "#") {
			// header is over
			return ""
		}
		key, value, ok := strings.Cut(line[1:], ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), "VIDEO") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
