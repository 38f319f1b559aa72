package metatags

import (
	"fmt"
	"strconv"
	"strings"
)

// TrimPoint is one endpoint of a video trim. An endpoint is given either as
// a frame count (bare integer), as seconds with millisecond precision, or as
// mm:ss.mmm; the two time forms are normalized to milliseconds. Frames are
// carried as frames since the frame rate is unknown at parse time. An unset
// endpoint means "from/to the natural boundary".
type TrimPoint struct {
	Set    bool
	Frames bool
	Value  int64 // frame count, or milliseconds
}

// Millis returns the endpoint in milliseconds. Only valid for time points.
func (p TrimPoint) Millis() int64 { return p.Value }

func (p TrimPoint) String() string {
	if !p.Set {
		return ""
	}
	if p.Frames {
		return strconv.FormatInt(p.Value, 10)
	}
	ms := p.Value
	if ms >= 60_000 {
		mins := ms / 60_000
		rest := ms % 60_000
		return fmt.Sprintf("%d:%02d.%03d", mins, rest/1000, rest%1000)
	}
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

func parseTrimPoint(value string) (TrimPoint, error) {
	if value == "" {
		return TrimPoint{}, nil
	}
	if mins, rest, ok := strings.Cut(value, ":"); ok {
		m, err := strconv.ParseInt(mins, 10, 64)
		if err != nil || m < 0 {
			return TrimPoint{}, fmt.Errorf("invalid minutes in trim point %q", value)
		}
		secs, err := parseSeconds(rest)
		if err != nil {
			return TrimPoint{}, fmt.Errorf("invalid seconds in trim point %q", value)
		}
		return TrimPoint{Set: true, Value: m*60_000 + secs}, nil
	}
	if strings.Contains(value, ".") {
		secs, err := parseSeconds(value)
		if err != nil {
			return TrimPoint{}, fmt.Errorf("invalid trim point %q", value)
		}
		return TrimPoint{Set: true, Value: secs}, nil
	}
	frames, err := strconv.ParseInt(value, 10, 64)
	if err != nil || frames < 0 {
		return TrimPoint{}, fmt.Errorf("invalid trim point %q", value)
	}
	return TrimPoint{Set: true, Frames: true, Value: frames}, nil
}

// parseSeconds converts "ss" or "ss.mmm" to milliseconds.
func parseSeconds(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid seconds %q", s)
	}
	ms := secs * 1000
	if frac != "" {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		m, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fraction %q", s)
		}
		ms += m
	}
	return ms, nil
}

// Trim bounds a video to start-end. Either endpoint may be empty.
type Trim struct {
	Start TrimPoint
	End   TrimPoint
}

func (t Trim) String() string {
	return t.Start.String() + "-" + t.End.String()
}

func parseTrim(value string) (*Trim, error) {
	start, end, ok := strings.Cut(value, "-")
	if !ok {
		return nil, fmt.Errorf("expected 'start-end'")
	}
	s, err := parseTrimPoint(start)
	if err != nil {
		return nil, err
	}
	e, err := parseTrimPoint(end)
	if err != nil {
		return nil, err
	}
	if !s.Set && !e.Set {
		return nil, fmt.Errorf("at least one endpoint required")
	}
	return &Trim{Start: s, End: e}, nil
}
