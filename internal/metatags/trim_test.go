package metatags

import (
	"testing"
)

func TestTrimPointForms(t *testing.T) {
	cases := []struct {
		in     string
		frames bool
		value  int64
		out    string
	}{
		{"300", true, 300, "300"},
		{"12.345", false, 12345, "12.345"},
		{"12.3", false, 12300, "12.300"},
		{"0.5", false, 500, "0.500"},
		{"2:03.500", false, 123500, "2:03.500"},
		{"10:00.000", false, 600000, "10:00.000"},
	}
	for _, tc := range cases {
		p, err := parseTrimPoint(tc.in)
		if err != nil {
			t.Errorf("parseTrimPoint(%q) failed: %v", tc.in, err)
			continue
		}
		if p.Frames != tc.frames || p.Value != tc.value {
			t.Errorf("parseTrimPoint(%q) = %+v, want frames=%v value=%d", tc.in, p, tc.frames, tc.value)
		}
		if got := p.String(); got != tc.out {
			t.Errorf("String(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestTrimPointInvalid(t *testing.T) {
	for _, in := range []string{"-5", "abc", "1:xx.000", "1.2.3"} {
		if _, err := parseTrimPoint(in); err == nil {
			t.Errorf("parseTrimPoint(%q) should fail", in)
		}
	}
}

func TestParseTrim(t *testing.T) {
	trim, err := parseTrim("300-")
	if err != nil {
		t.Fatalf("parseTrim failed: %v", err)
	}
	if !trim.Start.Set || trim.End.Set {
		t.Errorf("Expected open end, got %+v", trim)
	}
	if trim.String() != "300-" {
		t.Errorf("String = %q", trim.String())
	}

	trim, err = parseTrim("-1:30.000")
	if err != nil {
		t.Fatalf("parseTrim failed: %v", err)
	}
	if trim.Start.Set || !trim.End.Set || trim.End.Millis() != 90000 {
		t.Errorf("Expected open start, got %+v", trim)
	}

	if _, err := parseTrim("-"); err == nil {
		t.Error("Expected error for empty trim")
	}
	if _, err := parseTrim("123"); err == nil {
		t.Error("Expected error for missing separator")
	}
}
