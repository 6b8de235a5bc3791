package app

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"General", "general"},
		{"Engineering Docs", "engineering-docs"},
		{"  Q3 -- Planning!  ", "q3-planning"},
		{"HR & Legal", "hr-legal"},
		{"продажи", ""},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := slugify(tc.in); got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"  spec v2.pdf ", "spec_v2.pdf"},
		{"../../etc/passwd", "passwd"},
		{"C:\\docs\\notes.txt", "notes.txt"},
		{"..hidden", "hidden"},
		{".pdf", ""},
		{"§§§", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeExtensionsDefaults(t *testing.T) {
	allowed := normalizeExtensions(nil)
	for _, ext := range []string{".pdf", ".epub", ".txt", ".md"} {
		if !allowed[ext] {
			t.Errorf("default set should allow %s", ext)
		}
	}
	if allowed[".exe"] {
		t.Error("default set should not allow .exe")
	}
}

func TestNormalizeExtensionsAddsDot(t *testing.T) {
	allowed := normalizeExtensions([]string{"PDF", " .TXT "})
	if !allowed[".pdf"] || !allowed[".txt"] {
		t.Errorf("normalized set missing entries: %v", allowed)
	}
	if len(allowed) != 2 {
		t.Errorf("expected 2 extensions, got %d", len(allowed))
	}
}
