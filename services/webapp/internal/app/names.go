package app

import (
	"path/filepath"
	"strings"
)

var defaultAllowedExtensions = []string{".pdf", ".epub", ".txt", ".md"}

// slugify turns a channel display name into its container key: lowercase,
// runs of non-alphanumeric characters collapse to a single hyphen, leading
// and trailing hyphens trimmed.
func slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// sanitizeFilename strips any path component and reduces the base name to a
// safe ASCII subset. Runs of disallowed characters become one underscore.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = name[strings.LastIndexAny(name, "/\\")+1:]

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return ""
	}
	// A bare extension is not a usable name.
	if strings.TrimSuffix(cleaned, filepath.Ext(cleaned)) == "" {
		return ""
	}
	return cleaned
}

// normalizeExtensions lowercases and dot-prefixes the configured allowed
// extensions, falling back to the default document set.
func normalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = defaultAllowedExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return allowed
}
