// Package rag implements access-restricted grounded answering: retrieval,
// prompt construction, generation, and citation reconciliation.
package rag

import (
	"net/url"
	"strings"
)

// CleanTitle normalizes a retrieved document title so it can be compared
// against inventory file names: trims whitespace, URL-decodes percent
// escapes, and strips leading path components.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if decoded, err := url.QueryUnescape(title); err == nil {
		title = decoded
	}
	if i := strings.LastIndexAny(title, "/\\"); i >= 0 {
		title = title[i+1:]
	}
	return strings.TrimSpace(title)
}

// SameDocument reports whether a title from retrieval or generation output
// refers to the given document name. The rule is case-insensitive exact or
// basename comparison; it is the single matching rule used everywhere a
// title is checked against the accessible set.
func SameDocument(title, fileName string) bool {
	if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(fileName)) {
		return true
	}
	return strings.EqualFold(CleanTitle(title), CleanTitle(fileName))
}

// matchAccessible resolves a title to its canonical accessible file name.
func matchAccessible(title string, accessible []string) (string, bool) {
	for _, fileName := range accessible {
		if SameDocument(title, fileName) {
			return fileName, true
		}
	}
	return "", false
}
