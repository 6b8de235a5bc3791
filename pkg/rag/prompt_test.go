package rag

import (
	"strings"
	"testing"
)

func TestBuildDocumentsDeduplicatesAndFilters(t *testing.T) {
	chunks := []RetrievedChunk{
		{Title: "spec.pdf", Content: "part one"},
		{Title: "docs/SPEC.pdf", Content: "part two"},
		{Title: "secret.pdf", Content: "hidden"},
		{Title: "notes.pdf", Content: "notes"},
	}
	docs := buildDocuments(chunks, []string{"spec.pdf", "notes.pdf"})
	if len(docs) != 2 {
		t.Fatalf("docs = %+v, want 2", docs)
	}
	if docs[0].Index != 1 || docs[0].Source != "spec.pdf" {
		t.Fatalf("first doc = %+v", docs[0])
	}
	if !strings.Contains(docs[0].Content, "part one") || !strings.Contains(docs[0].Content, "part two") {
		t.Fatalf("chunks of the same title should be concatenated, got %q", docs[0].Content)
	}
	if docs[1].Index != 2 || docs[1].Source != "notes.pdf" {
		t.Fatalf("second doc = %+v", docs[1])
	}
	for _, doc := range docs {
		if strings.Contains(doc.Content, "hidden") {
			t.Fatal("inaccessible chunk reached the prompt documents")
		}
	}
}

func TestBuildDocumentsSkipsEmptyContent(t *testing.T) {
	docs := buildDocuments([]RetrievedChunk{{Title: "spec.pdf", Content: "   "}}, []string{"spec.pdf"})
	if len(docs) != 0 {
		t.Fatalf("docs = %+v, want none", docs)
	}
}

func TestPlaceholderDocuments(t *testing.T) {
	docs := placeholderDocuments([]string{"a.pdf", "b.pdf"})
	if len(docs) != 2 {
		t.Fatalf("docs = %+v, want 2", docs)
	}
	if docs[1].Index != 2 || docs[1].Source != "b.pdf" {
		t.Fatalf("second placeholder = %+v", docs[1])
	}
	if docs[0].Content != placeholderContent {
		t.Fatalf("placeholder content = %q", docs[0].Content)
	}
}

func TestBuildPromptEnumeratesDocuments(t *testing.T) {
	docs := []Document{
		{Index: 1, Source: "spec.pdf", Content: "alpha"},
		{Index: 2, Source: "notes.pdf", Content: "beta"},
	}
	system, user := buildPrompt("what is the budget", docs)
	if !strings.Contains(system, "[docN]") {
		t.Fatalf("system prompt should explain the marker format: %q", system)
	}
	for _, want := range []string{"[doc1] spec.pdf", "[doc2] notes.pdf", "alpha", "beta", "Question: what is the budget"} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestTruncateAtSentence(t *testing.T) {
	short := "Short text."
	if got := truncateAtSentence(short, 100); got != short {
		t.Fatalf("short text should be untouched, got %q", got)
	}

	text := strings.Repeat("x", 60) + ". " + strings.Repeat("y", 60)
	got := truncateAtSentence(text, 100)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("truncated text should carry the marker, got %q", got)
	}
	// The period sits past the midpoint of the budget, so the cut lands there.
	if want := strings.Repeat("x", 60) + "." + truncationMarker; got != want {
		t.Fatalf("cut = %q, want sentence-boundary cut", got)
	}

	// No usable sentence boundary: hard cut at the budget.
	noPeriod := strings.Repeat("z", 200)
	got = truncateAtSentence(noPeriod, 100)
	if got != strings.Repeat("z", 100)+truncationMarker {
		t.Fatalf("hard cut = %q", got)
	}
}
