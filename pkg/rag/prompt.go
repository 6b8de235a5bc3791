package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Per-document character budget inside the grounding prompt.
	documentPromptBudget = 4000
	// Shorter budget for citation snippets returned to the caller.
	citationSnippetBudget = 240

	truncationMarker = " …[truncated]"

	placeholderContent = "(no content extracted from this document)"
)

// Document is one accessible document admitted to the grounding prompt,
// carrying the stable index its [docN] marker refers to.
type Document struct {
	Index   int
	Source  string
	Content string
}

// buildDocuments deduplicates retrieved chunks by cleaned title, concatenates
// content per title, keeps only titles matching the accessible set, and
// assigns indices in first-seen order. Source is always the canonical
// accessible file name, never the echoed retrieval title.
func buildDocuments(chunks []RetrievedChunk, accessible []string) []Document {
	type pending struct {
		source  string
		content strings.Builder
	}
	order := make([]string, 0, len(chunks))
	byTitle := make(map[string]*pending, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		source, ok := matchAccessible(chunk.Title, accessible)
		if !ok {
			continue
		}
		key := strings.ToLower(CleanTitle(chunk.Title))
		entry, seen := byTitle[key]
		if !seen {
			entry = &pending{source: source}
			byTitle[key] = entry
			order = append(order, key)
		}
		if entry.content.Len() > 0 {
			entry.content.WriteString("\n\n")
		}
		entry.content.WriteString(chunk.Content)
	}
	docs := make([]Document, 0, len(order))
	for i, key := range order {
		entry := byTitle[key]
		docs = append(docs, Document{
			Index:   i + 1,
			Source:  entry.source,
			Content: entry.content.String(),
		})
	}
	return docs
}

// placeholderDocuments stands in for retrieval output when the search step
// failed or matched nothing, so the user still gets an answer grounded in
// nothing rather than a hard failure.
func placeholderDocuments(accessible []string) []Document {
	docs := make([]Document, 0, len(accessible))
	for i, fileName := range accessible {
		docs = append(docs, Document{
			Index:   i + 1,
			Source:  fileName,
			Content: placeholderContent,
		})
	}
	return docs
}

const answerSystemPrompt = "You are a careful assistant answering questions about shared documents. " +
	"Answer only from the documents provided in the prompt. " +
	"Cite every document whose content you use with its [docN] marker, and cite all relevant documents, not just one. " +
	"If the documents do not contain the answer, say the available documents do not contain enough information."

// buildPrompt enumerates each document's (truncated) content under its index
// and appends the question.
func buildPrompt(question string, docs []Document) (systemPrompt, userPrompt string) {
	var sb strings.Builder
	sb.WriteString("Documents:\n\n")
	for _, doc := range docs {
		fmt.Fprintf(&sb, "[doc%d] %s\n", doc.Index, doc.Source)
		sb.WriteString(truncateAtSentence(doc.Content, documentPromptBudget))
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Question: %s\n", question)
	return answerSystemPrompt, sb.String()
}

// truncateAtSentence limits text to budget bytes, preferring to cut at the
// last period past the midpoint of the budget, and appends a marker when cut.
func truncateAtSentence(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	for budget > 0 && !utf8.RuneStart(text[budget]) {
		budget--
	}
	window := text[:budget]
	if cut := strings.LastIndexByte(window, '.'); cut > budget/2 {
		return text[:cut+1] + truncationMarker
	}
	return window + truncationMarker
}
