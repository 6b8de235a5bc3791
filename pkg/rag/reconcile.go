package rag

import (
	"regexp"
	"strconv"

	"docchatai/pkg/domain"
)

var markerPattern = regexp.MustCompile(`\[doc(\d+)\]`)

// ReconcileResult carries the verified citations plus the bookkeeping the
// caller needs for logging and the no-access decision.
type ReconcileResult struct {
	// Citations that resolved to a prompt document and passed the final
	// access check, in first-marker order.
	Citations []domain.Citation
	// Resolved reports how many citations existed before the access check.
	Resolved int
	// UnknownMarkers lists marker numbers with no matching document.
	UnknownMarkers []int
}

// Reconcile extracts [docN] markers from generated text, resolves each
// number against the prompt documents, and re-verifies every resolved
// source against the accessible set. It is a pure function of its inputs.
//
// The re-verification is the final authorization gate: even though prompt
// construction already filtered inputs, a source name echoed through
// generation may differ in formatting from the canonical accessible name,
// and nothing inaccessible may ever reach the caller.
func Reconcile(answerText string, docs []Document, accessible []string) ReconcileResult {
	byIndex := make(map[int]Document, len(docs))
	for _, doc := range docs {
		byIndex[doc.Index] = doc
	}

	var result ReconcileResult
	seen := make(map[int]bool)
	for _, match := range markerPattern.FindAllStringSubmatch(answerText, -1) {
		number, err := strconv.Atoi(match[1])
		if err != nil || seen[number] {
			continue
		}
		seen[number] = true
		doc, ok := byIndex[number]
		if !ok {
			result.UnknownMarkers = append(result.UnknownMarkers, number)
			continue
		}
		result.Resolved++
		source, ok := matchAccessible(doc.Source, accessible)
		if !ok {
			continue
		}
		result.Citations = append(result.Citations, domain.Citation{
			Source:  source,
			Content: truncateAtSentence(doc.Content, citationSnippetBudget),
			Index:   doc.Index,
		})
	}
	return result
}
