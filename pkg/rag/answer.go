package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"docchatai/pkg/ai"
	"docchatai/pkg/domain"
)

// User-safe result messages. They never name documents the user cannot read.
const (
	msgLoginRequired = "You need to be signed in to ask questions."

	msgNoAccessibleDocuments = "There are no documents you can read in this channel yet. " +
		"Upload a document or ask the owner to share one with you."

	msgNoAccessToSources = "The answer relies on sources you don't have access to. " +
		"Contact the document owner or your administrator to request access."

	msgGenerationFailed = "I encountered an error while answering your question. Please try again."
)

// AccessResolver computes the documents a user may read in a container.
type AccessResolver interface {
	AccessibleDocuments(ctx context.Context, container, userEmail string) ([]string, error)
}

// AnswerBuilder orchestrates grounded answering: resolve access, retrieve,
// prompt, generate, reconcile citations.
type AnswerBuilder struct {
	resolver  AccessResolver
	retriever Retriever
	generator ai.TextGenerator
}

// NewAnswerBuilder wires the pipeline collaborators.
func NewAnswerBuilder(resolver AccessResolver, retriever Retriever, generator ai.TextGenerator) *AnswerBuilder {
	return &AnswerBuilder{resolver: resolver, retriever: retriever, generator: generator}
}

// Answer runs the full pipeline for one question. It never returns an error:
// every collaborator failure is logged and converted into a safe textual
// result, so the caller can always render the Answer as-is.
func (b *AnswerBuilder) Answer(ctx context.Context, question, container, userEmail string) domain.Answer {
	userEmail = strings.TrimSpace(userEmail)
	if userEmail == "" {
		return b.result(question, container, msgLoginRequired, nil, false)
	}

	accessible, err := b.resolver.AccessibleDocuments(ctx, container, userEmail)
	if err != nil {
		slog.Error("access resolution failed",
			"container", container, "user", userEmail, "query", question, "error", err)
		return b.result(question, container, msgGenerationFailed, nil, false)
	}
	if len(accessible) == 0 {
		return b.result(question, container, msgNoAccessibleDocuments, nil, false)
	}

	chunks, err := b.retriever.Search(ctx, container, question)
	if err != nil {
		// Retrieval failure degrades to the placeholder path below.
		slog.Warn("retrieval failed",
			"container", container, "user", userEmail, "query", question, "error", err)
		chunks = nil
	}

	grounded := true
	docs := buildDocuments(chunks, accessible)
	if len(docs) == 0 {
		docs = placeholderDocuments(accessible)
		grounded = false
	}

	systemPrompt, userPrompt := buildPrompt(question, docs)
	text, err := b.generator.GenerateText(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("answer generation failed",
			"container", container, "user", userEmail, "query", question, "error", err)
		return b.result(question, container, msgGenerationFailed, nil, false)
	}

	reconciled := Reconcile(text, docs, accessible)
	if len(reconciled.UnknownMarkers) > 0 {
		slog.Warn("generated answer cited unknown document indices",
			"container", container, "markers", reconciled.UnknownMarkers)
	}
	if reconciled.Resolved > 0 && len(reconciled.Citations) == 0 {
		slog.Warn("all citations removed by access re-verification",
			"container", container, "user", userEmail)
		return b.result(question, container, msgNoAccessToSources, nil, false)
	}
	return b.result(question, container, text, reconciled.Citations, grounded)
}

func (b *AnswerBuilder) result(question, container, text string, citations []domain.Citation, grounded bool) domain.Answer {
	return domain.Answer{
		Question:  question,
		Channel:   container,
		Answer:    text,
		Citations: citations,
		Grounded:  grounded,
		CreatedAt: time.Now().UTC(),
	}
}
