package rag

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeResolver struct {
	docs  []string
	err   error
	calls atomic.Int32
}

func (f *fakeResolver) AccessibleDocuments(context.Context, string, string) ([]string, error) {
	f.calls.Add(1)
	return f.docs, f.err
}

type fakeRetriever struct {
	chunks []RetrievedChunk
	err    error
	calls  atomic.Int32
}

func (f *fakeRetriever) Search(context.Context, string, string) ([]RetrievedChunk, error) {
	f.calls.Add(1)
	return f.chunks, f.err
}

type fakeGenerator struct {
	text       string
	err        error
	calls      atomic.Int32
	lastPrompt string
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	f.calls.Add(1)
	f.lastPrompt = userPrompt
	return f.text, f.err
}

func newBuilder(resolver *fakeResolver, retriever *fakeRetriever, generator *fakeGenerator) *AnswerBuilder {
	return NewAnswerBuilder(resolver, retriever, generator)
}

func TestAnswerRejectsAnonymousWithoutAnyCalls(t *testing.T) {
	resolver := &fakeResolver{docs: []string{"spec.pdf"}}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{text: "hi"}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "  ")
	if answer.Answer != msgLoginRequired {
		t.Fatalf("answer = %q, want login message", answer.Answer)
	}
	if resolver.calls.Load() != 0 || retriever.calls.Load() != 0 || generator.calls.Load() != 0 {
		t.Fatal("no collaborator should be called for anonymous users")
	}
}

func TestAnswerShortCircuitsWithoutAccessibleDocuments(t *testing.T) {
	resolver := &fakeResolver{docs: []string{}}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{text: "hi"}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "alice@x.com")
	if answer.Answer != msgNoAccessibleDocuments {
		t.Fatalf("answer = %q, want no-accessible-documents message", answer.Answer)
	}
	if retriever.calls.Load() != 0 || generator.calls.Load() != 0 {
		t.Fatal("retrieval and generation must be skipped when nothing is accessible")
	}
}

func TestAnswerCitationsNeverIncludeInaccessibleSources(t *testing.T) {
	resolver := &fakeResolver{docs: []string{"spec.pdf"}}
	retriever := &fakeRetriever{chunks: []RetrievedChunk{
		{Title: "spec.pdf", Content: "The budget is 10k."},
		{Title: "secret.pdf", Content: "Restricted figures."},
	}}
	generator := &fakeGenerator{text: "The budget is 10k [doc1], see also [doc2]."}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "what is the budget", "eng", "bob@x.com")
	if !answer.Grounded {
		t.Fatal("retrieval produced usable content, answer should be grounded")
	}
	if len(answer.Citations) != 1 || answer.Citations[0].Source != "spec.pdf" {
		t.Fatalf("citations = %+v, want spec.pdf only", answer.Citations)
	}
	if strings.Contains(generator.lastPrompt, "Restricted figures") {
		t.Fatal("inaccessible content reached the prompt")
	}
	for _, c := range answer.Citations {
		if strings.Contains(c.Source, "secret") || strings.Contains(c.Content, "Restricted") {
			t.Fatal("inaccessible source leaked into citations")
		}
	}
}

func TestAnswerFallsBackToPlaceholdersOnRetrievalFailure(t *testing.T) {
	resolver := &fakeResolver{docs: []string{"spec.pdf", "notes.pdf"}}
	retriever := &fakeRetriever{err: errors.New("index unreachable")}
	generator := &fakeGenerator{text: "The documents do not contain enough information."}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "alice@x.com")
	if answer.Grounded {
		t.Fatal("placeholder answers must be marked ungrounded")
	}
	if generator.calls.Load() != 1 {
		t.Fatal("generator should still run against placeholder documents")
	}
	if !strings.Contains(generator.lastPrompt, placeholderContent) {
		t.Fatalf("prompt should carry placeholder content:\n%s", generator.lastPrompt)
	}
	if !strings.Contains(generator.lastPrompt, "[doc2] notes.pdf") {
		t.Fatalf("every accessible document should appear as a placeholder:\n%s", generator.lastPrompt)
	}
}

func TestAnswerEmptyRetrievalIsUngrounded(t *testing.T) {
	resolver := &fakeResolver{docs: []string{"spec.pdf"}}
	retriever := &fakeRetriever{chunks: nil}
	generator := &fakeGenerator{text: "Nothing to cite."}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "alice@x.com")
	if answer.Grounded {
		t.Fatal("empty retrieval must yield an ungrounded answer")
	}
	if answer.Answer != "Nothing to cite." {
		t.Fatalf("answer = %q", answer.Answer)
	}
}

func TestAnswerGenerationFailureReturnsSafeMessage(t *testing.T) {
	resolver := &fakeResolver{docs: []string{"spec.pdf"}}
	retriever := &fakeRetriever{chunks: []RetrievedChunk{{Title: "spec.pdf", Content: "text"}}}
	generator := &fakeGenerator{err: errors.New("model overloaded")}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "alice@x.com")
	if answer.Answer != msgGenerationFailed {
		t.Fatalf("answer = %q, want generic failure message", answer.Answer)
	}
	if len(answer.Citations) != 0 {
		t.Fatalf("citations = %+v, want none on failure", answer.Citations)
	}
	if strings.Contains(answer.Answer, "overloaded") {
		t.Fatal("internal error detail leaked to the user")
	}
}

func TestAnswerResolverFailureReturnsSafeMessage(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("store down")}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{text: "hi"}
	builder := newBuilder(resolver, retriever, generator)

	answer := builder.Answer(context.Background(), "question", "eng", "alice@x.com")
	if answer.Answer != msgGenerationFailed {
		t.Fatalf("answer = %q, want generic failure message", answer.Answer)
	}
	if retriever.calls.Load() != 0 || generator.calls.Load() != 0 {
		t.Fatal("pipeline must stop when access cannot be resolved")
	}
}
