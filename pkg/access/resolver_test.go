package access

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"docchatai/pkg/domain"
	"docchatai/pkg/store"
)

type fakeInventory struct {
	objects map[string][]string
	err     error
}

func (f *fakeInventory) ListObjects(_ context.Context, container string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.objects[container], nil
}

func newTestResolver(t *testing.T, inventory *fakeInventory) (*Resolver, *store.MemoryAccessStore) {
	t.Helper()
	records := store.NewMemoryAccessStore("General")
	return NewResolver(inventory, records, "general"), records
}

func TestOpenDocumentVisibleToEveryUser(t *testing.T) {
	inventory := &fakeInventory{objects: map[string][]string{"eng": {"spec.pdf"}}}
	resolver, records := newTestResolver(t, inventory)
	if err := records.Upsert("eng", "spec.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "bob@x.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"spec.pdf"}) {
		t.Fatalf("documents = %v, want [spec.pdf]", got)
	}
}

func TestPrivateDocumentVisibleOnlyToListedUser(t *testing.T) {
	inventory := &fakeInventory{objects: map[string][]string{"eng": {"private.pdf"}}}
	resolver, records := newTestResolver(t, inventory)
	if err := records.Upsert("eng", "private.pdf", "Engineering", domain.LevelPrivate, []string{"alice@x.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "carol@x.com")
	if err != nil {
		t.Fatalf("resolve carol: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("carol should see nothing, got %v", got)
	}

	got, err = resolver.AccessibleDocuments(context.Background(), "eng", "Alice@X.com")
	if err != nil {
		t.Fatalf("resolve alice: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"private.pdf"}) {
		t.Fatalf("alice should see private.pdf, got %v", got)
	}
}

func TestEmptyUserGetsEmptySet(t *testing.T) {
	inventory := &fakeInventory{objects: map[string][]string{"eng": {"spec.pdf"}}}
	resolver, records := newTestResolver(t, inventory)
	if err := records.Upsert("eng", "spec.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "  ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("anonymous user should see nothing, got %v", got)
	}
}

func TestMissingRecordIsFailClosed(t *testing.T) {
	inventory := &fakeInventory{objects: map[string][]string{
		"eng":     {"orphan.pdf"},
		"general": {"handbook.pdf"},
	}}
	resolver, _ := newTestResolver(t, inventory)

	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "alice@x.com")
	if err != nil {
		t.Fatalf("resolve eng: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unrecorded document outside the default container should be hidden, got %v", got)
	}

	got, err = resolver.AccessibleDocuments(context.Background(), "general", "alice@x.com")
	if err != nil {
		t.Fatalf("resolve general: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"handbook.pdf"}) {
		t.Fatalf("default container should stay readable, got %v", got)
	}
}

func TestRecordFetchFailureHidesDocument(t *testing.T) {
	inventory := &fakeInventory{objects: map[string][]string{"eng": {"spec.pdf"}}}
	resolver, records := newTestResolver(t, inventory)
	if err := records.Upsert("eng", "spec.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	records.FailWith = errors.New("connection refused")
	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "alice@x.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unverifiable documents must stay hidden, got %v", got)
	}
}

func TestInventoryOrderIsPreserved(t *testing.T) {
	files := []string{"z.pdf", "a.pdf", "m.pdf", "b.pdf"}
	inventory := &fakeInventory{objects: map[string][]string{"eng": files}}
	resolver, records := newTestResolver(t, inventory)
	for _, f := range files {
		if err := records.Upsert("eng", f, "Engineering", domain.LevelOrganization, nil); err != nil {
			t.Fatalf("upsert %s: %v", f, err)
		}
	}
	got, err := resolver.AccessibleDocuments(context.Background(), "eng", "alice@x.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(got, files) {
		t.Fatalf("documents = %v, want inventory order %v", got, files)
	}
}

func TestInventoryErrorPropagates(t *testing.T) {
	inventory := &fakeInventory{err: errors.New("bucket unreachable")}
	resolver, _ := newTestResolver(t, inventory)
	if _, err := resolver.AccessibleDocuments(context.Background(), "eng", "alice@x.com"); err == nil {
		t.Fatal("expected inventory error to propagate")
	}
}
