package store

import (
	"errors"
	"reflect"
	"testing"

	"docchatai/pkg/domain"
)

func TestUpsertOrganizationIsOpen(t *testing.T) {
	s := NewMemoryAccessStore("General")
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record, ok, err := s.Get("eng", "guide.pdf")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !record.IsOpen {
		t.Fatal("organization-level record should be open")
	}
	if len(record.AccessList) != 0 {
		t.Fatalf("open record should carry no access list, got %v", record.AccessList)
	}
}

func TestUpsertMergePreservesExistingReaders(t *testing.T) {
	s := NewMemoryAccessStore("General")
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelSelected, []string{"alice@corp.com", "bob@corp.com"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelSelected, []string{"Bob@Corp.com", "carol@corp.com"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	record, _, err := s.Get("eng", "guide.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"alice@corp.com", "bob@corp.com", "carol@corp.com"}
	if !reflect.DeepEqual(record.AccessList, want) {
		t.Fatalf("merged list = %v, want %v", record.AccessList, want)
	}
}

func TestUpsertFromOrganizationReplacesList(t *testing.T) {
	s := NewMemoryAccessStore("General")
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert open: %v", err)
	}
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelSelected, []string{"alice@corp.com"}); err != nil {
		t.Fatalf("upsert selected: %v", err)
	}
	record, _, err := s.Get("eng", "guide.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.IsOpen {
		t.Fatal("record should be restricted after downgrade from organization")
	}
	if !reflect.DeepEqual(record.AccessList, []string{"alice@corp.com"}) {
		t.Fatalf("list = %v, want only alice", record.AccessList)
	}
	if !record.Allows("ALICE@corp.com") {
		t.Fatal("list membership should be case-insensitive")
	}
	if record.Allows("mallory@corp.com") {
		t.Fatal("unlisted user should not be allowed")
	}
}

func TestUpsertToOrganizationOpensRecord(t *testing.T) {
	s := NewMemoryAccessStore("General")
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelPrivate, []string{"alice@corp.com"}); err != nil {
		t.Fatalf("upsert private: %v", err)
	}
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert organization: %v", err)
	}
	record, _, err := s.Get("eng", "guide.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.IsOpen {
		t.Fatal("record should be open after upgrade to organization")
	}
}

func TestGetMissingRecordIsClosed(t *testing.T) {
	s := NewMemoryAccessStore("General")
	record, ok, err := s.Get("eng", "nope.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("missing record should report ok=false")
	}
	if record.IsOpen || record.Allows("alice@corp.com") {
		t.Fatal("missing record must deny access")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := NewMemoryAccessStore("General")
	if err := s.Upsert("eng", "guide.pdf", "Engineering", domain.LevelOrganization, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Remove("eng", "guide.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove("eng", "guide.pdf"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, ok, _ := s.Get("eng", "guide.pdf"); ok {
		t.Fatal("record should be gone")
	}
}

func TestAccessibleContainers(t *testing.T) {
	s := NewMemoryAccessStore("General")
	mustUpsert := func(container, file, channel string, level domain.AccessLevel, users []string) {
		t.Helper()
		if err := s.Upsert(container, file, channel, level, users); err != nil {
			t.Fatalf("upsert %s/%s: %v", container, file, err)
		}
	}
	mustUpsert("eng", "a.pdf", "Engineering", domain.LevelOrganization, nil)
	mustUpsert("eng", "b.pdf", "Engineering", domain.LevelOrganization, nil)
	mustUpsert("hr", "pay.pdf", "HR", domain.LevelSelected, []string{"alice@corp.com"})
	mustUpsert("legal", "nda.pdf", "Legal", domain.LevelPrivate, []string{"bob@corp.com"})

	got, err := s.AccessibleContainers("Alice@Corp.com")
	if err != nil {
		t.Fatalf("accessible containers: %v", err)
	}
	want := []string{"Engineering", "General", "HR"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("containers = %v, want %v", got, want)
	}

	got, err = s.AccessibleContainers("mallory@corp.com")
	if err != nil {
		t.Fatalf("accessible containers: %v", err)
	}
	want = []string{"Engineering", "General"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("containers = %v, want %v", got, want)
	}
}

func TestAccessibleContainersDegradesOnBackendFailure(t *testing.T) {
	s := NewMemoryAccessStore("General")
	s.FailWith = errors.New("connection refused")
	got, err := s.AccessibleContainers("alice@corp.com")
	if err != nil {
		t.Fatalf("accessible containers: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"General"}) {
		t.Fatalf("containers = %v, want default only", got)
	}
}

func TestBackendFailureIsTyped(t *testing.T) {
	s := NewMemoryAccessStore("General")
	s.FailWith = errors.New("connection refused")
	_, _, err := s.Get("eng", "guide.pdf")
	if !IsStorageUnavailable(err) {
		t.Fatalf("want StorageUnavailableError, got %v", err)
	}
}
