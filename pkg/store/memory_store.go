package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"docchatai/internal/util"
	"docchatai/pkg/domain"
)

// MemoryAccessStore keeps access records in-process. It implements the same
// upsert merge semantics as the Postgres store and backs local runs and tests.
type MemoryAccessStore struct {
	mu             sync.RWMutex
	records        map[string]domain.AccessRecord // key: container + "/" + fileName
	defaultChannel string

	// FailWith, when set, makes every call return a backend failure.
	FailWith error
}

// NewMemoryAccessStore initializes an empty in-memory access store.
func NewMemoryAccessStore(defaultChannel string) *MemoryAccessStore {
	defaultChannel = strings.TrimSpace(defaultChannel)
	if defaultChannel == "" {
		defaultChannel = defaultChannelName
	}
	return &MemoryAccessStore{
		records:        make(map[string]domain.AccessRecord),
		defaultChannel: defaultChannel,
	}
}

// Upsert creates or replaces the record, merging user lists when both the
// existing and the incoming record are restricted.
func (m *MemoryAccessStore) Upsert(container, fileName, originalChannelName string, level domain.AccessLevel, users []string) error {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return ErrInvalidDocumentKey
	}
	if m.FailWith != nil {
		return &StorageUnavailableError{Op: "upsert access record", Err: m.FailWith}
	}
	isOpen := level == domain.LevelOrganization
	accessList := normalizeUsers(users)

	m.mu.Lock()
	defer m.mu.Unlock()
	key := documentKey(container, fileName)
	createdAt := time.Now().UTC()
	if existing, ok := m.records[key]; ok {
		createdAt = existing.CreatedAt
		if !existing.IsOpen && !isOpen {
			accessList = mergeAccessLists(existing.AccessList, accessList)
		}
	}
	m.records[key] = domain.AccessRecord{
		ID:                  util.NewID(),
		Container:           container,
		FileName:            fileName,
		OriginalChannelName: strings.TrimSpace(originalChannelName),
		IsOpen:              isOpen,
		AccessList:          accessList,
		CreatedAt:           createdAt,
		UpdatedAt:           time.Now().UTC(),
	}
	return nil
}

// Get returns the record, or a closed default with ok=false when absent.
func (m *MemoryAccessStore) Get(container, fileName string) (domain.AccessRecord, bool, error) {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return domain.AccessRecord{}, false, ErrInvalidDocumentKey
	}
	if m.FailWith != nil {
		return domain.AccessRecord{}, false, &StorageUnavailableError{Op: "get access record", Err: m.FailWith}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[documentKey(container, fileName)]
	if !ok {
		return closedRecord(container, fileName), false, nil
	}
	return record, true, nil
}

// Remove deletes the record; removing a missing record is a no-op.
func (m *MemoryAccessStore) Remove(container, fileName string) error {
	container = strings.TrimSpace(container)
	fileName = strings.TrimSpace(fileName)
	if container == "" || fileName == "" {
		return ErrInvalidDocumentKey
	}
	if m.FailWith != nil {
		return &StorageUnavailableError{Op: "remove access record", Err: m.FailWith}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, documentKey(container, fileName))
	return nil
}

// AccessibleContainers lists readable channel names; it degrades to the
// default channel on backend failure.
func (m *MemoryAccessStore) AccessibleContainers(userEmail string) ([]string, error) {
	if m.FailWith != nil {
		return []string{m.defaultChannel}, nil
	}
	userEmail = strings.TrimSpace(userEmail)
	names := map[string]string{strings.ToLower(m.defaultChannel): m.defaultChannel}

	m.mu.RLock()
	for _, record := range m.records {
		if !record.IsOpen && !record.Allows(userEmail) {
			continue
		}
		name := strings.TrimSpace(record.OriginalChannelName)
		if name == "" {
			name = record.Container
		}
		if _, ok := names[strings.ToLower(name)]; !ok {
			names[strings.ToLower(name)] = name
		}
	}
	m.mu.RUnlock()

	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}
