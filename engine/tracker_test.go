package engine

import (
	"errors"
	"testing"

	"github.com/franksops/blobpush/store"
)

type MockStore struct {
	Items map[string]*store.ItemRecord
}

func (m *MockStore) SaveItem(item *store.ItemRecord) error {
	m.Items[item.Key()] = item
	return nil
}

func (m *MockStore) GetItem(key string) (*store.ItemRecord, error) {
	item, ok := m.Items[key]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return item, nil
}

func (m *MockStore) ListItems(runID string) ([]*store.ItemRecord, error) {
	var out []*store.ItemRecord
	for _, item := range m.Items {
		if item.RunID == runID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockStore) Close() error { return nil }

func TestItemTracker(t *testing.T) {
	mockStore := &MockStore{Items: make(map[string]*store.ItemRecord)}
	tracker := NewItemTracker(mockStore, "run-1")
	tracker.SetContainer("upload-20240101-120000")

	item := WorkItem{Path: "/tmp/src/1-a.txt", Name: "1-a.txt", Size: 42}

	if err := tracker.InitItem(item); err != nil {
		t.Fatalf("Failed to init item: %v", err)
	}

	record, err := mockStore.GetItem("run-1/1-a.txt")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if record.State != store.StatePending {
		t.Errorf("Expected state %s, got %s", store.StatePending, record.State)
	}
	if record.Container != "upload-20240101-120000" || record.Size != 42 {
		t.Errorf("Unexpected record %+v", record)
	}

	if err := tracker.MarkInProgress(item); err != nil {
		t.Fatalf("Failed to mark in progress: %v", err)
	}
	if record.State != store.StateInProgress {
		t.Errorf("Expected state %s, got %s", store.StateInProgress, record.State)
	}

	if err := tracker.MarkCompleted(item); err != nil {
		t.Fatalf("Failed to mark completed: %v", err)
	}
	if record.State != store.StateCompleted {
		t.Errorf("Expected state %s, got %s", store.StateCompleted, record.State)
	}
}

func TestItemTracker_MarkFailed(t *testing.T) {
	tracker := NewItemTracker(store.NewMemoryStore(), "")
	if tracker.RunID() == "" {
		t.Fatal("Expected a generated run ID")
	}

	item := WorkItem{Name: "4-a.txt"}
	if err := tracker.InitItem(item); err != nil {
		t.Fatal(err)
	}
	if err := tracker.MarkFailed(item, errors.New("503 slow down")); err != nil {
		t.Fatalf("Failed to mark failed: %v", err)
	}

	items, err := tracker.Items()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].State != store.StateFailed || items[0].Error != "503 slow down" {
		t.Errorf("Unexpected record %+v", items[0])
	}
}

func TestItemTracker_UnknownItem(t *testing.T) {
	tracker := NewItemTracker(store.NewMemoryStore(), "run")
	if err := tracker.MarkCompleted(WorkItem{Name: "never-initialised"}); !errors.Is(err, store.ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}
