package store

import (
	"path/filepath"
	"testing"
)

func TestBoltStore_SaveAndGetItem(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	defer store.Close()

	item := &ItemRecord{
		RunID:      "run-1",
		Name:       "1-src.txt",
		SourcePath: "/tmp/copy/1-src.txt",
		Container:  "upload-20240101-120000",
		State:      StatePending,
		Size:       1024,
	}

	if err := store.SaveItem(item); err != nil {
		t.Fatalf("Failed to save item: %v", err)
	}

	got, err := store.GetItem("run-1/1-src.txt")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Name != item.Name {
		t.Errorf("Expected item name %s, got %s", item.Name, got.Name)
	}
	if got.State != StatePending {
		t.Errorf("Expected item State %s, got %s", StatePending, got.State)
	}

	item.State = StateFailed
	item.Error = "connection reset"
	if err := store.SaveItem(item); err != nil {
		t.Fatalf("Failed to update item: %v", err)
	}

	got, err = store.GetItem(item.Key())
	if err != nil {
		t.Fatalf("Failed to get updated item: %v", err)
	}
	if got.State != StateFailed {
		t.Errorf("Expected updated item State %s, got %s", StateFailed, got.State)
	}
	if got.Error != "connection reset" {
		t.Errorf("Expected error text to be kept, got %q", got.Error)
	}

	if _, err := store.GetItem("run-1/non-existent"); err != ErrItemNotFound {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}

func TestBoltStore_Close(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test_close.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Failed to close BoltStore: %v", err)
	}

	if _, err := store.GetItem("run/item"); err == nil {
		t.Error("Expected error when accessing closed store, got nil")
	}
}

func TestStores_ListItemsByRun(t *testing.T) {
	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer bolt.Close()

	stores := map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			for _, rec := range []*ItemRecord{
				{RunID: "run-a", Name: "2-f", State: StateCompleted},
				{RunID: "run-a", Name: "1-f", State: StateFailed},
				{RunID: "run-ab", Name: "1-f", State: StateCompleted},
				{RunID: "run-b", Name: "1-f", State: StatePending},
			} {
				if err := s.SaveItem(rec); err != nil {
					t.Fatal(err)
				}
			}

			items, err := s.ListItems("run-a")
			if err != nil {
				t.Fatalf("ListItems failed: %v", err)
			}
			if len(items) != 2 {
				t.Fatalf("expected 2 items for run-a, got %d", len(items))
			}
			if items[0].Name != "1-f" || items[1].Name != "2-f" {
				t.Errorf("unexpected order: %s, %s", items[0].Name, items[1].Name)
			}
			if items[0].State != StateFailed {
				t.Errorf("expected first item failed, got %s", items[0].State)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	rec := &ItemRecord{RunID: "r", Name: "n", State: StatePending}
	if err := s.SaveItem(rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetItem(rec.Key())
	if err != nil {
		t.Fatal(err)
	}
	got.State = StateCompleted

	again, _ := s.GetItem(rec.Key())
	if again.State != StatePending {
		t.Errorf("mutating a returned record must not change the store")
	}
}
