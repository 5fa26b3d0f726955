package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/bbolt"
)

var (
	// ErrItemNotFound is returned when an item is not found in the ledger.
	ErrItemNotFound = errors.New("item not found")
)

var (
	itemsBucket = []byte("items")
)

// ItemState represents the current state of a single upload.
type ItemState string

const (
	StatePending    ItemState = "Pending"
	StateInProgress ItemState = "InProgress"
	StateCompleted  ItemState = "Completed"
	StateFailed     ItemState = "Failed"
)

// ItemRecord is the ledger entry of one work item of one run.
type ItemRecord struct {
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Container  string    `json:"container"`
	State      ItemState `json:"state"`
	Size       int64     `json:"size"`
	Error      string    `json:"error,omitempty"`
}

// Key returns the ledger key of the record.
func (r *ItemRecord) Key() string {
	return Key(r.RunID, r.Name)
}

// Key builds the ledger key of an item inside a run.
func Key(runID, name string) string {
	return runID + "/" + name
}

// Store defines the interface of the per-item ledger.
type Store interface {
	SaveItem(item *ItemRecord) error
	GetItem(key string) (*ItemRecord, error)
	// ListItems returns the records of one run ordered by name.
	ListItems(runID string) ([]*ItemRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create items bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveItem saves an item to the ledger.
func (s *BoltStore) SaveItem(item *ItemRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}

		if err := tx.Bucket(itemsBucket).Put([]byte(item.Key()), data); err != nil {
			return fmt.Errorf("failed to put item: %w", err)
		}
		return nil
	})
}

// GetItem retrieves an item from the ledger.
func (s *BoltStore) GetItem(key string) (*ItemRecord, error) {
	var item ItemRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(itemsBucket).Get([]byte(key))
		if data == nil {
			return ErrItemNotFound
		}

		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("failed to unmarshal item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// ListItems scans the keys prefixed by runID.
func (s *BoltStore) ListItems(runID string) ([]*ItemRecord, error) {
	prefix := []byte(Key(runID, ""))

	var items []*ItemRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(itemsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item ItemRecord
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal item %s: %w", k, err)
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a Store kept in process memory, used when no state
// directory is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]ItemRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]ItemRecord)}
}

// SaveItem stores a copy of item.
func (m *MemoryStore) SaveItem(item *ItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.Key()] = *item
	return nil
}

// GetItem returns a copy of the stored record.
func (m *MemoryStore) GetItem(key string) (*ItemRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &item, nil
}

// ListItems returns copies of the records of runID ordered by name.
func (m *MemoryStore) ListItems(runID string) ([]*ItemRecord, error) {
	prefix := Key(runID, "")

	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*ItemRecord
	for k, v := range m.items {
		if strings.HasPrefix(k, prefix) {
			item := v
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
