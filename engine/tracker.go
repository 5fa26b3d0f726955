package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/franksops/blobpush/store"
)

// ItemTracker records the state of every item of one run in the ledger.
type ItemTracker struct {
	store store.Store
	runID string

	mu        sync.RWMutex
	container string
}

// NewItemTracker creates a tracker for one run. An empty runID gets a
// random one.
func NewItemTracker(s store.Store, runID string) *ItemTracker {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &ItemTracker{
		store: s,
		runID: runID,
	}
}

// RunID returns the ledger key prefix of this run.
func (it *ItemTracker) RunID() string {
	return it.runID
}

// SetContainer sets the destination recorded on items initialised after
// the call.
func (it *ItemTracker) SetContainer(name string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.container = name
}

// InitItem records item as pending.
func (it *ItemTracker) InitItem(item WorkItem) error {
	it.mu.RLock()
	container := it.container
	it.mu.RUnlock()

	return it.store.SaveItem(&store.ItemRecord{
		RunID:      it.runID,
		Name:       item.Name,
		SourcePath: item.Path,
		Container:  container,
		State:      store.StatePending,
		Size:       item.Size,
	})
}

// MarkInProgress updates an item's state to InProgress
func (it *ItemTracker) MarkInProgress(item WorkItem) error {
	return it.update(item, store.StateInProgress, nil)
}

// MarkCompleted updates an item's state to Completed
func (it *ItemTracker) MarkCompleted(item WorkItem) error {
	return it.update(item, store.StateCompleted, nil)
}

// MarkFailed updates an item's state to Failed with an error message
func (it *ItemTracker) MarkFailed(item WorkItem, err error) error {
	return it.update(item, store.StateFailed, err)
}

func (it *ItemTracker) update(item WorkItem, state store.ItemState, cause error) error {
	record, err := it.store.GetItem(store.Key(it.runID, item.Name))
	if err != nil {
		return err
	}
	record.State = state
	if cause != nil {
		record.Error = cause.Error()
	}
	return it.store.SaveItem(record)
}

// Items returns the ledger of this run.
func (it *ItemTracker) Items() ([]*store.ItemRecord, error) {
	return it.store.ListItems(it.runID)
}
