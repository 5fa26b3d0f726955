package engine

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/blobpush/provider"
)

type failingStager struct {
	teardowns int
	err       error
}

func (s *failingStager) Stage(context.Context) (string, error) { return "", nil }

func (s *failingStager) Teardown(string) error {
	s.teardowns++
	return s.err
}

func TestCleanupCoordinator_RunsOnce(t *testing.T) {
	objects := newFakeStore()
	_, err := objects.CreateContainer(context.Background(), "c")
	require.NoError(t, err)

	stager := newFakeStager(t, 1)
	dir, err := stager.Stage(context.Background())
	require.NoError(t, err)

	c := NewCleanupCoordinator(testLogger(), objects, true)
	c.SetContainer(provider.Container{Name: "c"})
	c.SetStaging(stager, dir)

	assert.Empty(t, c.Run(context.Background()))
	assert.Empty(t, c.Run(context.Background()))

	assert.Equal(t, int64(1), objects.deletes.Load())
	assert.Equal(t, int64(1), stager.teardowns.Load())
	assert.False(t, objects.hasContainer("c"))
	assert.NoDirExists(t, dir)
}

func TestCleanupCoordinator_StagingRemovedWhenDeleteFails(t *testing.T) {
	objects := newFakeStore()
	objects.deleteErr = errors.New("container is locked")

	dir := t.TempDir()
	stager := newFakeStager(t, 0)
	sink := &recordingSink{}

	c := NewCleanupCoordinator(testLogger(), objects, true)
	c.SetSink(sink)
	c.SetContainer(provider.Container{Name: "c"})
	c.SetStaging(stager, dir)

	errs := c.Run(context.Background())
	require.Len(t, errs, 1)

	var cerr *CleanupError
	require.ErrorAs(t, errs[0], &cerr)
	assert.Equal(t, "delete container", cerr.Step)
	assert.EqualError(t, cerr.Unwrap(), "container is locked")

	assert.Equal(t, int64(1), stager.teardowns.Load())
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	require.Len(t, sink.errs, 1)
	assert.Same(t, errs[0], sink.errs[0])

	// the first result is returned again without retrying
	assert.Equal(t, errs, c.Run(context.Background()))
	assert.Equal(t, int64(1), objects.deletes.Load())
}

func TestCleanupCoordinator_BothStepsFail(t *testing.T) {
	objects := newFakeStore()
	objects.deleteErr = errors.New("delete failed")
	stager := &failingStager{err: errors.New("busy")}

	c := NewCleanupCoordinator(testLogger(), objects, true)
	c.SetContainer(provider.Container{Name: "c"})
	c.SetStaging(stager, "/tmp/whatever")

	errs := c.Run(context.Background())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "delete container")
	assert.Contains(t, errs[1].Error(), "remove staging area")
	assert.Equal(t, 1, stager.teardowns)
}

func TestCleanupCoordinator_SkipsDisabledAndUnregisteredSteps(t *testing.T) {
	objects := newFakeStore()
	stager := &failingStager{}

	c := NewCleanupCoordinator(testLogger(), objects, false)
	c.SetContainer(provider.Container{Name: "c"})

	assert.Empty(t, c.Run(context.Background()))
	assert.Zero(t, objects.deletes.Load(), "delete flag not set")
	assert.Zero(t, stager.teardowns, "staging never registered")
}

func TestCleanupCoordinator_DetachedFromCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	objects := &ctxCheckingStore{fakeStore: newFakeStore()}
	c := NewCleanupCoordinator(testLogger(), objects, true)
	c.SetTimeout(time.Second)
	c.SetContainer(provider.Container{Name: "c"})

	assert.Empty(t, c.Run(ctx))
	assert.Equal(t, int64(1), objects.deletes.Load())
}

type ctxCheckingStore struct {
	*fakeStore
}

func (s *ctxCheckingStore) DeleteContainer(ctx context.Context, c provider.Container) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeStore.DeleteContainer(ctx, c)
}
