package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/blobpush/provider"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeStore is an in-memory ObjectStore with fault injection and
// concurrency instrumentation.
type fakeStore struct {
	mu         sync.Mutex
	containers map[string]map[string]bool

	createErr error
	deleteErr error
	countErr  error
	failOn    map[string]error
	panicOn   string
	delay     time.Duration
	gate      chan struct{}

	attempts    atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	deletes     atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		containers: make(map[string]map[string]bool),
		failOn:     make(map[string]error),
	}
}

func (f *fakeStore) CreateContainer(_ context.Context, name string) (provider.Container, error) {
	if f.createErr != nil {
		return provider.Container{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		f.containers[name] = make(map[string]bool)
	}
	return provider.Container{Name: name}, nil
}

func (f *fakeStore) ObjectRef(c provider.Container, name string) provider.ObjectRef {
	return provider.ObjectRef{Container: c, Key: name}
}

func (f *fakeStore) Upload(ctx context.Context, ref provider.ObjectRef, _ string, _ provider.UploadOptions) error {
	f.attempts.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ref.Key == f.panicOn {
		panic("injected panic")
	}
	if err, ok := f.failOn[ref.Key]; ok {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.containers[ref.Container.Name]
	if !ok {
		return errors.New("container does not exist")
	}
	objs[ref.Key] = true
	return nil
}

func (f *fakeStore) CountObjects(_ context.Context, c provider.Container) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers[c.Name]), nil
}

func (f *fakeStore) DeleteContainer(_ context.Context, c provider.Container) error {
	f.deletes.Add(1)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, c.Name)
	return nil
}

func (f *fakeStore) hasContainer(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[name]
	return ok
}

// fakeStager writes n small files into a fresh directory.
type fakeStager struct {
	base      string
	n         int
	stageErr  error
	dir       string
	teardowns atomic.Int64
}

func newFakeStager(t *testing.T, n int) *fakeStager {
	return &fakeStager{base: t.TempDir(), n: n}
}

func (s *fakeStager) Stage(_ context.Context) (string, error) {
	dir, err := os.MkdirTemp(s.base, "copy-")
	if err != nil {
		return "", err
	}
	s.dir = dir
	if s.stageErr != nil {
		return dir, s.stageErr
	}
	for i := 1; i <= s.n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%d-template.txt", i))
		if err := os.WriteFile(name, []byte("payload"), 0644); err != nil {
			return dir, err
		}
	}
	return dir, nil
}

func (s *fakeStager) Teardown(dir string) error {
	s.teardowns.Add(1)
	return os.RemoveAll(dir)
}

// recordingSink records every event and checks the counter invariant on
// each completion.
type recordingSink struct {
	mu          sync.Mutex
	found       int
	destination string
	progress    []Progress
	completions int
	failures    int
	errs        []error
	finished    []*Summary
	violations  int
}

func (r *recordingSink) Found(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.found = n
}

func (r *recordingSink) Destination(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destination = name
}

func (r *recordingSink) Submitted(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingSink) Completed(_ WorkItem, err error, snap BatchSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
	if err != nil {
		r.failures++
	}
	if snap.Completed > snap.Submitted || snap.Completed < 1 {
		r.violations++
	}
}

func (r *recordingSink) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSink) Finished(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

// orderedLister lists a fixed set of names under one directory, in order.
func orderedLister(root string, n int) *mockLister {
	mp := newMockLister()
	mp.files[root] = mockFileInfo{name: filepath.Base(root), isDir: true}
	for i := 1; i <= n; i++ {
		mp.dirs[root] = append(mp.dirs[root], mockFileInfo{name: fmt.Sprintf("%d-template.txt", i), size: 10})
	}
	return mp
}
