package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/blobpush/provider"
)

// DefaultCleanupTimeout bounds the teardown of one run.
const DefaultCleanupTimeout = 2 * time.Minute

// Stager prepares the files of a run in a scratch directory and removes
// it afterwards.
type Stager interface {
	Stage(ctx context.Context) (string, error)
	Teardown(dir string) error
}

// CleanupCoordinator tears down the resources of a run exactly once:
// first the destination container (when enabled), then the staging area.
type CleanupCoordinator struct {
	log             logrus.FieldLogger
	objects         provider.ObjectStore
	deleteContainer bool
	timeout         time.Duration
	sink            ProgressSink

	mu         sync.Mutex
	container  *provider.Container
	stager     Stager
	stagingDir string

	once sync.Once
	errs []error
}

// NewCleanupCoordinator creates a coordinator. The container is only
// deleted when deleteContainer is set.
func NewCleanupCoordinator(log logrus.FieldLogger, objects provider.ObjectStore, deleteContainer bool) *CleanupCoordinator {
	return &CleanupCoordinator{
		log:             log.WithField("component", "cleanup"),
		objects:         objects,
		deleteContainer: deleteContainer,
		timeout:         DefaultCleanupTimeout,
		sink:            NopSink{},
	}
}

// SetTimeout overrides DefaultCleanupTimeout.
func (c *CleanupCoordinator) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetSink sets the sink that receives cleanup errors.
func (c *CleanupCoordinator) SetSink(sink ProgressSink) {
	c.sink = sink
}

// SetContainer registers the destination container.
func (c *CleanupCoordinator) SetContainer(container provider.Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.container = &container
}

// SetStaging registers the staging area and the stager that removes it.
func (c *CleanupCoordinator) SetStaging(stager Stager, dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stager = stager
	c.stagingDir = dir
}

// Run performs the teardown once. Later calls return the errors of the
// first call.
func (c *CleanupCoordinator) Run(ctx context.Context) []error {
	c.once.Do(func() {
		c.errs = c.run(ctx)
	})
	return c.errs
}

func (c *CleanupCoordinator) run(ctx context.Context) []error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	c.mu.Lock()
	container, stager, dir := c.container, c.stager, c.stagingDir
	c.mu.Unlock()

	var errs []error

	if container != nil && c.deleteContainer {
		log := c.log.WithField("container", container.Name)
		if err := c.objects.DeleteContainer(ctx, *container); err != nil {
			errs = append(errs, c.fail(log, "delete container", err))
		} else {
			log.Info("Container deleted")
		}
	}

	if stager != nil && dir != "" {
		log := c.log.WithField("dir", dir)
		if err := stager.Teardown(dir); err != nil {
			errs = append(errs, c.fail(log, "remove staging area", err))
		} else {
			log.Info("Staging area removed")
		}
	}

	return errs
}

func (c *CleanupCoordinator) fail(log logrus.FieldLogger, step string, err error) error {
	cerr := &CleanupError{Step: step, Err: err}
	log.WithError(err).Error("Cleanup step failed")
	c.sink.Error(cerr)
	return cerr
}
