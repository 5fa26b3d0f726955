package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/franksops/blobpush/provider"
	"github.com/franksops/blobpush/store"
)

// Config holds the settings of one run.
type Config struct {
	// ContainerName is the destination container created for the run.
	ContainerName string

	// SourcePath is the file or directory to upload. It is ignored when a
	// Stager is set.
	SourcePath string

	// Recursive descends into sub-directories of the source.
	Recursive bool

	// MaxOutstanding bounds the number of transfers in flight.
	MaxOutstanding int

	// Upload is passed to every ObjectStore.Upload call.
	Upload provider.UploadOptions

	// SubmitRate limits submissions per second. Zero means unlimited.
	SubmitRate float64

	// DeleteContainer removes the destination container after the run.
	DeleteContainer bool

	// CleanupTimeout bounds the teardown. Zero means DefaultCleanupTimeout.
	CleanupTimeout time.Duration
}

// Summary is the outcome of a run.
type Summary struct {
	RunID     string
	Container string
	Found     int

	Submitted int64
	Completed int64
	Succeeded int64
	Failed    int64
	Bytes     int64

	// DestinationCount is the object count read back from the store
	// after the drain, or -1 when it could not be read.
	DestinationCount int

	Elapsed time.Duration
	Rate    float64

	// Drained is set when every item was submitted and the drain barrier
	// was reached. It stays false on every abort path.
	Drained bool

	Failures      []*TransferError
	CleanupErrors []error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStager stages the source files before enumeration.
func WithStager(s Stager) Option {
	return func(o *Orchestrator) { o.stager = s }
}

// WithSink sets the progress sink.
func WithSink(s ProgressSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithTracker sets the item ledger.
func WithTracker(t *ItemTracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithClock replaces time.Now for throughput measurement.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSource replaces the local filesystem lister.
func WithSource(l Lister) Option {
	return func(o *Orchestrator) { o.source = l }
}

// Orchestrator runs one batch: it enumerates the work set, submits one
// transfer per item under admission control, waits for the drain and
// then cleans up.
type Orchestrator struct {
	log     logrus.FieldLogger
	objects provider.ObjectStore
	cfg     Config

	stager  Stager
	sink    ProgressSink
	tracker *ItemTracker
	now     func() time.Time
	source  Lister
	limiter *rate.Limiter

	admission *AdmissionController
	cleanup   *CleanupCoordinator
	state     BatchState
	failures  failureSet

	container provider.Container
	cancel    context.CancelCauseFunc
}

// New creates an Orchestrator. It panics if cfg.MaxOutstanding is not
// positive.
func New(log logrus.FieldLogger, objects provider.ObjectStore, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:       log.WithField("component", "orchestrator"),
		objects:   objects,
		cfg:       cfg,
		sink:      NopSink{},
		now:       time.Now,
		source:    provider.NewLocalSource(""),
		admission: NewAdmissionController(cfg.MaxOutstanding),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.tracker == nil {
		o.tracker = NewItemTracker(store.NewMemoryStore(), "")
	}
	if cfg.SubmitRate > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), 1)
	}

	o.cleanup = NewCleanupCoordinator(log, objects, cfg.DeleteContainer)
	o.cleanup.SetTimeout(cfg.CleanupTimeout)
	o.cleanup.SetSink(o.sink)

	return o
}

// Admission exposes the admission controller for observation.
func (o *Orchestrator) Admission() *AdmissionController {
	return o.admission
}

// Run executes the batch. Cleanup runs exactly once on every path, and
// its errors are reported in Summary.CleanupErrors only.
//
// The returned error is a *EnumerationError when the source could not be
// listed, a *FatalError when the run was aborted, or wraps
// ErrTransfersFailed when at least one upload failed.
func (o *Orchestrator) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{
		RunID:            o.tracker.RunID(),
		Container:        o.cfg.ContainerName,
		DestinationCount: -1,
	}

	defer func() {
		summary.CleanupErrors = o.cleanup.Run(ctx)
		o.sink.Finished(summary)
	}()

	err = o.execute(ctx, summary)
	return summary, err
}

func (o *Orchestrator) execute(ctx context.Context, summary *Summary) error {
	container, err := o.objects.CreateContainer(ctx, o.cfg.ContainerName)
	if err != nil {
		return o.fatal("create container", err)
	}
	o.container = container
	o.cleanup.SetContainer(container)
	o.tracker.SetContainer(container.Name)
	summary.Container = container.Name

	log := o.log.WithFields(logrus.Fields{
		"container": container.Name,
		"run_id":    o.tracker.RunID(),
	})

	source := o.cfg.SourcePath
	if o.stager != nil {
		dir, err := o.stager.Stage(ctx)
		if dir != "" {
			o.cleanup.SetStaging(o.stager, dir)
		}
		if err != nil {
			return o.fatal("stage source files", err)
		}
		source = dir
	}

	items, err := NewWalker(o.source, o.cfg.Recursive).Walk(ctx, source)
	if err != nil {
		var enumErr *EnumerationError
		if errors.As(err, &enumErr) {
			log.WithError(err).Error("Enumeration failed")
			o.sink.Error(err)
			return err
		}
		return o.fatal("enumerate source", fmt.Errorf("%w: %w", ErrInterrupted, err))
	}

	summary.Found = len(items)
	o.state.total.Store(int64(len(items)))
	o.sink.Found(len(items))
	o.sink.Destination(container.Name)
	log.WithField("items", len(items)).Info("Starting batch")

	meter := NewThroughputMeter(o.now)
	meter.Start()

	var g errgroup.Group
	submitErr := o.submit(ctx, &g, items, meter)
	waitErr := g.Wait()

	snap := o.state.Snapshot()
	summary.Submitted = snap.Submitted
	summary.Completed = snap.Completed
	summary.Succeeded = snap.Succeeded
	summary.Failed = snap.Failed
	summary.Bytes = snap.Bytes
	summary.Elapsed = meter.Elapsed()
	summary.Rate = Rate(snap.Submitted, summary.Elapsed)
	summary.Failures = o.failures.list()

	log.WithFields(logrus.Fields{
		"completed": snap.Completed,
		"failed":    snap.Failed,
	}).Info("All transfers drained")

	count, err := o.objects.CountObjects(context.WithoutCancel(ctx), container)
	if err != nil {
		log.WithError(err).Warn("Failed to count destination objects")
	} else {
		summary.DestinationCount = count
	}

	summary.Drained = submitErr == nil && waitErr == nil

	if submitErr != nil {
		return submitErr
	}
	if waitErr != nil {
		return waitErr
	}
	if ferr := o.failures.errorOrNil(); ferr != nil {
		return fmt.Errorf("%w: %d of %d: %w", ErrTransfersFailed, snap.Failed, snap.Submitted, ferr)
	}
	return nil
}

// submit is the single producer: acquire, start, continue. Started
// uploads are detached from ctx so that they are never cancelled.
func (o *Orchestrator) submit(ctx context.Context, g *errgroup.Group, items []WorkItem, meter *ThroughputMeter) error {
	subCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.cancel = cancel

	uploadCtx := context.WithoutCancel(ctx)
	total := int64(len(items))

	for _, item := range items {
		if o.limiter != nil {
			if err := o.limiter.Wait(subCtx); err != nil {
				return o.stopped(ctx, subCtx, "wait for submission slot", err)
			}
		}

		token, err := o.admission.Acquire(subCtx)
		if err != nil {
			return o.stopped(ctx, subCtx, "acquire admission", err)
		}

		if err := o.tracker.InitItem(item); err != nil {
			o.log.WithError(err).WithField("item", item.Name).Warn("Failed to record item in ledger")
		}

		n := o.state.submitted.Add(1)
		task := &transferTask{
			o:     o,
			item:  item,
			token: token,
			log:   o.log.WithField("item", item.Name),
		}
		g.Go(func() error {
			return task.run(uploadCtx)
		})

		o.sink.Submitted(Progress{
			Elapsed:   meter.Elapsed(),
			Rate:      meter.Sample(n),
			Submitted: n,
			Total:     total,
		})
	}

	return nil
}

// stopped maps a submission stop to the error of the run: the cause of
// an abort raised by a task, or an interruption of ctx.
func (o *Orchestrator) stopped(ctx, subCtx context.Context, op string, err error) error {
	var fatal *FatalError
	if ctx.Err() == nil && errors.As(context.Cause(subCtx), &fatal) {
		return fatal
	}
	return o.fatal(op, fmt.Errorf("%w: %w", ErrInterrupted, err))
}

// abort stops submission after a fatal task error.
func (o *Orchestrator) abort(err *FatalError) {
	o.log.WithError(err).Error("Aborting submission")
	o.sink.Error(err)
	if o.cancel != nil {
		o.cancel(err)
	}
}

func (o *Orchestrator) fatal(op string, err error) error {
	ferr := &FatalError{Op: op, Err: err}
	o.log.WithError(err).Errorf("Failed to %s", op)
	o.sink.Error(ferr)
	return ferr
}
