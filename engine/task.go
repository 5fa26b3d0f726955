package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// failureSet collects the transfer errors of a batch.
type failureSet struct {
	mu    sync.Mutex
	merr  *multierror.Error
	items []*TransferError
}

func (f *failureSet) add(err *TransferError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merr = multierror.Append(f.merr, err)
	f.items = append(f.items, err)
}

func (f *failureSet) list() []*TransferError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*TransferError(nil), f.items...)
}

func (f *failureSet) errorOrNil() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.merr.ErrorOrNil()
}

// transferTask uploads one item while holding one admission token.
type transferTask struct {
	o     *Orchestrator
	item  WorkItem
	token *Token
	log   logrus.FieldLogger
}

// run calls Upload exactly once. Upload errors are recorded and not
// returned; only a recovered panic is returned, as a *FatalError.
func (t *transferTask) run(ctx context.Context) (err error) {
	var uploadErr error
	defer func() {
		if r := recover(); r != nil {
			uploadErr = fmt.Errorf("upload panicked: %v", r)
			fatal := &FatalError{Op: "upload " + t.item.Name, Err: uploadErr}
			t.o.abort(fatal)
			err = fatal
		}
		t.complete(uploadErr, err != nil)
	}()

	if e := t.o.tracker.MarkInProgress(t.item); e != nil {
		t.log.WithError(e).Warn("Failed to update item ledger")
	}

	ref := t.o.objects.ObjectRef(t.o.container, t.item.Name)
	uploadErr = t.o.objects.Upload(ctx, ref, t.item.Path, t.o.cfg.Upload)
	return nil
}

// complete counts the completion, records the outcome and then returns
// the token.
func (t *transferTask) complete(uploadErr error, fatal bool) {
	defer t.o.admission.Release(t.token)

	t.o.state.complete(t.item, uploadErr == nil)

	if uploadErr == nil {
		if err := t.o.tracker.MarkCompleted(t.item); err != nil {
			t.log.WithError(err).Warn("Failed to update item ledger")
		}
		t.log.Debug("Upload completed")
	} else {
		if err := t.o.tracker.MarkFailed(t.item, uploadErr); err != nil {
			t.log.WithError(err).Warn("Failed to update item ledger")
		}
		if !fatal {
			terr := &TransferError{Item: t.item, Err: uploadErr}
			t.o.failures.add(terr)
			t.log.WithError(uploadErr).Error("Upload failed")
			t.o.sink.Error(terr)
		}
	}

	t.o.sink.Completed(t.item, uploadErr, t.o.state.Snapshot())
}
