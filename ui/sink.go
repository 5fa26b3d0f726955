package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/blobpush/engine"
)

var _ engine.ProgressSink = (*TUISink)(nil)

// Sender is the part of tea.Program used by Pump.
type Sender interface {
	Send(msg tea.Msg)
}

// TUISink folds engine events into a UIState.
type TUISink struct {
	mu    sync.Mutex
	state UIState
}

// NewTUISink returns a sink whose state reports maxOutstanding as the
// in-flight bound.
func NewTUISink(maxOutstanding int) *TUISink {
	return &TUISink{state: UIState{MaxOutstanding: maxOutstanding}}
}

// Snapshot returns a copy of the current state.
func (s *TUISink) Snapshot() UIState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Recent = append([]RecentTransfer(nil), s.state.Recent...)
	return st
}

func (s *TUISink) Found(n int) {
	s.mu.Lock()
	s.state.TotalFiles = int64(n)
	s.mu.Unlock()
}

func (s *TUISink) Destination(name string) {
	s.mu.Lock()
	s.state.Container = name
	s.mu.Unlock()
}

func (s *TUISink) Submitted(p engine.Progress) {
	s.mu.Lock()
	s.state.Submitted = p.Submitted
	s.state.Elapsed = p.Elapsed
	s.state.FilesPerSec = p.Rate
	s.mu.Unlock()
}

func (s *TUISink) Completed(item engine.WorkItem, err error, snap engine.BatchSnapshot) {
	r := RecentTransfer{Name: item.Name, Size: item.Size}
	if err != nil {
		r.Err = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshots from concurrent completions may arrive out of order.
	if snap.Completed >= s.state.Completed {
		s.state.Completed = snap.Completed
		s.state.Succeeded = snap.Succeeded
		s.state.Failed = snap.Failed
		s.state.CompletedBytes = snap.Bytes
	}
	s.state.Submitted = max(s.state.Submitted, snap.Submitted)

	s.state.Recent = append(s.state.Recent, r)
	if len(s.state.Recent) > maxRecent {
		s.state.Recent = s.state.Recent[len(s.state.Recent)-maxRecent:]
	}
}

func (s *TUISink) Error(error) {}

func (s *TUISink) Finished(summary *engine.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Done = true
	s.state.Submitted = summary.Submitted
	s.state.Completed = summary.Completed
	s.state.Succeeded = summary.Succeeded
	s.state.Failed = summary.Failed
	s.state.CompletedBytes = summary.Bytes
	s.state.Elapsed = summary.Elapsed
	s.state.FilesPerSec = summary.Rate
	if summary.Drained {
		s.state.Summary = fmt.Sprintf("Uploaded %d of %d file(s) in %s, %d failed.",
			summary.Succeeded, summary.Found, summary.Elapsed.Round(time.Second), summary.Failed)
	} else {
		s.state.Summary = fmt.Sprintf("Aborted after %s: uploaded %d of %d file(s), %d failed.",
			summary.Elapsed.Round(time.Second), summary.Succeeded, summary.Found, summary.Failed)
	}
}

// Pump sends the current state to p every interval until ctx is done,
// then sends it once more.
func (s *TUISink) Pump(ctx context.Context, p Sender, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Send(TUIUpdateMsg{State: s.Snapshot()})
			return
		case <-ticker.C:
			p.Send(TUIUpdateMsg{State: s.Snapshot()})
		}
	}
}
