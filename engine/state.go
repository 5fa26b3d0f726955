package engine

import "sync/atomic"

// BatchState holds the counters shared by the orchestrator and every
// transfer task. submitted is written by the orchestrator goroutine
// only, and always before the task is started.
type BatchState struct {
	total     atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
}

// BatchSnapshot is a point-in-time copy of BatchState.
type BatchSnapshot struct {
	Total     int64
	Submitted int64
	Completed int64
	Succeeded int64
	Failed    int64
	Bytes     int64
}

func (s *BatchState) complete(item WorkItem, ok bool) {
	if ok {
		s.succeeded.Add(1)
		s.bytes.Add(item.Size)
	} else {
		s.failed.Add(1)
	}
	s.completed.Add(1)
}

// Snapshot reads completed before submitted so that a concurrent
// reader never observes Completed > Submitted.
func (s *BatchState) Snapshot() BatchSnapshot {
	completed := s.completed.Load()
	return BatchSnapshot{
		Total:     s.total.Load(),
		Completed: completed,
		Submitted: s.submitted.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Bytes:     s.bytes.Load(),
	}
}
