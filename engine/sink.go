package engine

import "time"

// Progress is emitted once per submission.
type Progress struct {
	Elapsed   time.Duration
	Rate      float64
	Submitted int64
	Total     int64
}

// ProgressSink receives the events of a run. Completed and Error are
// called from transfer goroutines, so implementations must be safe for
// concurrent use.
type ProgressSink interface {
	Found(n int)
	Destination(name string)
	Submitted(p Progress)
	Completed(item WorkItem, err error, snap BatchSnapshot)
	Error(err error)
	Finished(summary *Summary)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Found(int)                                {}
func (NopSink) Destination(string)                       {}
func (NopSink) Submitted(Progress)                       {}
func (NopSink) Completed(WorkItem, error, BatchSnapshot) {}
func (NopSink) Error(error)                              {}
func (NopSink) Finished(*Summary)                        {}

// MultiSink fans every event out to each sink in order.
type MultiSink []ProgressSink

func (m MultiSink) Found(n int) {
	for _, s := range m {
		s.Found(n)
	}
}

func (m MultiSink) Destination(name string) {
	for _, s := range m {
		s.Destination(name)
	}
}

func (m MultiSink) Submitted(p Progress) {
	for _, s := range m {
		s.Submitted(p)
	}
}

func (m MultiSink) Completed(item WorkItem, err error, snap BatchSnapshot) {
	for _, s := range m {
		s.Completed(item, err, snap)
	}
}

func (m MultiSink) Error(err error) {
	for _, s := range m {
		s.Error(err)
	}
}

func (m MultiSink) Finished(summary *Summary) {
	for _, s := range m {
		s.Finished(summary)
	}
}
