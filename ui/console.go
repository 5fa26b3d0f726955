package ui

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franksops/blobpush/engine"
)

var _ engine.ProgressSink = (*ConsoleSink)(nil)

// ConsoleSink draws a single progress bar counting completed transfers.
type ConsoleSink struct {
	w io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewConsoleSink draws on w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (c *ConsoleSink) Found(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n == 0 {
		return
	}
	c.bar = progressbar.NewOptions64(int64(n),
		progressbar.OptionSetWriter(c.w),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(c.w, "\n")
		}),
	)
}

func (c *ConsoleSink) Destination(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		c.bar.Describe(name)
	}
}

func (c *ConsoleSink) Submitted(engine.Progress) {}

func (c *ConsoleSink) Completed(engine.WorkItem, error, engine.BatchSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

func (c *ConsoleSink) Error(error) {}

func (c *ConsoleSink) Finished(summary *engine.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil {
		return
	}
	if !summary.Drained {
		_ = c.bar.Exit()
		return
	}
	_ = c.bar.Finish()
}

// Current returns the number of completed transfers drawn so far.
func (c *ConsoleSink) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil {
		return 0
	}
	return c.bar.State().CurrentNum
}
