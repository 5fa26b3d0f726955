// Package report writes the progress of a run to an append-only log
// file and, optionally, echoes it to the console.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksops/blobpush/engine"
)

// ensure interface is implemented
var _ engine.ProgressSink = (*LogSink)(nil)

// LogSink is a ProgressSink backed by a dedicated logrus logger.
type LogSink struct {
	log  *logrus.Logger
	file *os.File

	mu   sync.Mutex
	echo io.Writer
}

// Open creates the parent directory of path and appends to the file.
// echo, when not nil, receives the console lines.
func Open(path string, echo io.Writer) (*LogSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	s := New(f, echo)
	s.file = f
	return s, nil
}

// New writes the log lines to w.
func New(w io.Writer, echo io.Writer) *LogSink {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: time.DateTime,
	})

	return &LogSink{log: log, echo: echo}
}

// Close closes the log file, if any.
func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func (s *LogSink) Found(n int) {
	s.log.Infof("Found %d file(s)", n)
}

func (s *LogSink) Destination(name string) {
	s.log.Infof("Container Name: %s", name)
}

func (s *LogSink) Submitted(p engine.Progress) {
	s.log.Infof("Time elapsed: %s - Files per second: %.2f - Files uploaded: %d",
		p.Elapsed.Round(time.Second), p.Rate, p.Submitted)
	s.printf("Uploaded files: %d from %d\n", p.Submitted, p.Total)
}

func (s *LogSink) Completed(item engine.WorkItem, err error, _ engine.BatchSnapshot) {
	if err == nil {
		s.log.WithField("item", item.Name).Debug("Upload completed")
	}
}

func (s *LogSink) Error(err error) {
	s.log.Error(err.Error())
	s.printf("Error: %v\n", err)
}

func (s *LogSink) Finished(summary *engine.Summary) {
	if !summary.Drained {
		line := fmt.Sprintf("Upload aborted after %d seconds - Files uploaded: %d from %d",
			int64(summary.Elapsed/time.Second), summary.Submitted, summary.Found)
		s.log.WithFields(logrus.Fields{
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
		}).Error(line)
		s.printf("%s\n", line)
		return
	}

	line := fmt.Sprintf("Upload has been completed in %d seconds - Files per second: %.2f - Container uploaded items: %d",
		int64(summary.Elapsed/time.Second), summary.Rate, summary.DestinationCount)

	entry := s.log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
	if summary.Failed > 0 {
		entry.Warn(line)
	} else {
		entry.Info(line)
	}
	s.printf("%s\n", line)
}

func (s *LogSink) printf(format string, args ...any) {
	if s.echo == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.echo, format, args...)
}
