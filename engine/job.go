package engine

import "time"

// WorkItem represents a single file to be uploaded into the run's
// destination container.
type WorkItem struct {
	// Path is the local file path read by the upload.
	Path string

	// Name is the destination object name: the path relative to the
	// enumeration root, slash-separated.
	Name string

	// Size and ModTime are the source metadata observed at enumeration.
	Size    int64
	ModTime time.Time
}
