package engine

import "time"

// ThroughputMeter converts a count of submitted items into items per
// second since Start.
type ThroughputMeter struct {
	now   func() time.Time
	start time.Time
}

// NewThroughputMeter returns a meter reading the given clock. A nil
// clock means time.Now.
func NewThroughputMeter(now func() time.Time) *ThroughputMeter {
	if now == nil {
		now = time.Now
	}
	return &ThroughputMeter{now: now}
}

// Start records the reference time.
func (m *ThroughputMeter) Start() {
	m.start = m.now()
}

// Elapsed returns the time since Start, or 0 before Start.
func (m *ThroughputMeter) Elapsed() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	return m.now().Sub(m.start)
}

// Sample returns Rate(count, Elapsed()).
func (m *ThroughputMeter) Sample(count int64) float64 {
	return Rate(count, m.Elapsed())
}

// Rate divides count by elapsed truncated to whole seconds. Less than
// one whole second yields 0.
func Rate(count int64, elapsed time.Duration) float64 {
	secs := int64(elapsed / time.Second)
	if secs <= 0 {
		return 0
	}
	return float64(count) / float64(secs)
}
