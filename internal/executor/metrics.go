package executor

import (
	"sync"
	"time"
)

// Metrics tracks statistics about one pipeline execution.
type Metrics struct {
	ToolsExecuted    int
	ToolsSucceeded   int
	ToolsFailed      int
	ToolsSkipped     int
	TotalDuration    time.Duration
	LongestToolTime  time.Duration
	ShortestToolTime time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy returns a snapshot without the mutex.
func (m *Metrics) Copy() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Metrics{
		ToolsExecuted:    m.ToolsExecuted,
		ToolsSucceeded:   m.ToolsSucceeded,
		ToolsFailed:      m.ToolsFailed,
		ToolsSkipped:     m.ToolsSkipped,
		TotalDuration:    m.TotalDuration,
		LongestToolTime:  m.LongestToolTime,
		ShortestToolTime: m.ShortestToolTime,
	}
}
