package shared

import (
	"sync"
	"time"
)

// OperationMetrics tracks per-operation counts and latency for a service.
// Cheap enough to sit on the hot path of settlement and provider calls.
type OperationMetrics struct {
	serviceName string
	mutex       sync.RWMutex
	operations  map[string]*operationStats
}

type operationStats struct {
	Success       int64
	Failure       int64
	TotalDuration time.Duration
	LastDuration  time.Duration
	LastRun       time.Time
}

// OperationSnapshot is the read-side view of one operation's stats.
type OperationSnapshot struct {
	Operation   string        `json:"operation"`
	Success     int64         `json:"success"`
	Failure     int64         `json:"failure"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastRun     time.Time     `json:"last_run"`
}

// NewOperationMetrics creates a metrics tracker for the named service.
func NewOperationMetrics(serviceName string) *OperationMetrics {
	return &OperationMetrics{
		serviceName: serviceName,
		operations:  make(map[string]*operationStats),
	}
}

// Record registers one completed operation run.
func (m *OperationMetrics) Record(operation string, duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stats, ok := m.operations[operation]
	if !ok {
		stats = &operationStats{}
		m.operations[operation] = stats
	}

	if err != nil {
		stats.Failure++
	} else {
		stats.Success++
	}
	stats.TotalDuration += duration
	stats.LastDuration = duration
	stats.LastRun = time.Now()
}

// Snapshot returns the current stats for every recorded operation.
func (m *OperationMetrics) Snapshot() []OperationSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshots := make([]OperationSnapshot, 0, len(m.operations))
	for name, stats := range m.operations {
		total := stats.Success + stats.Failure
		var avg time.Duration
		if total > 0 {
			avg = stats.TotalDuration / time.Duration(total)
		}
		snapshots = append(snapshots, OperationSnapshot{
			Operation:   name,
			Success:     stats.Success,
			Failure:     stats.Failure,
			AvgDuration: avg,
			LastRun:     stats.LastRun,
		})
	}
	return snapshots
}

// ServiceName returns the name the metrics were created with.
func (m *OperationMetrics) ServiceName() string {
	return m.serviceName
}
