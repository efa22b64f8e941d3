package runner

import (
	"sort"
	"sync"
	"time"
)

// Metrics tracks task run statistics for the status endpoint.
type Metrics struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	tasks           map[string]*TaskStats
	mutex           sync.RWMutex
}

// TaskStats holds the statistics of a single task.
type TaskStats struct {
	Name         string        `json:"name"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastRun      time.Time     `json:"last_run"`
	LastError    string        `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	TotalRuns       int64         `json:"total_runs"`
	SuccessfulRuns  int64         `json:"successful_runs"`
	FailedRuns      int64         `json:"failed_runs"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	TotalDuration   time.Duration `json:"total_duration_ns"`
	SuccessRate     float64       `json:"success_rate"`
	Tasks           []TaskStats   `json:"tasks"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{tasks: make(map[string]*TaskStats)}
}

// RecordRun records one run of task.
func (m *Metrics) RecordRun(task string, d time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRuns++
	m.TotalDuration += d

	ts, ok := m.tasks[task]
	if !ok {
		ts = &TaskStats{Name: task}
		m.tasks[task] = ts
	}
	ts.Runs++
	ts.LastDuration = d
	ts.LastRun = time.Now()

	if err != nil {
		m.FailedRuns++
		ts.Failures++
		ts.LastError = err.Error()
	} else {
		m.SuccessfulRuns++
		ts.LastError = ""
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalRuns)
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s := Snapshot{
		TotalRuns:       m.TotalRuns,
		SuccessfulRuns:  m.SuccessfulRuns,
		FailedRuns:      m.FailedRuns,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
		SuccessRate:     m.successRate(),
		Tasks:           make([]TaskStats, 0, len(m.tasks)),
	}
	for _, ts := range m.tasks {
		s.Tasks = append(s.Tasks, *ts)
	}
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].Name < s.Tasks[j].Name })
	return s
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRuns = 0
	m.SuccessfulRuns = 0
	m.FailedRuns = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
	m.tasks = make(map[string]*TaskStats)
}

// GetSuccessRate returns the success rate as a percentage
func (m *Metrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.successRate()
}

func (m *Metrics) successRate() float64 {
	if m.TotalRuns == 0 {
		return 0.0
	}
	return float64(m.SuccessfulRuns) / float64(m.TotalRuns) * 100.0
}
