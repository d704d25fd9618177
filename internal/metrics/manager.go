// Package metrics records operation timings, cache hit rates, counters and
// success rates in a process-wide tree keyed by "topic/function" paths.
package metrics

import (
	"database/sql"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const maxSamples = 1000 // samples kept per timing for percentiles

// Manager is the process-wide metrics store
type Manager struct {
	mu          sync.RWMutex
	root        *MetricNode
	timings     map[string]*TimingMetric
	hitMiss     map[string]*HitMissMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	active      map[string]time.Time // running timers
	keyCounter  uint64

	db *sql.DB // nil unless EnablePersistence succeeded
}

var (
	instance *Manager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *Manager {
	once.Do(func() {
		instance = newManager()
	})
	return instance
}

func newManager() *Manager {
	return &Manager{
		root: &MetricNode{
			Name:     "root",
			Children: make(map[string]*MetricNode),
		},
		timings:     make(map[string]*TimingMetric),
		hitMiss:     make(map[string]*HitMissMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		active:      make(map[string]time.Time),
	}
}

// Reset drops every recorded metric. Persistence, if enabled, is kept.
func (m *Manager) Reset() {
	fresh := newManager()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = fresh.root
	m.timings = fresh.timings
	m.hitMiss = fresh.hitMiss
	m.counters = fresh.counters
	m.successFail = fresh.successFail
	m.active = fresh.active
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// getOrCreateNode ensures a node exists in the tree. Caller holds m.mu.
func (m *Manager) getOrCreateNode(path string) *MetricNode {
	current := m.root
	fullPath := ""
	for _, part := range strings.Split(path, "/") {
		if fullPath == "" {
			fullPath = part
		} else {
			fullPath = fullPath + "/" + part
		}

		node, exists := current.Children[part]
		if !exists {
			node = &MetricNode{
				Name:     part,
				Path:     fullPath,
				Children: make(map[string]*MetricNode),
			}
			current.Children[part] = node
		}
		current = node
	}
	return current
}

// StartTiming begins timing an operation and returns the timer key
func (m *Manager) StartTiming(topic, function string) string {
	path := buildPath(topic, function)
	key := fmt.Sprintf("%s#%d", path, atomic.AddUint64(&m.keyCounter, 1))

	m.mu.Lock()
	m.active[key] = time.Now()
	m.mu.Unlock()

	return key
}

// EndTiming completes timing an operation
func (m *Manager) EndTiming(key string) {
	m.mu.Lock()
	startTime, exists := m.active[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	m.mu.Unlock()

	path := key
	if idx := strings.LastIndex(key, "#"); idx >= 0 {
		path = key[:idx]
	}
	m.RecordDuration(path, "", time.Since(startTime))
}

// RecordDuration records a duration directly
func (m *Manager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, 16),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
		node := m.getOrCreateNode(path)
		node.Type = TypeTiming
		node.Metric = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

func (m *Manager) hitMissFor(path string) *HitMissMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.hitMiss[path]
	if !exists {
		metric = &HitMissMetric{}
		m.hitMiss[path] = metric
		node := m.getOrCreateNode(path)
		node.Type = TypeHitMiss
		node.Metric = metric
	}
	return metric
}

// RecordHit records a cache hit
func (m *Manager) RecordHit(topic, function string) {
	metric := m.hitMissFor(buildPath(topic, function))
	metric.mu.Lock()
	metric.Hits++
	metric.LastHit = time.Now()
	metric.mu.Unlock()
}

// RecordMiss records a cache miss
func (m *Manager) RecordMiss(topic, function string) {
	metric := m.hitMissFor(buildPath(topic, function))
	metric.mu.Lock()
	metric.Misses++
	metric.mu.Unlock()
}

// AddCounter adds delta to a counter
func (m *Manager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
		node := m.getOrCreateNode(path)
		node.Type = TypeCounter
		node.Metric = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	metric.Value += delta
	metric.Last = time.Now()
	metric.mu.Unlock()
}

func (m *Manager) successFailFor(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
		node := m.getOrCreateNode(path)
		node.Type = TypeSuccessFail
		node.Metric = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *Manager) RecordSuccess(topic, function string) {
	metric := m.successFailFor(buildPath(topic, function))
	metric.mu.Lock()
	metric.Success++
	metric.LastSuccess = time.Now()
	metric.mu.Unlock()
}

// RecordFailure records a failed operation
func (m *Manager) RecordFailure(topic, function, reason string) {
	metric := m.successFailFor(buildPath(topic, function))
	metric.mu.Lock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
	metric.mu.Unlock()
}

// GetSnapshot returns a snapshot of all metrics keyed by path
func (m *Manager) GetSnapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make(map[string]*MetricSnapshot)

	for path, metric := range m.timings {
		metric.mu.RLock()
		avg := float64(0)
		if metric.Count > 0 {
			avg = float64(metric.Total) / float64(metric.Count) / float64(time.Millisecond)
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeTiming,
			Data: TimingSnapshot{
				Count:  metric.Count,
				AvgMs:  avg,
				MinMs:  float64(metric.Min) / float64(time.Millisecond),
				MaxMs:  float64(metric.Max) / float64(time.Millisecond),
				LastMs: float64(metric.Last) / float64(time.Millisecond),
				P95Ms:  calculatePercentile(metric.samples, 95),
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.hitMiss {
		metric.mu.RLock()
		rate := float64(0)
		if total := metric.Hits + metric.Misses; total > 0 {
			rate = float64(metric.Hits) / float64(total) * 100
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeHitMiss,
			Data: HitMissSnapshot{Hits: metric.Hits, Misses: metric.Misses, HitRate: rate},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.counters {
		metric.mu.RLock()
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeCounter,
			Data: CounterSnapshot{Value: metric.Value},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.successFail {
		metric.mu.RLock()
		rate := float64(0)
		if total := metric.Success + metric.Failures; total > 0 {
			rate = float64(metric.Success) / float64(total) * 100
		}
		reasons := make(map[string]int64, len(metric.FailureReasons))
		for k, v := range metric.FailureReasons {
			reasons[k] = v
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeSuccessFail,
			Data: SuccessFailSnapshot{
				Success:        metric.Success,
				Failures:       metric.Failures,
				SuccessRate:    rate,
				FailureReasons: reasons,
			},
		}
		metric.mu.RUnlock()
	}

	return snapshots
}

// GetTree returns the root of the metric tree
func (m *Manager) GetTree() *MetricNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// GetCaller returns the name of the calling function, skipping metrics
// package frames and closures.
func GetCaller() string {
	for skip := 2; skip < 10; skip++ {
		pc, _, _, ok := runtime.Caller(skip)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		fullName := fn.Name()
		if strings.Contains(fullName, "/metrics.") {
			continue
		}

		name := fullName
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if idx := strings.Index(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		// (*TabBar).OpenTab -> TabBar.OpenTab
		name = strings.NewReplacer("(*", "", ")", "").Replace(name)

		if strings.HasPrefix(name, "func") && len(name) > 4 {
			if _, err := fmt.Sscanf(name[4:], "%d", new(int)); err == nil {
				continue
			}
		}
		return name
	}
	return "unknown"
}

// calculatePercentile calculates the Nth percentile from samples in ms
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx]) / float64(time.Millisecond)
}
