package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	"github.com/roelfdiedericks/gopuppet/internal/paths"
)

const (
	pruneMaxAge   = 30 * 24 * time.Hour
	dbOpenOptions = "?_busy_timeout=5000"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS metrics (
	path       TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// EnablePersistence opens (or creates) the SQLite database at dbPath,
// restores previously saved metrics into memory and prunes stale rows.
// Metrics are written back by Save and Close.
func (m *Manager) EnablePersistence(dbPath string) error {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		return fmt.Errorf("failed to open metrics database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("failed to create metrics schema: %w", err)
	}

	m.mu.Lock()
	m.db = db
	m.mu.Unlock()

	loaded, err := m.load()
	if err != nil {
		L_warn("metrics: failed to load persisted data", "error", err)
	} else if loaded > 0 {
		L_debug("metrics: loaded persisted data", "count", loaded)
	}

	if pruned, err := m.prune(); err != nil {
		L_warn("metrics: failed to prune stale data", "error", err)
	} else if pruned > 0 {
		L_debug("metrics: pruned stale metrics", "count", pruned)
	}
	return nil
}

// Close saves all metrics and closes the database.
// Safe to call when persistence was never enabled.
func (m *Manager) Close() error {
	if m.database() == nil {
		return nil
	}
	if err := m.Save(); err != nil {
		L_warn("metrics: final save failed", "error", err)
	}

	m.mu.Lock()
	db := m.db
	m.db = nil
	m.mu.Unlock()
	return db.Close()
}

func (m *Manager) database() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Save writes all metrics to the database in a single transaction.
func (m *Manager) Save() error {
	db := m.database()
	if db == nil {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO metrics (path, type, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := saveMapEntries(stmt, now, m.timings, TypeTiming, marshalTiming); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.hitMiss, TypeHitMiss, marshalHitMiss); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.counters, TypeCounter, marshalCounter); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.successFail, TypeSuccessFail, marshalSuccessFail); err != nil {
		return err
	}

	return tx.Commit()
}

// saveMapEntries serializes all entries in a metric map and upserts them.
func saveMapEntries[T any](stmt *sql.Stmt, now int64, metrics map[string]*T, metricType MetricType, marshal func(*T) ([]byte, error)) error {
	for path, metric := range metrics {
		data, err := marshal(metric)
		if err != nil {
			L_warn("metrics: failed to marshal metric", "path", path, "type", metricType, "error", err)
			continue
		}
		if _, err := stmt.Exec(path, string(metricType), data, now); err != nil {
			return err
		}
	}
	return nil
}

// load restores persisted metrics into memory.
func (m *Manager) load() (int, error) {
	rows, err := m.database().Query("SELECT path, type, data FROM metrics")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for rows.Next() {
		var path, metricType string
		var data []byte
		if err := rows.Scan(&path, &metricType, &data); err != nil {
			L_warn("metrics: failed to scan row", "error", err)
			continue
		}
		if err := m.restoreMetric(path, MetricType(metricType), data); err != nil {
			L_warn("metrics: failed to restore metric", "path", path, "type", metricType, "error", err)
			continue
		}
		count++
	}
	return count, rows.Err()
}

// prune deletes metrics not updated within the retention period.
func (m *Manager) prune() (int, error) {
	cutoff := time.Now().Add(-pruneMaxAge).Unix()
	result, err := m.database().Exec("DELETE FROM metrics WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// restoreMetric registers a deserialized metric. Caller holds m.mu.
func (m *Manager) restoreMetric(path string, metricType MetricType, data []byte) error {
	var metric interface{}

	switch metricType {
	case TypeTiming:
		var p persistTiming
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		t := &TimingMetric{Count: p.Count, Total: p.Total, Min: p.Min, Max: p.Max, Last: p.Last, samples: p.Samples}
		m.timings[path] = t
		metric = t
	case TypeHitMiss:
		var p persistHitMiss
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		h := &HitMissMetric{Hits: p.Hits, Misses: p.Misses, LastHit: p.LastHit}
		m.hitMiss[path] = h
		metric = h
	case TypeCounter:
		var p persistCounter
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		c := &CounterMetric{Value: p.Value, Last: p.Last}
		m.counters[path] = c
		metric = c
	case TypeSuccessFail:
		var p persistSuccessFail
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.FailureReasons == nil {
			p.FailureReasons = make(map[string]int64)
		}
		s := &SuccessFailMetric{
			Success:        p.Success,
			Failures:       p.Failures,
			LastSuccess:    p.LastSuccess,
			LastFailure:    p.LastFailure,
			FailureReasons: p.FailureReasons,
		}
		m.successFail[path] = s
		metric = s
	default:
		return fmt.Errorf("unknown metric type %q", metricType)
	}

	node := m.getOrCreateNode(path)
	node.Type = metricType
	node.Metric = metric
	return nil
}

// JSON-safe mirrors of the metric structs (no mutexes).

type persistTiming struct {
	Count   int64           `json:"count"`
	Total   time.Duration   `json:"total"`
	Min     time.Duration   `json:"min"`
	Max     time.Duration   `json:"max"`
	Last    time.Duration   `json:"last"`
	Samples []time.Duration `json:"samples,omitempty"`
}

type persistHitMiss struct {
	Hits    int64     `json:"hits"`
	Misses  int64     `json:"misses"`
	LastHit time.Time `json:"last_hit"`
}

type persistCounter struct {
	Value int64     `json:"value"`
	Last  time.Time `json:"last"`
}

type persistSuccessFail struct {
	Success        int64            `json:"success"`
	Failures       int64            `json:"failures"`
	LastSuccess    time.Time        `json:"last_success"`
	LastFailure    time.Time        `json:"last_failure"`
	FailureReasons map[string]int64 `json:"failure_reasons,omitempty"`
}

func marshalTiming(t *TimingMetric) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(persistTiming{Count: t.Count, Total: t.Total, Min: t.Min, Max: t.Max, Last: t.Last, Samples: t.samples})
}

func marshalHitMiss(h *HitMissMetric) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.Marshal(persistHitMiss{Hits: h.Hits, Misses: h.Misses, LastHit: h.LastHit})
}

func marshalCounter(c *CounterMetric) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(persistCounter{Value: c.Value, Last: c.Last})
}

func marshalSuccessFail(s *SuccessFailMetric) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(persistSuccessFail{
		Success:        s.Success,
		Failures:       s.Failures,
		LastSuccess:    s.LastSuccess,
		LastFailure:    s.LastFailure,
		FailureReasons: s.FailureReasons,
	})
}
