package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the incident journal.
const schema = `
CREATE TABLE IF NOT EXISTS incidents (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns    INTEGER NOT NULL,
    reason          TEXT NOT NULL,
    avg_interval_ms REAL NOT NULL,
    window_fill     INTEGER NOT NULL,
    locked          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_incidents_timestamp ON incidents(timestamp_ns);
`

// Journal is the SQLite-backed incident log.
type Journal struct {
	db         *sql.DB
	maxRecords int
}

// Open opens or creates the journal database at the given path. Records
// beyond maxRecords are pruned oldest-first on insert; maxRecords <= 0
// disables pruning.
func Open(path string, maxRecords int) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db, maxRecords: maxRecords}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append records an incident and returns its ID.
func (j *Journal) Append(inc Incident) (int64, error) {
	result, err := j.db.Exec(`
		INSERT INTO incidents (timestamp_ns, reason, avg_interval_ms, window_fill, locked)
		VALUES (?, ?, ?, ?, ?)`,
		inc.Timestamp.UnixNano(), inc.Reason, inc.AvgIntervalMs, inc.WindowFill, inc.Locked,
	)
	if err != nil {
		return 0, fmt.Errorf("insert incident: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	if err := j.prune(); err != nil {
		return id, err
	}
	return id, nil
}

// Recent returns the newest incidents, most recent first.
func (j *Journal) Recent(limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(`
		SELECT id, timestamp_ns, reason, avg_interval_ms, window_fill, locked
		FROM incidents
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// Range returns incidents within [start, end], oldest first.
func (j *Journal) Range(start, end time.Time) ([]Incident, error) {
	rows, err := j.db.Query(`
		SELECT id, timestamp_ns, reason, avg_interval_ms, window_fill, locked
		FROM incidents
		WHERE timestamp_ns >= ? AND timestamp_ns <= ?
		ORDER BY timestamp_ns ASC`, start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query incident range: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// Count returns the number of stored incidents.
func (j *Journal) Count() (int, error) {
	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

// prune drops the oldest rows above the record cap.
func (j *Journal) prune() error {
	if j.maxRecords <= 0 {
		return nil
	}
	_, err := j.db.Exec(`
		DELETE FROM incidents
		WHERE id NOT IN (SELECT id FROM incidents ORDER BY id DESC LIMIT ?)`,
		j.maxRecords,
	)
	if err != nil {
		return fmt.Errorf("prune incidents: %w", err)
	}
	return nil
}

func scanIncidents(rows *sql.Rows) ([]Incident, error) {
	var incidents []Incident

	for rows.Next() {
		var inc Incident
		var tsNs int64

		if err := rows.Scan(&inc.ID, &tsNs, &inc.Reason, &inc.AvgIntervalMs, &inc.WindowFill, &inc.Locked); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Timestamp = time.Unix(0, tsNs)
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return incidents, nil
}
