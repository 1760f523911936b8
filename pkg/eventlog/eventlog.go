// Package eventlog appends one row per processed batch to a local SQLite
// database for later analysis. Nothing in this package reads rows back.
package eventlog

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var (
	// ErrValueOutOfRange is returned when a counter does not fit an SQLite INTEGER.
	ErrValueOutOfRange = errors.New("value out of range for event log")

	// ErrSchemaMismatch is returned when an existing stats table lacks a column
	// the log writes to.
	ErrSchemaMismatch = errors.New("event log schema mismatch")
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS stats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	total_batches INTEGER NOT NULL,
	total_positions INTEGER NOT NULL,
	total_nodes INTEGER NOT NULL,
	throughput_sample INTEGER NOT NULL
)`

var columns = []string{"id", "timestamp", "total_batches", "total_positions", "total_nodes", "throughput_sample"}

const insertSQL = `INSERT INTO stats (timestamp, total_batches, total_positions, total_nodes, throughput_sample)
	VALUES (?, ?, ?, ?, ?)`

// Event is a single row: the cumulative counters right after a batch plus the
// throughput sample reported with it (zero when none was).
type Event struct {
	Timestamp        int64
	TotalBatches     uint64
	TotalPositions   uint64
	TotalNodes       uint64
	ThroughputSample uint32
}

// EventLog owns the database connection for the life of the process.
type EventLog struct {
	path   string
	db     *sql.DB
	insert *sql.Stmt
}

// Open connects to the database at path and makes sure the table exists.
// Opening an existing, correctly shaped log changes nothing.
func Open(path string) (*EventLog, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	// One writer; the file is not shared with other components.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to event log %s: %w", path, err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event log schema in %s: %w", path, err)
	}

	// An existing table is kept as is; Prepare does not look at its columns.
	if err := checkSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("event log %s: %w", path, err)
	}

	insert, err := db.Prepare(insertSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare event log insert for %s: %w", path, err)
	}

	return &EventLog{
		path:   path,
		db:     db,
		insert: insert,
	}, nil
}

// Path returns the database file location.
func (l *EventLog) Path() string {
	return l.path
}

// Append writes ev and returns the row id assigned to it.
func (l *EventLog) Append(ev Event) (int64, error) {
	if l.db == nil {
		return 0, sql.ErrConnDone
	}

	batches, err := toInteger("total_batches", ev.TotalBatches)
	if err != nil {
		return 0, err
	}
	positions, err := toInteger("total_positions", ev.TotalPositions)
	if err != nil {
		return 0, err
	}
	nodes, err := toInteger("total_nodes", ev.TotalNodes)
	if err != nil {
		return 0, err
	}

	res, err := l.insert.Exec(ev.Timestamp, batches, positions, nodes, int64(ev.ThroughputSample))
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}

	return id, nil
}

// Close releases the prepared statement and the connection.
func (l *EventLog) Close() error {
	if l.db == nil {
		return nil
	}

	var errs []error
	if l.insert != nil {
		errs = append(errs, l.insert.Close())
	}
	errs = append(errs, l.db.Close())

	l.insert = nil
	l.db = nil
	return errors.Join(errs...)
}

func checkSchema(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('stats')`)
	if err != nil {
		return fmt.Errorf("failed to inspect stats table: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to inspect stats table: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect stats table: %w", err)
	}

	var missing []string
	for _, col := range columns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: stats table missing columns %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

func toInteger(column string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s=%d", ErrValueOutOfRange, column, v)
	}
	return int64(v), nil
}
