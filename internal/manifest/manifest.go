// Package manifest records replay runs and per-cloud export attempts in a
// SQLite database, so an operator can audit which sequence numbers were
// written, overwritten or failed.
package manifest

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Export status values.
const (
	StatusWritten = "written"
	StatusFailed  = "failed"
)

// Manifest is an open manifest database.
type Manifest struct {
	*sql.DB
}

// Open opens (creating if needed) the manifest at path and applies pending
// migrations.
func Open(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialised and makes ":memory:" usable.
	db.SetMaxOpenConns(1)

	m := &Manifest{db}
	if err := m.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manifest) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(m.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mg.Log = &migrateLogger{}
	// Closing mg would close the shared *sql.DB.
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Run describes a replay invocation.
type Run struct {
	BagPath     string
	Topic       string
	TargetFrame string
	OutputDir   string
	Encoding    string
	Started     time.Time
}

// Totals summarises a finished run.
type Totals struct {
	Records  int
	Exported int
	Failed   int
}

// Export is one export attempt.
type Export struct {
	Seq     uint32
	Topic   string
	FrameID string
	Stamp   time.Time
	Points  int
	Fields  string
	Path    string
	Status  string
	Error   string
}

// RunLog appends export attempts to a single run.
type RunLog struct {
	db *sql.DB
	id string
}

// StartRun inserts a run row with a fresh id.
func (m *Manifest) StartRun(r Run) (*RunLog, error) {
	id := uuid.NewString()
	_, err := m.Exec(`
		INSERT INTO runs (run_id, bag_path, topic, target_frame, output_dir, encoding, started_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, r.BagPath, r.Topic, r.TargetFrame, r.OutputDir, r.Encoding, r.Started.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return &RunLog{db: m.DB, id: id}, nil
}

// ID returns the run id.
func (l *RunLog) ID() string { return l.id }

// RecordExport stores one export attempt.
func (l *RunLog) RecordExport(e Export) error {
	var stamp int64
	if !e.Stamp.IsZero() {
		stamp = e.Stamp.UnixNano()
	}
	_, err := l.db.Exec(`
		INSERT INTO exports (run_id, seq, topic, frame_id, stamp_unix_ns, points, fields, path, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.id, int64(e.Seq), e.Topic, e.FrameID, stamp, e.Points, e.Fields, e.Path, e.Status, e.Error)
	if err != nil {
		return fmt.Errorf("failed to insert export: %w", err)
	}
	return nil
}

// Finish stamps the run with its end time and totals.
func (l *RunLog) Finish(finished time.Time, t Totals) error {
	_, err := l.db.Exec(`
		UPDATE runs SET finished_unix_ns = ?, records = ?, exported = ?, failed = ?
		WHERE run_id = ?
	`, finished.UnixNano(), t.Records, t.Exported, t.Failed, l.id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Exports returns a run's export attempts in insertion order.
func (m *Manifest) Exports(runID string) ([]Export, error) {
	rows, err := m.Query(`
		SELECT seq, topic, frame_id, stamp_unix_ns, points, fields, path, status, error
		FROM exports WHERE run_id = ? ORDER BY export_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Export
	for rows.Next() {
		var (
			e     Export
			seq   int64
			stamp int64
		)
		if err := rows.Scan(&seq, &e.Topic, &e.FrameID, &stamp, &e.Points, &e.Fields, &e.Path, &e.Status, &e.Error); err != nil {
			return nil, err
		}
		e.Seq = uint32(seq)
		if stamp != 0 {
			e.Stamp = time.Unix(0, stamp).UTC()
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunTotals returns the stored totals of a run and whether it finished.
func (m *Manifest) RunTotals(runID string) (Totals, bool, error) {
	var (
		t        Totals
		finished sql.NullInt64
	)
	err := m.QueryRow(`
		SELECT records, exported, failed, finished_unix_ns FROM runs WHERE run_id = ?
	`, runID).Scan(&t.Records, &t.Exported, &t.Failed, &finished)
	if err != nil {
		return Totals{}, false, err
	}
	return t, finished.Valid, nil
}
