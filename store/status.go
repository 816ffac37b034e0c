package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"packt-downloader/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Record is the last known state of one (product, format) target.
type Record struct {
	ProductID   string
	Format      string
	ProductName string
	Path        string
	Status      model.TargetStatus
	Attempts    int
	LastError   string
	RunID       string
	UpdatedAt   time.Time
}

func (r Record) Key() model.TargetKey {
	return model.TargetKey{ProductID: r.ProductID, Format: r.Format}
}

// Run describes one invocation of the pipeline.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Complete   int
	Skipped    int
	Failed     int
	Cancelled  bool
}

// StatusStore keeps per-target status and run history in a sqlite file.
type StatusStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStatusStore opens or creates the database at path and applies
// pending migrations.
func OpenStatusStore(ctx context.Context, path string) (*StatusStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// sqlite allows one writer; workers share a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &StatusStore{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	// m.Close would close db as well, only the source is released here.
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate state database: %w", err)
	}
	return nil
}

func (s *StatusStore) Close() error {
	return s.db.Close()
}

// Record upserts the state of a target. Entering RESOLVING counts as a new
// attempt.
func (s *StatusStore) Record(ctx context.Context, rec Record) error {
	attempt := 0
	if rec.Status == model.TargetResolving {
		attempt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (product_id, format, product_name, path, status, attempts, last_error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, format) DO UPDATE SET
			product_name = excluded.product_name,
			path         = CASE WHEN excluded.path = '' THEN targets.path ELSE excluded.path END,
			status       = excluded.status,
			attempts     = targets.attempts + excluded.attempts,
			last_error   = excluded.last_error,
			run_id       = excluded.run_id,
			updated_at   = excluded.updated_at`,
		rec.ProductID, rec.Format, rec.ProductName, rec.Path, rec.Status.String(),
		attempt, rec.LastError, rec.RunID, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s/%s: %w", rec.ProductID, rec.Format, err)
	}
	return nil
}

// Get returns the record of a target; ok is false when none exists.
func (s *StatusStore) Get(ctx context.Context, key model.TargetKey) (rec Record, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, format, product_name, path, status, attempts, last_error, run_id, updated_at
		FROM targets WHERE product_id = ? AND format = ?`, key.ProductID, key.Format)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read %s/%s: %w", key.ProductID, key.Format, err)
	}
	return rec, true, nil
}

// List returns all records, or only those in the given statuses, ordered by
// product name and format.
func (s *StatusStore) List(ctx context.Context, statuses ...model.TargetStatus) ([]Record, error) {
	query := `
		SELECT product_id, format, product_name, path, status, attempts, last_error, run_id, updated_at
		FROM targets`
	var args []interface{}
	if len(statuses) > 0 {
		query += " WHERE status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, st := range statuses {
			args = append(args, st.String())
		}
	}
	query += " ORDER BY product_name, format"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list targets: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		status  string
		updated int64
	)
	err := row.Scan(&rec.ProductID, &rec.Format, &rec.ProductName, &rec.Path, &status,
		&rec.Attempts, &rec.LastError, &rec.RunID, &updated)
	if err != nil {
		return Record{}, err
	}
	rec.Status, err = model.ParseTargetStatus(status)
	if err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = time.Unix(0, updated)
	return rec, nil
}

// BeginRun registers a new run with a time-ordered id.
func (s *StatusStore) BeginRun(ctx context.Context) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("failed to generate run id: %w", err)
	}
	run := Run{ID: id.String(), StartedAt: s.now()}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		run.ID, run.StartedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome counts of a run.
func (s *StatusStore) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, complete = ?, skipped = ?, failed = ?, cancelled = ?
		WHERE id = ?`,
		run.FinishedAt.UnixNano(), run.Complete, run.Skipped, run.Failed, run.Cancelled, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *StatusStore) LastRun(ctx context.Context) (run Run, ok bool, err error) {
	var started, finished int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, complete, skipped, failed, cancelled
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`).
		Scan(&run.ID, &started, &finished, &run.Complete, &run.Skipped, &run.Failed, &run.Cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("failed to read last run: %w", err)
	}
	run.StartedAt = time.Unix(0, started)
	if finished > 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	return run, true, nil
}
