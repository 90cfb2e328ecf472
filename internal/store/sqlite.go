package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/tsunami/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    template_id TEXT NOT NULL,
    west        REAL NOT NULL,
    east        REAL NOT NULL,
    south       REAL NOT NULL,
    north       REAL NOT NULL,
    fault_lon   REAL NOT NULL,
    fault_lat   REAL NOT NULL,
    state       TEXT NOT NULL,
    error       TEXT,
    run_dir     TEXT,
    topo_path   TEXT,
    dtopo_path  TEXT,
    frame_count INTEGER,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const runColumns = `run_id, template_id, west, east, south, north, fault_lon, fault_lat,
	state, error, run_dir, topo_path, dtopo_path, frame_count, duration_ms, created_at, finished_at`

// ErrNotFound is returned when a run is not in the ledger.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.TemplateID, r.Extent.West, r.Extent.East, r.Extent.South, r.Extent.North,
		r.FaultLon, r.FaultLat, r.State, r.Error, r.RunDir, r.TopoPath, r.DtopoPath,
		r.FrameCount, r.DurationMS, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	r := &model.Run{}
	var errMsg, runDir, topoPath, dtopoPath sql.NullString
	err := row.Scan(
		&r.RunID, &r.TemplateID, &r.Extent.West, &r.Extent.East, &r.Extent.South, &r.Extent.North,
		&r.FaultLon, &r.FaultLat, &r.State, &errMsg, &runDir, &topoPath, &dtopoPath,
		&r.FrameCount, &r.DurationMS, &r.CreatedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	r.RunDir = runDir.String
	r.TopoPath = topoPath.String
	r.DtopoPath = dtopoPath.String
	return r, nil
}

// GetRun retrieves a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a page of runs ordered by created_at DESC, along with the
// total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunState moves a run to state. Terminal states also set finished_at.
func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID, state string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, runID, state); err != nil {
		return err
	}

	if model.IsTerminal(state) {
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET state = ?, finished_at = ? WHERE run_id = ?",
			state, time.Now().UTC(), runID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE runs SET state = ? WHERE run_id = ?",
			state, runID,
		)
	}
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	return tx.Commit()
}

// UpdateRun writes every mutable field of r. A state change must be a valid
// transition from the stored state.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *model.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, r.RunID, r.State); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, run_dir = ?, topo_path = ?, dtopo_path = ?,
			frame_count = ?, duration_ms = ?, finished_at = ?
		WHERE run_id = ?`,
		r.State, r.Error, r.RunDir, r.TopoPath, r.DtopoPath,
		r.FrameCount, r.DurationMS, r.FinishedAt, r.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return tx.Commit()
}

// checkTransition loads the stored state of runID and rejects a move to next
// that the lifecycle does not allow. Writing the current state again is
// allowed so field updates do not need a state change.
func checkTransition(ctx context.Context, tx *sql.Tx, runID, next string) error {
	var current string
	err := tx.QueryRowContext(ctx, "SELECT state FROM runs WHERE run_id = ?", runID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run state: %w", err)
	}
	if current == next && !model.IsTerminal(current) {
		return nil
	}
	if !model.ValidTransition(current, next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// GetRunStats returns run counts by state and template, and the average
// duration of finished runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		CountByState:    make(map[string]int),
		CountByTemplate: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	if err := s.countBy(ctx, "state", stats.CountByState); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "template_id", stats.CountByTemplate); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM runs WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM runs GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
