package store

import (
	"context"
	"errors"

	"github.com/seantiz/tsunami/internal/model"
)

// ErrInvalidTransition is returned when a run state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// RunStats holds aggregate run statistics.
type RunStats struct {
	Total           int            `json:"total"`
	CountByState    map[string]int `json:"count_by_state"`
	CountByTemplate map[string]int `json:"count_by_template"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the run ledger.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunState(ctx context.Context, runID, state string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
