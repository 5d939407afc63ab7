package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("coupling run not found")

// Run statuses.
const (
	StatusComplete  = "complete"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// RunSample is one stored sweep sample. Score is NaN when the frame could not
// be scored.
type RunSample struct {
	Axis     hardware.Axis     `json:"axis"`
	Position int               `json:"position"`
	Score    float64           `json:"score"`
	Spot     *metric.SpotStats `json:"spot,omitempty"`
}

// CouplingRun is the stored record of one coupling attempt.
type CouplingRun struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	SerialPort string          `json:"serial_port"`
	Status     string          `json:"status"`
	Reached    string          `json:"reached"`
	Error      string          `json:"error,omitempty"`
	ZFocus     *int            `json:"z_focus,omitempty"`
	XEdge      *int            `json:"x_edge,omitempty"`
	Config     json.RawMessage `json:"config"`
	Samples    []RunSample     `json:"samples,omitempty"`
}

// NewCouplingRun builds the record of a finished Controller.Run call.
// Positions the run never selected are left nil.
func NewCouplingRun(cfg coupling.Config, res coupling.Result, runErr error) (*CouplingRun, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	run := &CouplingRun{
		RunID:      uuid.New().String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		SerialPort: cfg.SerialPort,
		Status:     StatusComplete,
		Reached:    res.Reached.String(),
		Config:     cfgJSON,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = StatusCancelled
		run.Error = runErr.Error()
	default:
		run.Status = StatusError
		run.Error = runErr.Error()
	}

	if res.Reached >= coupling.StateZRelocate {
		z := res.ZFocus
		run.ZFocus = &z
	}
	if res.Reached >= coupling.StateXRelocate {
		x := res.XEdge
		run.XEdge = &x
	}

	for _, s := range res.ZSeries {
		run.Samples = append(run.Samples, RunSample{Axis: hardware.AxisZ, Position: s.Position, Score: s.Score, Spot: s.Spot})
	}
	for _, s := range res.XSeries {
		run.Samples = append(run.Samples, RunSample{Axis: hardware.AxisX, Position: s.Position, Score: s.Score, Spot: s.Spot})
	}
	return run, nil
}

// InsertRun stores run and its samples in one transaction. An empty RunID is
// replaced with a new UUID.
func (db *DB) InsertRun(ctx context.Context, run *CouplingRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupling_runs (
			run_id, started_at_ns, finished_at_ns, serial_port, status,
			reached_state, error, z_focus, x_edge, config_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.SerialPort, run.Status,
		run.Reached, nullString(run.Error), nullInt(run.ZFocus), nullInt(run.XEdge), string(run.Config),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO coupling_samples (run_id, axis, seq, position, score, spot_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	seq := map[hardware.Axis]int{}
	for _, s := range run.Samples {
		var spot sql.NullString
		if s.Spot != nil {
			b, err := json.Marshal(s.Spot)
			if err != nil {
				return fmt.Errorf("encode spot: %w", err)
			}
			spot = sql.NullString{String: string(b), Valid: true}
		}
		score := sql.NullFloat64{Float64: s.Score, Valid: !math.IsNaN(s.Score) && !math.IsInf(s.Score, 0)}
		if _, err := stmt.ExecContext(ctx, run.RunID, string(s.Axis), seq[s.Axis], s.Position, score, spot); err != nil {
			return fmt.Errorf("failed to insert sample %s[%d]: %w", s.Axis, seq[s.Axis], err)
		}
		seq[s.Axis]++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id, started_at_ns, finished_at_ns, serial_port, status,
	reached_state, error, z_focus, x_edge, config_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*CouplingRun, error) {
	var (
		run            CouplingRun
		startNs, endNs int64
		errText        sql.NullString
		zFocus, xEdge  sql.NullInt64
		cfgJSON        string
	)
	if err := row.Scan(&run.RunID, &startNs, &endNs, &run.SerialPort, &run.Status,
		&run.Reached, &errText, &zFocus, &xEdge, &cfgJSON); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startNs).UTC()
	run.FinishedAt = time.Unix(0, endNs).UTC()
	run.Error = errText.String
	if zFocus.Valid {
		v := int(zFocus.Int64)
		run.ZFocus = &v
	}
	if xEdge.Valid {
		v := int(xEdge.Int64)
		run.XEdge = &v
	}
	run.Config = json.RawMessage(cfgJSON)
	return &run, nil
}

// GetRun loads a run with its samples, Z samples first, each axis in sweep
// order.
func (db *DB) GetRun(ctx context.Context, runID string) (*CouplingRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM coupling_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT axis, position, score, spot_json FROM coupling_samples
		WHERE run_id = ?
		ORDER BY CASE axis WHEN 'Z' THEN 0 ELSE 1 END, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s     RunSample
			axis  string
			score sql.NullFloat64
			spot  sql.NullString
		)
		if err := rows.Scan(&axis, &s.Position, &score, &spot); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Axis = hardware.Axis(axis)
		s.Score = math.NaN()
		if score.Valid {
			s.Score = score.Float64
		}
		if spot.Valid {
			s.Spot = &metric.SpotStats{}
			if err := json.Unmarshal([]byte(spot.String), s.Spot); err != nil {
				return nil, fmt.Errorf("decode spot: %w", err)
			}
		}
		run.Samples = append(run.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, without samples. A
// non-positive limit returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]CouplingRun, error) {
	query := `SELECT ` + runColumns + ` FROM coupling_runs ORDER BY started_at_ns DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []CouplingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
