package db

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
	"github.com/banshee-data/autocouple/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(start time.Time) coupling.Result {
	return coupling.Result{
		ZFocus: 100,
		XEdge:  20,
		ZSeries: coupling.Series{
			{Position: 0, Score: 500, Spot: &metric.SpotStats{Area: 500, Peak: 12.5, PeakX: 3, PeakY: 4}},
			{Position: 100, Score: 80, Spot: &metric.SpotStats{Area: 80, Peak: 40}},
			{Position: 200, Score: math.NaN()},
		},
		XSeries: coupling.Series{
			{Position: 0, Score: 10}, {Position: 10, Score: 10}, {Position: 20, Score: 10},
			{Position: 30, Score: 90}, {Position: 40, Score: 90}, {Position: 50, Score: 90},
		},
		Reached:    coupling.StateDone,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
}

func TestMigrateVersion(t *testing.T) {
	db := setupTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestInsertAndGetRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	run, err := NewCouplingRun(coupling.DefaultConfig(), sampleResult(start), nil)
	require.NoError(t, err)
	require.NotEmpty(t, run.RunID)
	assert.Equal(t, StatusComplete, run.Status)
	require.NoError(t, db.InsertRun(ctx, run))

	got, err := db.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.True(t, got.StartedAt.Equal(start))
	assert.Equal(t, 2*time.Second, got.FinishedAt.Sub(got.StartedAt))
	assert.Equal(t, coupling.DefaultSerialPort, got.SerialPort)
	assert.Equal(t, "done", got.Reached)
	require.NotNil(t, got.ZFocus)
	require.NotNil(t, got.XEdge)
	assert.Equal(t, 100, *got.ZFocus)
	assert.Equal(t, 20, *got.XEdge)
	assert.JSONEq(t, string(run.Config), string(got.Config))

	require.Len(t, got.Samples, 9)
	assert.Equal(t, hardware.AxisZ, got.Samples[0].Axis)
	assert.Equal(t, 12.5, got.Samples[0].Spot.Peak)
	assert.Equal(t, 4, got.Samples[0].Spot.PeakY)
	assert.True(t, math.IsNaN(got.Samples[2].Score))
	assert.Nil(t, got.Samples[2].Spot)
	assert.Equal(t, hardware.AxisX, got.Samples[3].Axis)
	assert.Equal(t, 50, got.Samples[8].Position)
	assert.Equal(t, 90.0, got.Samples[8].Score)
}

func TestNewCouplingRunStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		reached coupling.State
		err     error
		status  string
		zSet    bool
		xSet    bool
	}{
		{name: "complete", reached: coupling.StateDone, status: StatusComplete, zSet: true, xSet: true},
		{name: "cancelled", reached: coupling.StateZFocusSweep, err: context.Canceled, status: StatusCancelled},
		{name: "deadline", reached: coupling.StateXEdgeSweep, err: context.DeadlineExceeded, status: StatusCancelled, zSet: true},
		{name: "actuator", reached: coupling.StateXRelocate, err: coupling.ErrActuator, status: StatusError, zSet: true, xSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sampleResult(start)
			res.Reached = tt.reached
			run, err := NewCouplingRun(coupling.DefaultConfig(), res, tt.err)
			require.NoError(t, err)
			assert.Equal(t, tt.status, run.Status)
			assert.Equal(t, tt.zSet, run.ZFocus != nil)
			assert.Equal(t, tt.xSet, run.XEdge != nil)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), run.Error)
			}
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		res := sampleResult(base.Add(time.Duration(i) * time.Hour))
		var runErr error
		if i == 1 {
			res.Reached = coupling.StateZFocusSweep
			runErr = coupling.ErrDegenerateSignal
		}
		run, err := NewCouplingRun(coupling.DefaultConfig(), res, runErr)
		require.NoError(t, err)
		require.NoError(t, db.InsertRun(ctx, run))
		ids = append(ids, run.RunID)
	}

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Empty(t, runs[0].Samples)
	assert.Equal(t, StatusError, runs[1].Status)
	assert.Nil(t, runs[1].ZFocus)

	limited, err := db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestInsertRunAssignsID(t *testing.T) {
	db := setupTestDB(t)
	run := &CouplingRun{
		StartedAt:  time.Unix(1700000000, 0),
		FinishedAt: time.Unix(1700000030, 0),
		SerialPort: "/dev/null",
		Status:     StatusComplete,
		Reached:    "done",
		Config:     []byte(`{}`),
	}
	require.NoError(t, db.InsertRun(context.Background(), run))
	assert.Len(t, run.RunID, 36)
}
