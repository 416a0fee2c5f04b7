package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")

	m1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, m1.Close())

	// Reopening must not re-run the initial migration.
	m2, err := Open(path)
	require.NoError(t, err)
	defer m2.Close()

	var n int
	require.NoError(t, m2.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='exports'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRunLog_RecordsExports(t *testing.T) {
	m := openTestManifest(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	run, err := m.StartRun(Run{
		BagPath:   "/data/drive.bag",
		Topic:     "/velodyne_points",
		OutputDir: "/tmp/out",
		Encoding:  "binary",
		Started:   started,
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID())

	stamp := time.Date(2024, 3, 1, 12, 0, 1, 500, time.UTC)
	want := []Export{
		{Seq: 3, Topic: "/velodyne_points", FrameID: "velodyne", Stamp: stamp, Points: 2, Fields: "x y z", Path: "/tmp/out/3.pcd", Status: StatusWritten},
		{Seq: 3, Topic: "/velodyne_points", FrameID: "velodyne", Points: 4, Fields: "x y z", Path: "/tmp/out/3.pcd", Status: StatusFailed, Error: "disk full"},
	}
	for _, e := range want {
		require.NoError(t, run.RecordExport(e))
	}

	got, err := m.Exports(run.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exports mismatch (-want +got):\n%s", diff)
	}

	_, finished, err := m.RunTotals(run.ID())
	require.NoError(t, err)
	assert.False(t, finished)

	require.NoError(t, run.Finish(started.Add(time.Minute), Totals{Records: 5, Exported: 1, Failed: 1}))
	totals, finished, err := m.RunTotals(run.ID())
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, Totals{Records: 5, Exported: 1, Failed: 1}, totals)
}

func TestRunLog_SeparateRuns(t *testing.T) {
	m := openTestManifest(t)

	a, err := m.StartRun(Run{BagPath: "a.bag", Started: time.Now()})
	require.NoError(t, err)
	b, err := m.StartRun(Run{BagPath: "b.bag", Started: time.Now()})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, a.RecordExport(Export{Seq: 1, Path: "1.pcd", Status: StatusWritten}))

	got, err := m.Exports(b.ID())
	require.NoError(t, err)
	assert.Empty(t, got)
}
