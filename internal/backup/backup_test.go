package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arkhive/arkhive/internal/catalog"
	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/manifest"
	"github.com/arkhive/arkhive/internal/notify"
	"github.com/arkhive/arkhive/internal/pipeline"
	"github.com/arkhive/arkhive/internal/remote"
)

type fakeDumper struct {
	size int64
	err  error
}

func (d *fakeDumper) Engine() string { return "mysql" }

func (d *fakeDumper) Size(ctx context.Context) (int64, error) { return d.size, nil }

func (d *fakeDumper) Dump(ctx context.Context, destDir, date string, _ func(pipeline.Progress)) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	name := filepath.Join(destDir, date+"-mysql.sql")
	if err := os.WriteFile(name, []byte("-- dump\n"), 0o600); err != nil {
		return nil, err
	}
	return []string{name}, nil
}

type recordingNotifier struct {
	stats []notify.Stats
}

func (r *recordingNotifier) Notify(_ context.Context, s notify.Stats) error {
	r.stats = append(r.stats, s)
	return nil
}

// installTransferBins puts stand-ins for the transfer binaries on the
// PATH so a full run never leaves the machine.
func installTransferBins(t *testing.T, scripts map[string]string) {
	t.Helper()
	bin := t.TempDir()
	defaults := map[string]string{
		"tar": "#!/bin/sh\nprintf 'fake-archive-bytes'\n",
		"ssh": "#!/bin/sh\ncat > /dev/null\n",
		"scp": "#!/bin/sh\nexit 0\n",
	}
	for name, body := range scripts {
		defaults[name] = body
	}
	for name, body := range defaults {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte(body), 0o755))
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func orchestratorTestConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.conf"), []byte("key = value\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), bytes.Repeat([]byte{0xAB}, 256), 0o644))

	return &config.Config{
		Backup: config.BackupConfig{
			Directory:     dir,
			RetentionDays: 30,
			Compression:   config.CompressionNone,
		},
		SSH: config.SSHConfig{
			Host: "backup.example.com", Port: 22,
			User: "alice", BackupHome: "/backups",
		},
	}
}

func TestOrchestratorRun(t *testing.T) {
	installTransferBins(t, nil)
	cfg := orchestratorTestConfig(t)

	var sidecar []byte
	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "whoami", mock.Anything).Return("alice", nil)
	mc.On("ReadDir", mock.Anything, "/backups").Return([]remote.Entry{}, nil)
	mc.On("MkdirAll", mock.Anything, "/backups/2025-02-01").Return(nil)
	mc.On("Stat", mock.Anything, "/backups/2025-02-01/2025-02-01-alice-arkhive.tar").
		Return(int64(1024), nil)
	mc.On("Exec", mock.Anything, "find", mock.Anything).Return("", nil)
	mc.On("WriteFile", mock.Anything, "/backups/2025-02-01/2025-02-01-alice-arkhive.json", mock.Anything).
		Run(func(args mock.Arguments) { sidecar = args.Get(2).([]byte) }).
		Return(nil)

	hist, err := catalog.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hist.Close()

	sink := &recordingNotifier{}
	o := NewOrchestrator(cfg, mc, pipeline.NewRunner(testLogger()), []Dumper{&fakeDumper{size: 100}}, testLogger())
	o.now = func() time.Time { return time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC) }
	o.SetNotifier(sink)
	o.SetHistory(hist)

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "2025-02-01", res.Date)
	assert.Equal(t, "/backups/2025-02-01/2025-02-01-alice-arkhive.tar", res.RemotePath)
	assert.Equal(t, int64(1024), res.SizeBytes)
	assert.Equal(t, 3, res.Files)
	assert.Empty(t, res.Warnings)

	// The staged dump is cleaned up, the user's files stay.
	require.Len(t, res.DumpFiles, 1)
	assert.NoFileExists(t, res.DumpFiles[0])
	assert.FileExists(t, filepath.Join(cfg.Backup.Directory, "app.conf"))

	rec, err := manifest.Deserialize(sidecar)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", rec.Date)
	assert.Equal(t, "2025-02-01-alice-arkhive.tar", rec.ArchiveName)
	require.Len(t, rec.DumpFiles, 1)
	assert.NotEmpty(t, rec.DumpFiles[0].SHA256)

	require.Len(t, sink.stats, 1)
	assert.Equal(t, notify.StatusSuccess, sink.stats[0].Status)
	assert.Equal(t, "Backup", sink.stats[0].Operation)
	assert.Equal(t, int64(1024), sink.stats[0].Size)

	rows, err := hist.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "backup", rows[0].Operation)
	assert.Equal(t, "success", rows[0].Status)

	mc.AssertExpectations(t)
}

func TestOrchestratorRunPreflightFailure(t *testing.T) {
	installTransferBins(t, nil)
	cfg := orchestratorTestConfig(t)

	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "whoami", mock.Anything).Return("root", nil)

	sink := &recordingNotifier{}
	o := NewOrchestrator(cfg, mc, pipeline.NewRunner(testLogger()), nil, testLogger())
	o.SetNotifier(sink)

	res, err := o.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPreflight))

	require.Len(t, sink.stats, 1)
	assert.Equal(t, notify.StatusError, sink.stats[0].Status)
	require.Error(t, sink.stats[0].Error)

	// Nothing remote happens after a failed preflight.
	mc.AssertNotCalled(t, "MkdirAll", mock.Anything, mock.Anything)
}

func TestOrchestratorRunUploadFailure(t *testing.T) {
	installTransferBins(t, map[string]string{
		"ssh": "#!/bin/sh\ncat > /dev/null\necho 'connection reset' >&2\nexit 255\n",
	})
	cfg := orchestratorTestConfig(t)

	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "whoami", mock.Anything).Return("alice", nil)
	mc.On("ReadDir", mock.Anything, "/backups").Return([]remote.Entry{}, nil)
	mc.On("MkdirAll", mock.Anything, "/backups/2025-02-01").Return(nil)

	o := NewOrchestrator(cfg, mc, pipeline.NewRunner(testLogger()), nil, testLogger())
	o.now = func() time.Time { return time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC) }

	res, err := o.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindTransfer))
	assert.Contains(t, err.Error(), "connection reset")

	// The upload never verified, so no Stat happened.
	mc.AssertNotCalled(t, "Stat", mock.Anything, mock.Anything)
}

func TestOrchestratorRunSpaceCheck(t *testing.T) {
	installTransferBins(t, nil)
	cfg := orchestratorTestConfig(t)

	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "whoami", mock.Anything).Return("alice", nil)

	o := NewOrchestrator(cfg, mc, pipeline.NewRunner(testLogger()), []Dumper{&fakeDumper{size: 100}}, testLogger())
	o.space.localFree = func(string) (int64, error) { return 10, nil }

	res, err := o.Run(context.Background(), Options{DiskSpaceCheck: true})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDiskSpace))
	mc.AssertNotCalled(t, "MkdirAll", mock.Anything, mock.Anything)
}
