package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arkhive/arkhive/internal/errors"
	"github.com/arkhive/arkhive/internal/pipeline"
)

// installFakeSSHStream drops an ssh stand-in on the PATH that streams a
// local file instead of dialing the remote host.
func installFakeSSHStream(t *testing.T, src string) {
	t.Helper()
	bin := t.TempDir()
	script := fmt.Sprintf("#!/bin/sh\ncat %q\n", src)
	require.NoError(t, os.WriteFile(filepath.Join(bin, "ssh"), []byte(script), 0o755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestVerifierRun(t *testing.T) {
	cfg := restoreTestConfig()

	archive := filepath.Join(t.TempDir(), "payload.tar")
	writeTarFile(t, archive, "etc/app.conf", "key = value\n")
	installFakeSSHStream(t, archive)

	mc := &MockClient{}
	mc.On("Stat", mock.Anything, "/backups/2025-02-01/2025-02-01-alice-arkhive.arbk").
		Return(int64(0), os.ErrNotExist)
	mc.On("Stat", mock.Anything, "/backups/2025-02-01/2025-02-01-alice-arkhive.arbk.xz").
		Return(int64(0), os.ErrNotExist)
	mc.On("Stat", mock.Anything, "/backups/2025-02-01/2025-02-01-alice-arkhive.tar").
		Return(int64(1024), nil)

	v := NewVerifier(cfg, mc, pipeline.NewRunner(testLogger()), testLogger())
	name, err := v.Run(context.Background(), "2025-02-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01-alice-arkhive.tar", name)
}

func TestVerifierRunCorruptArchive(t *testing.T) {
	cfg := restoreTestConfig()

	garbage := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not an archive at all"), 0o644))
	installFakeSSHStream(t, garbage)

	mc := &MockClient{}
	mc.On("Stat", mock.Anything, mock.Anything).Return(int64(1024), nil)

	v := NewVerifier(cfg, mc, pipeline.NewRunner(testLogger()), testLogger())
	_, err := v.Run(context.Background(), "2025-02-01")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDecryptExtract))
}

func TestVerifierRunMissingArchive(t *testing.T) {
	cfg := restoreTestConfig()

	mc := &MockClient{}
	mc.On("Stat", mock.Anything, mock.Anything).Return(int64(0), os.ErrNotExist)

	v := NewVerifier(cfg, mc, pipeline.NewRunner(testLogger()), testLogger())
	_, err := v.Run(context.Background(), "2025-02-01")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRestoreFormat))
}
