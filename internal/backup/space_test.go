package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arkhive/arkhive/internal/config"
	apperrors "github.com/arkhive/arkhive/internal/errors"
)

const dfOutput = `Filesystem     1K-blocks    Used Available Use% Mounted on
/dev/sda1      102400000 2048000  51200000   4% /backups
`

func TestParseDfAvail(t *testing.T) {
	n, err := parseDfAvail(dfOutput)
	require.NoError(t, err)
	assert.Equal(t, int64(51200000)*1024, n)

	_, err = parseDfAvail("garbage")
	assert.Error(t, err)

	_, err = parseDfAvail("Filesystem 1K-blocks Used Available\n/dev/sda1 x y notanumber")
	assert.Error(t, err)
}

func spaceTestConfig(encrypted bool) *config.Config {
	return &config.Config{
		Backup: config.BackupConfig{Directory: "/data"},
		SSH:    config.SSHConfig{BackupHome: "/backups"},
		Crypt:  config.CryptConfig{Enabled: encrypted},
	}
}

func TestSpaceCheckPasses(t *testing.T) {
	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "df", []string{"-k", "/backups"}).Return(dfOutput, nil)

	s := NewSpaceCheck(spaceTestConfig(false), mc, testLogger())
	s.localFree = func(string) (int64, error) { return 1 << 30, nil }

	// 1000 + 1000 bytes scaled by 0.6 needs 1200.
	err := s.Run(context.Background(), 1000, 1000)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestSpaceCheckLocalInsufficient(t *testing.T) {
	mc := &MockClient{}
	s := NewSpaceCheck(spaceTestConfig(false), mc, testLogger())
	s.localFree = func(string) (int64, error) { return 1000, nil }

	err := s.Run(context.Background(), 1000, 1000)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDiskSpace))
	assert.Contains(t, err.Error(), "local")
	mc.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestSpaceCheckRemoteInsufficient(t *testing.T) {
	mc := &MockClient{}
	mc.On("Exec", mock.Anything, "df", []string{"-k", "/backups"}).
		Return("Filesystem 1K-blocks Used Available Use% Mounted on\n/dev/sda1 100 99 1 99% /backups\n", nil)

	s := NewSpaceCheck(spaceTestConfig(false), mc, testLogger())
	s.localFree = func(string) (int64, error) { return 1 << 30, nil }

	err := s.Run(context.Background(), 1000, 1000)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDiskSpace))
	assert.Contains(t, err.Error(), "remote")
}

func TestSpaceCheckEncryptionFactor(t *testing.T) {
	mc := &MockClient{}
	s := NewSpaceCheck(spaceTestConfig(true), mc, testLogger())

	// 2000 bytes scaled by 0.8 needs 1600, just above the free 1500.
	s.localFree = func(string) (int64, error) { return 1500, nil }
	err := s.Run(context.Background(), 1000, 1000)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDiskSpace))
}
