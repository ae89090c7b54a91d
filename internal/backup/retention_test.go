package backup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arkhive/arkhive/internal/remote"
)

func TestRetentionCleanupRemovesExpired(t *testing.T) {
	mc := &MockClient{}
	mc.On("ReadDir", mock.Anything, "/backups").Return([]remote.Entry{
		{Name: "2024-01-01", IsDir: true},
		{Name: "2024-06-01", IsDir: true},
		{Name: "2025-01-01", IsDir: true},
		{Name: "lost+found", IsDir: true},
		{Name: "notes.txt", Size: 12},
	}, nil)
	mc.On("RemoveAll", mock.Anything, "/backups/2024-01-01").Return(nil)
	mc.On("RemoveAll", mock.Anything, "/backups/2024-06-01").Return(nil)

	r := NewRetention(mc, testLogger())
	r.now = func() time.Time {
		return time.Date(2025, 2, 1, 15, 4, 5, 0, time.UTC)
	}

	removed, err := r.Cleanup(context.Background(), "/backups", 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-06-01"}, removed)

	// The boundary-day directory has to survive a 30 day window.
	mc.AssertNotCalled(t, "RemoveAll", mock.Anything, "/backups/2025-01-01")
	mc.AssertExpectations(t)
}

func TestRetentionCleanupZeroDaysDisabled(t *testing.T) {
	mc := &MockClient{}
	r := NewRetention(mc, testLogger())

	removed, err := r.Cleanup(context.Background(), "/backups", 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
	mc.AssertNotCalled(t, "ReadDir", mock.Anything, mock.Anything)
}

func TestRetentionCleanupMissingHome(t *testing.T) {
	mc := &MockClient{}
	mc.On("ReadDir", mock.Anything, "/backups").Return(nil, os.ErrNotExist)

	r := NewRetention(mc, testLogger())
	removed, err := r.Cleanup(context.Background(), "/backups", 30)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRetentionCleanupIgnoresForeignNames(t *testing.T) {
	mc := &MockClient{}
	mc.On("ReadDir", mock.Anything, "/backups").Return([]remote.Entry{
		{Name: "not-a-date", IsDir: true},
		{Name: "2020-13-99", IsDir: true},
		{Name: "2020-01-01", IsDir: false},
	}, nil)

	r := NewRetention(mc, testLogger())
	r.now = func() time.Time {
		return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	}

	removed, err := r.Cleanup(context.Background(), "/backups", 1)
	require.NoError(t, err)
	assert.Empty(t, removed)
	mc.AssertNotCalled(t, "RemoveAll", mock.Anything, mock.Anything)
}
