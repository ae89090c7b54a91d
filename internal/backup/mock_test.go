package backup

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/arkhive/arkhive/internal/logger"
	"github.com/arkhive/arkhive/internal/remote"
)

// MockClient is a testify mock for the remote.Client interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Exec(ctx context.Context, name string, args ...string) (string, error) {
	call := m.Called(ctx, name, args)
	return call.String(0), call.Error(1)
}

func (m *MockClient) Stat(ctx context.Context, path string) (int64, error) {
	call := m.Called(ctx, path)
	return call.Get(0).(int64), call.Error(1)
}

func (m *MockClient) ReadDir(ctx context.Context, path string) ([]remote.Entry, error) {
	call := m.Called(ctx, path)
	var entries []remote.Entry
	if v := call.Get(0); v != nil {
		entries = v.([]remote.Entry)
	}
	return entries, call.Error(1)
}

func (m *MockClient) MkdirAll(ctx context.Context, path string) error {
	call := m.Called(ctx, path)
	return call.Error(0)
}

func (m *MockClient) RemoveAll(ctx context.Context, path string) error {
	call := m.Called(ctx, path)
	return call.Error(0)
}

func (m *MockClient) ReadFile(ctx context.Context, path string) ([]byte, error) {
	call := m.Called(ctx, path)
	var data []byte
	if v := call.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, call.Error(1)
}

func (m *MockClient) WriteFile(ctx context.Context, path string, data []byte) error {
	call := m.Called(ctx, path, data)
	return call.Error(0)
}

func (m *MockClient) Close() error {
	call := m.Called()
	return call.Error(0)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard})
}
