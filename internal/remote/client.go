// Package remote is the SSH control plane: remote command execution
// and SFTP metadata operations against the backup host. The archive
// bytes themselves never travel through this package, they go through
// the external ssh/scp stages of the upload and download pipelines.
package remote

import "context"

// Entry is one remote directory listing entry.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Client is everything the orchestrators need from the backup host.
type Client interface {
	// Exec runs a command remotely and returns its trimmed stdout.
	// A non-zero exit status is returned as an error carrying the
	// remote stderr.
	Exec(ctx context.Context, name string, args ...string) (string, error)

	// Stat returns the size of a remote file.
	Stat(ctx context.Context, path string) (int64, error)

	ReadDir(ctx context.Context, path string) ([]Entry, error)
	MkdirAll(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error

	Close() error
}
