package fileset

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Manifest is the temp file of newline separated paths that tar reads
// through -T. It is created once per run and removed exactly once, no
// matter how many cleanup paths reach it.
type Manifest struct {
	f     *os.File
	w     *bufio.Writer
	count int

	closeOnce  sync.Once
	closeErr   error
	removeOnce sync.Once
	removeErr  error
}

func NewManifest() (*Manifest, error) {
	f, err := os.CreateTemp("", "arkhive-files-*.list")
	if err != nil {
		return nil, fmt.Errorf("failed to create file manifest: %w", err)
	}
	return &Manifest{f: f, w: bufio.NewWriter(f)}, nil
}

func (m *Manifest) Add(path string) error {
	if _, err := m.w.WriteString(path + "\n"); err != nil {
		return fmt.Errorf("failed to append to file manifest: %w", err)
	}
	m.count++
	return nil
}

func (m *Manifest) Path() string { return m.f.Name() }

func (m *Manifest) Count() int { return m.count }

// Close flushes and closes the underlying file. The manifest must be
// closed before tar reads it.
func (m *Manifest) Close() error {
	m.closeOnce.Do(func() {
		if err := m.w.Flush(); err != nil {
			m.closeErr = err
			m.f.Close()
			return
		}
		m.closeErr = m.f.Close()
	})
	return m.closeErr
}

// Remove deletes the manifest file. Safe to call more than once and
// after Close; only the first call touches the filesystem.
func (m *Manifest) Remove() error {
	m.removeOnce.Do(func() {
		m.Close()
		m.removeErr = os.Remove(m.f.Name())
	})
	return m.removeErr
}
