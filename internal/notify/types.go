package notify

import (
	"context"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Stats struct {
	Status     Status
	Operation  string // "Backup" or "Restore"
	Host       string
	Date       string
	RemotePath string
	Size       int64
	Duration   time.Duration
	Warnings   []string
	Error      error
}

type Notifier interface {
	Notify(ctx context.Context, stats Stats) error
}

type MultiNotifier struct {
	Notifiers []Notifier
}

func (m *MultiNotifier) Notify(ctx context.Context, stats Stats) error {
	// Best effort: one failing sink must not block the others.
	for _, n := range m.Notifiers {
		_ = n.Notify(ctx, stats)
	}
	return nil
}
