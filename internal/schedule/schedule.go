// Package schedule keeps recurring backup jobs running from a single
// long-lived process. Tasks persist to disk so a daemon restart picks
// up the same schedule.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arkhive/arkhive/internal/logger"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Task is one recurring backup job.
type Task struct {
	ID             string     `json:"id"`
	Schedule       string     `json:"schedule"` // Cron spec or interval (e.g. "@daily" or "24h")
	DiskSpaceCheck bool       `json:"disk_space_check"`
	Retries        int        `json:"retries"`
	RetryDelay     string     `json:"retry_delay,omitempty"`
	Status         Status     `json:"status"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`

	cronID cron.EntryID
}

// RunFunc executes one backup. The scheduler owns retry and status
// bookkeeping around it; the run itself reports its own outcome.
type RunFunc func(ctx context.Context, diskSpaceCheck bool) error

type Scheduler struct {
	cron     *cron.Cron
	tasks    map[string]*Task
	mu       sync.RWMutex
	dataDir  string
	maxTasks int
	running  int
	run      RunFunc
	l        *logger.Logger
}

func NewScheduler(run RunFunc, l *logger.Logger) (*Scheduler, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".arkhive")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:    cron.New(),
		tasks:   make(map[string]*Task),
		dataDir: dir,
		run:     run,
		l:       l,
	}, nil
}

// SetMaxTasks caps how many tasks may run at once. Zero means no cap.
func (s *Scheduler) SetMaxTasks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxTasks = n
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

// saveLocked saves tasks without acquiring a lock (caller must hold mu)
func (s *Scheduler) saveLocked() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "schedules.json"), data, 0600)
}

// Load reads persisted tasks and wires each back into the cron. A task
// left in the running state by a crashed daemon goes back to pending.
func (s *Scheduler) Load() error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "schedules.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := make(map[string]*Task)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range loaded {
		if t.Status == StatusRunning {
			t.Status = StatusPending
		}
		if err := s.registerLocked(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) AddTask(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.Status = StatusPending
	if err := s.registerLocked(task); err != nil {
		return err
	}
	return s.saveLocked()
}

// registerLocked wires a task into the cron (caller must hold mu).
func (s *Scheduler) registerLocked(task *Task) error {
	// Validate schedule - standard cron or @every
	spec := task.Schedule
	if !strings.HasPrefix(spec, "@") && strings.Count(spec, " ") < 4 {
		// Possibly an interval like "24h", convert to @every
		if _, err := time.ParseDuration(spec); err == nil {
			spec = "@every " + spec
		}
	}

	id := task.ID
	cronID, err := s.cron.AddFunc(spec, func() {
		s.executeTask(id)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", task.Schedule, err)
	}

	task.cronID = cronID
	s.tasks[task.ID] = task
	return nil
}

func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}

	s.cron.Remove(task.cronID)
	delete(s.tasks, id)
	return s.saveLocked()
}

func (s *Scheduler) ListTasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Task
	for _, t := range s.tasks {
		entry := s.cron.Entry(t.cronID)
		if !entry.Next.IsZero() {
			next := entry.Next
			t.NextRun = &next
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Scheduler) executeTask(id string) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.maxTasks > 0 && s.running >= s.maxTasks {
		s.mu.Unlock()
		s.l.Warn("Skipping task: max concurrent tasks reached",
			"id", id, "max", s.maxTasks)
		return
	}
	if task.Status == StatusRunning {
		s.mu.Unlock()
		s.l.Warn("Skipping task: already running", "id", id)
		return
	}
	task.Status = StatusRunning
	now := time.Now()
	task.LastRun = &now
	s.running++
	retries := task.Retries
	diskCheck := task.DiskSpaceCheck
	delay, _ := time.ParseDuration(task.RetryDelay)
	s.mu.Unlock()
	s.Save()

	if delay == 0 {
		delay = 5 * time.Minute
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			s.l.Info("Retrying task", "id", id, "attempt", attempt, "delay", delay)
			time.Sleep(delay)
		}
		err = s.run(context.Background(), diskCheck)
		if err == nil {
			break
		}
	}

	s.mu.Lock()
	s.running--
	if err != nil {
		task.Status = StatusFailed
		s.l.Error("Scheduled task failed after retries", "id", id, "error", err)
	} else {
		task.Status = StatusSuccess
		s.l.Info("Scheduled task succeeded", "id", id)
	}
	s.mu.Unlock()
	s.Save()
}
