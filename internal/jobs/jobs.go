package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusDone      JobStatus = "done"
	StatusError     JobStatus = "error"
	StatusCancelled JobStatus = "cancelled"
)

type JobResult struct {
	Mode        string `json:"mode"`
	Matches     int    `json:"matches"`
	Diagnostics int    `json:"diagnostics"`
	Sheet       string `json:"sheet"`
	Output      string `json:"-"`        // Full path
	Filename    string `json:"filename"` // Just filename for download
	Report      string `json:"report"`
}

type Job struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	status   JobStatus
	logs     []string
	progress int // 0-100
	result   *JobResult
	err      string
	cancel   context.CancelFunc
}

// Snapshot is a consistent copy of a job's state.
type Snapshot struct {
	ID       string     `json:"id"`
	Status   JobStatus  `json:"status"`
	Logs     []string   `json:"logs"`
	Progress int        `json:"progress"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func newJob(now time.Time) *Job {
	return &Job{
		ID:        uuid.New().String(),
		CreatedAt: now,
		status:    StatusRunning,
		logs:      []string{},
	}
}

func (j *Job) Log(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLog(msg)
}

func (j *Job) appendLog(msg string) {
	ts := time.Now().Format("15:04:05")
	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", ts, msg))
}

func (j *Job) SetProgress(current, total int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if total > 0 {
		j.progress = int(float64(current) / float64(total) * 100)
	}
	if msg != "" {
		j.appendLog(msg)
	}
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	s := Snapshot{
		ID:       j.ID,
		Status:   j.status,
		Logs:     logs,
		Progress: j.progress,
		Error:    j.err,
	}
	if j.result != nil {
		r := *j.result
		s.Result = &r
	}
	return s
}

func (j *Job) finish(res *JobResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	if err != nil {
		j.status = StatusError
		j.err = err.Error()
		j.logs = append(j.logs, "[ERROR] "+j.err)
		return
	}
	j.status = StatusDone
	j.result = res
	j.progress = 100
	j.appendLog("Job completed.")
}

// RunFunc does the work of a job; it should return promptly once ctx is done.
type RunFunc func(ctx context.Context, job *Job) (*JobResult, error)

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{jobs: make(map[string]*Job), ttl: ttl, now: time.Now}
}

// Start registers a job and runs fn in its own goroutine.
func (s *Store) Start(parent context.Context, fn RunFunc) *Job {
	s.Prune()

	job := newJob(s.now())
	ctx, cancel := context.WithCancel(parent)
	job.cancel = cancel

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				job.finish(nil, fmt.Errorf("panic: %v", r))
			}
		}()
		res, err := fn(ctx, job)
		job.finish(res, err)
	}()
	return job
}

func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// Cancel marks a running job cancelled and signals its context.
func (s *Store) Cancel(id string) bool {
	job := s.Get(id)
	if job == nil {
		return false
	}
	job.mu.Lock()
	if job.status == StatusRunning {
		job.status = StatusCancelled
		job.appendLog("Cancelled by user.")
	}
	cancel := job.cancel
	job.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// Prune forgets finished jobs older than the store's TTL.
func (s *Store) Prune() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		j.mu.RLock()
		running := j.status == StatusRunning
		j.mu.RUnlock()
		if !running && j.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
