// Package supervisor tracks externally spawned child processes and
// performs deterministic termination at job end and during shutdown.
package supervisor

import (
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Metadata labels a tracked child for diagnostics.
type Metadata struct {
	Role  string `json:"role"`
	JobID string `json:"job_id,omitempty"`
}

// ChildEntry is the lifetime record of one tracked child process.
type ChildEntry struct {
	Name       string     `json:"name"`
	PID        int        `json:"pid"`
	Metadata   Metadata   `json:"metadata"`
	StartedUTC time.Time  `json:"started_utc"`
	EndedUTC   *time.Time `json:"ended_utc,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
}

// Running reports whether the child has not yet exited.
func (e *ChildEntry) Running() bool { return e.EndedUTC == nil }

type child struct {
	entry ChildEntry
	cmd   *exec.Cmd
	done  chan struct{}
	hooks []func(ChildEntry)
}

// Supervisor is the process registry. All spawned encoder and probe
// subprocesses register here so shutdown can terminate them in order.
type Supervisor struct {
	logger *slog.Logger

	mu       sync.Mutex
	children map[string]*child
	seq      uint64
}

// New creates an empty supervisor.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:   logger,
		children: make(map[string]*child),
	}
}

// Register tracks a started command under name. The returned wait function
// blocks until the process exits and returns its exit code; callers must
// use it instead of calling cmd.Wait themselves so the exit hook runs
// exactly once.
func (s *Supervisor) Register(name string, cmd *exec.Cmd, meta Metadata, hooks ...func(ChildEntry)) func() (int, error) {
	c := &child{
		entry: ChildEntry{
			Name:       name,
			PID:        cmd.Process.Pid,
			Metadata:   meta,
			StartedUTC: time.Now().UTC(),
		},
		cmd:   cmd,
		done:  make(chan struct{}),
		hooks: hooks,
	}

	s.mu.Lock()
	s.children[name] = c
	s.mu.Unlock()

	s.logger.Debug("registered child process",
		slog.String("name", name),
		slog.Int("pid", c.entry.PID),
		slog.String("role", meta.Role),
		slog.String("job_id", meta.JobID),
	)

	var once sync.Once
	var waitErr error
	wait := func() (int, error) {
		once.Do(func() {
			waitErr = cmd.Wait()
			s.recordExit(c, exitCode(cmd, waitErr))
		})
		<-c.done
		s.mu.Lock()
		code := 0
		if c.entry.ExitCode != nil {
			code = *c.entry.ExitCode
		}
		s.mu.Unlock()
		return code, waitErr
	}
	return wait
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func (s *Supervisor) recordExit(c *child, code int) {
	now := time.Now().UTC()

	s.mu.Lock()
	c.entry.EndedUTC = &now
	c.entry.ExitCode = &code
	snapshot := c.entry
	hooks := c.hooks
	s.mu.Unlock()

	close(c.done)

	s.logger.Debug("child process exited",
		slog.String("name", snapshot.Name),
		slog.Int("pid", snapshot.PID),
		slog.Int("exit_code", code),
	)
	for _, hook := range hooks {
		hook(snapshot)
	}
}

// Remove forgets a child that has already exited.
func (s *Supervisor) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.children[name]; ok && !c.entry.Running() {
		delete(s.children, name)
	}
}

// Entries returns a snapshot of all tracked children.
func (s *Supervisor) Entries() []ChildEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChildEntry, 0, len(s.children))
	for _, c := range s.children {
		out = append(out, c.entry)
	}
	return out
}

// Terminate signals one child gracefully and escalates to a kill after the
// grace period. Returns true if the child exited.
func (s *Supervisor) Terminate(name string, timeout time.Duration) bool {
	s.mu.Lock()
	c, ok := s.children[name]
	s.mu.Unlock()
	if !ok || !c.entry.Running() {
		return true
	}

	_ = c.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
	}

	s.logger.Warn("child did not exit on SIGTERM, killing",
		slog.String("name", name),
		slog.Int("pid", c.entry.PID),
	)
	_ = c.cmd.Process.Kill()
	select {
	case <-c.done:
		return true
	case <-time.After(500 * time.Millisecond):
		s.logger.Error("child could not be killed",
			slog.String("name", name),
			slog.Int("pid", c.entry.PID),
		)
		return false
	}
}

// TerminateAll terminates every running child concurrently, sharing the
// timeout. Returns per-child success.
func (s *Supervisor) TerminateAll(timeout time.Duration) map[string]bool {
	s.mu.Lock()
	names := make([]string, 0, len(s.children))
	for name, c := range s.children {
		if c.entry.Running() {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	results := make(map[string]bool, len(names))
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			ok := s.Terminate(name, timeout)
			resMu.Lock()
			results[name] = ok
			resMu.Unlock()
		}(name)
	}
	wg.Wait()

	if len(names) > 0 {
		s.logger.Info("terminated child processes",
			slog.Int("count", len(names)),
		)
	}
	return results
}
