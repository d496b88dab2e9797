// Package cleanup provides deterministic temp-file lifecycle management.
// Every job opens a Scope; everything registered in the scope is removed
// when the scope closes unless it was transferred out first.
package cleanup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// TempDirPrefix is the prefix used for per-job temp directories.
const TempDirPrefix = "aura-job-"

// Scope owns the temp files of one job. Close is idempotent and removes
// everything still registered, newest first.
type Scope struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobID   string
	root    string
	paths   []string
	closed  bool
	removed int
}

// NewScope creates the job temp directory under baseDir and returns the
// owning scope. The directory itself is registered first so it is removed
// last.
func NewScope(logger *slog.Logger, baseDir, jobID string) (*Scope, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := filepath.Join(baseDir, TempDirPrefix+jobID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating job temp dir: %w", err)
	}
	s := &Scope{
		logger: logger,
		jobID:  jobID,
		root:   root,
		paths:  []string{root},
	}
	logger.Debug("opened cleanup scope",
		slog.String("job_id", jobID),
		slog.String("path", root),
	)
	return s, nil
}

// Root returns the job temp directory.
func (s *Scope) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Register adds a path to the scope. Registering after Close removes the
// path immediately.
func (s *Scope) Register(path string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.remove(path)
		return
	}
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Transfer removes a path from the scope without deleting it. Used to hand
// the final artifact over to its destination.
func (s *Scope) Transfer(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return true
		}
	}
	return false
}

// Close removes everything still registered, newest first. Idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for i := len(paths) - 1; i >= 0; i-- {
		s.remove(paths[i])
	}
	s.logger.Debug("closed cleanup scope",
		slog.String("job_id", s.jobID),
		slog.Int("removed", s.removed),
	)
}

func (s *Scope) remove(path string) {
	if err := os.RemoveAll(path); err != nil {
		s.logger.Warn("failed to remove temp path",
			slog.String("job_id", s.jobID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.mu.Lock()
	s.removed++
	s.mu.Unlock()
}
