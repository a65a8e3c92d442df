package monitor

import (
	"sync"

	"github.com/silkyclouds/Autokong/internal/models"
)

// viewState holds the one active RunView and the generation it belongs to.
// Every replacement bumps the generation; writers pass the generation and
// job id they were started for, and writes that no longer match are dropped.
type viewState struct {
	mu   sync.RWMutex
	gen  uint64
	view *models.RunView
}

// reset discards the current view, installs an empty one for jobID and
// returns the new generation.
func (s *viewState) reset(jobID string, auditEnabled bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.view = models.NewRunView(jobID, auditEnabled)
	return s.gen
}

// invalidate bumps the generation so in-flight writers are discarded. The
// last view stays readable, marked not running.
func (s *viewState) invalidate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.view != nil {
		s.view.Running = false
	}
	return s.gen
}

// apply runs fn against the view if gen and jobID still identify it, and
// returns a snapshot of the result.
func (s *viewState) apply(gen uint64, jobID string, fn func(v *models.RunView)) (*models.RunView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen, jobID) {
		return nil, false
	}
	fn(s.view)
	return s.view.Clone(), true
}

func (s *viewState) current(gen uint64, jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked(gen, jobID)
}

func (s *viewState) currentLocked(gen uint64, jobID string) bool {
	return s.view != nil && s.gen == gen && s.view.JobID == jobID
}

func (s *viewState) snapshot() *models.RunView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Clone()
}

func (s *viewState) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}
