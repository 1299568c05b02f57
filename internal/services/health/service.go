package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Service runs the registered dependency checks.
type Service struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: make(map[string]Check)}
}

// Register adds a named check. A nil check is ignored.
func (s *Service) Register(name string, check Check) {
	if check == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status runs all checks; a failing check marks the report not ok.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	report := Report{OK: true}
	if len(names) == 0 {
		return report
	}
	report.Checks = make(map[string]string, len(names))
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			report.OK = false
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}
