package supervise

import (
	"sync"
	"time"
)

// Desired is the last state commanded to a service.
type Desired string

const (
	DesiredUnknown Desired = ""
	DesiredUp      Desired = "up"
	DesiredDown    Desired = "down"
)

// Record describes one command issued to a backend.
type Record struct {
	Service string
	Command Command
	Err     error
	At      time.Time
}

// Observer is notified after every issued command.
type Observer func(Record)

var timeNow = time.Now

// Service is one supervised service with an idempotent command interface.
//
// Commands are issued from the event loop only. Desired may be read from
// any goroutine.
type Service struct {
	name     string
	backend  Backend
	observer Observer
	now      func() time.Time

	mu      sync.Mutex
	desired Desired
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Desired returns the last successfully commanded state.
func (s *Service) Desired() Desired {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

// Start commands the service up unless it already was.
func (s *Service) Start() error {
	if s.Desired() == DesiredUp {
		return nil
	}
	return s.issue(CommandUp, DesiredUp)
}

// Stop commands the service down unless it already was.
func (s *Service) Stop() error {
	if s.Desired() == DesiredDown {
		return nil
	}
	return s.issue(CommandDown, DesiredDown)
}

// Restart commands a restart. It is always issued.
func (s *Service) Restart() error {
	return s.issue(CommandRestart, DesiredUp)
}

// Term signals a running service to exit so its supervisor starts it
// again. A service commanded down stays down and the desired state is
// left alone.
func (s *Service) Term() error {
	return s.issue(CommandTerm, DesiredUnknown)
}

// issue sends cmd and records want as the desired state on success.
// DesiredUnknown leaves the desired state unchanged.
func (s *Service) issue(cmd Command, want Desired) error {
	err := s.backend.Command(s.name, cmd)
	if err == nil && want != DesiredUnknown {
		s.mu.Lock()
		s.desired = want
		s.mu.Unlock()
	}
	if s.observer != nil {
		s.observer(Record{Service: s.name, Command: cmd, Err: err, At: s.now()})
	}
	return err
}
