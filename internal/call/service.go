package call

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"favoro/internal/contact"
	"favoro/internal/media"
	apperrors "favoro/pkg/errors"
	"favoro/pkg/logger"
)

// Service owns the current call on behalf of the call screen. Starting a
// call always builds a fresh Session; a session that is still live is ended
// first.
type Service struct {
	mu        sync.Mutex
	directory *contact.Directory
	capture   media.Capture
	current   *Session
	watchers  []func(*Session)
	log       *logger.Logger
}

func NewService(directory *contact.Directory, capture media.Capture, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		directory: directory,
		capture:   capture,
		log:       log,
	}
}

// OnSessionStart registers fn to be called with every new session before
// Start returns.
func (s *Service) OnSessionStart(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Service) Start(contactID uuid.UUID) (*Session, error) {
	target, ok := s.directory.Get(contactID)
	if !ok {
		return nil, apperrors.NewWithDetails(apperrors.CodeNotFound, "contact not found", contactID.String())
	}

	session := StartCall(target, s.capture, s.log)

	s.mu.Lock()
	previous := s.current
	s.current = session
	watchers := make([]func(*Session), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	// the displaced session is ended exactly once, by whoever replaced it
	if previous != nil {
		previous.EndCall()
	}
	for _, fn := range watchers {
		fn(session)
	}
	return session, nil
}

// Current returns the most recent session, which may already be ended.
func (s *Service) Current() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

func (s *Service) End() error {
	session, ok := s.Current()
	if !ok {
		return apperrors.New(apperrors.CodeNoActiveCall, "no call in progress")
	}
	session.EndCall()
	s.log.Debug("current call ended", zap.Stringer("call_id", session.ID()))
	return nil
}
