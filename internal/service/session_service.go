package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/repository"
)

// Remote is the full question service client used by the runner.
type Remote interface {
	Synchronizer
	Results(ctx context.Context, sessionID string) (model.TestResults, error)
}

type runningSession struct {
	*Session
	stop context.CancelFunc
}

// SessionService hosts the attempts running in this process and their
// countdown goroutines.
type SessionService struct {
	remote      Remote
	snapshots   repository.SnapshotRepository
	hub         *EventHub
	log         zerolog.Logger
	tick        time.Duration
	defaultSecs int

	mu       sync.RWMutex
	sessions map[string]*runningSession
}

// NewSessionService creates a new SessionService.
func NewSessionService(remote Remote, snapshots repository.SnapshotRepository, hub *EventHub, cfg *config.Config, log zerolog.Logger) *SessionService {
	return &SessionService{
		remote:      remote,
		snapshots:   snapshots,
		hub:         hub,
		log:         log.With().Str("component", "session_service").Logger(),
		tick:        cfg.TickInterval,
		defaultSecs: cfg.DefaultQuestionSeconds,
		sessions:    make(map[string]*runningSession),
	}
}

// Start initializes an attempt and starts its countdown. Bootstrapping a
// session id that is already running returns the running session, so a
// reloaded UI resumes where it left off. A finalized session is never
// restarted; it stays hosted for its results.
func (s *SessionService) Start(ctx context.Context, b model.Bootstrap) (sess *Session, resumed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs, ok := s.sessions[b.SessionID]; ok {
		switch rs.Status() {
		case model.SessionStatusActive:
			return rs.Session, true, nil
		case model.SessionStatusFinalized:
			return nil, false, model.ErrSessionClosed
		}
		rs.stop()
	}

	sess, err = NewSession(ctx, b, s.remote, s.snapshots,
		WithLogger(s.log),
		WithNotifier(s.hub.Publish),
		WithDefaultQuestionSeconds(s.defaultSecs),
	)
	if err != nil {
		return nil, false, err
	}

	runCtx, stop := context.WithCancel(context.Background())
	s.sessions[sess.ID()] = &runningSession{Session: sess, stop: stop}
	go sess.Run(runCtx, s.tick)

	return sess, false, nil
}

// Get returns a hosted session.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return rs.Session, nil
}

// Cancel abandons a session and stops hosting it, even when the remote
// cancel fails. A finalized session stays hosted for its results.
func (s *SessionService) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	rs, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return model.ErrSessionNotFound
	}

	err := rs.Cancel(ctx)
	if errors.Is(err, model.ErrSessionClosed) || errors.Is(err, model.ErrAlreadyInFlight) {
		return err
	}

	rs.stop()
	s.mu.Lock()
	if cur, ok := s.sessions[id]; ok && cur == rs {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	return err
}

// Results fetches the analytics of a finalized session.
func (s *SessionService) Results(ctx context.Context, id string) (model.TestResults, error) {
	sess, err := s.Get(id)
	if err != nil {
		return model.TestResults{}, err
	}
	if sess.Status() != model.SessionStatusFinalized {
		return model.TestResults{}, model.ErrNotFinalized
	}
	return s.remote.Results(ctx, id)
}

// Subscribe attaches a stream listener to a hosted session.
func (s *SessionService) Subscribe(id string) (<-chan Event, func(), error) {
	if _, err := s.Get(id); err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.hub.Subscribe(id)
	return ch, unsubscribe, nil
}

// Len returns the number of hosted sessions.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown stops every countdown. Session state is left as is; annotations
// remain in the snapshot repository for the next start.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rs := range s.sessions {
		rs.stop()
		delete(s.sessions, id)
	}
	s.log.Info().Msg("Session countdowns stopped")
}
