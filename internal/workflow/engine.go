// Package workflow implements short-lived multi-step interaction sessions:
// selection wizards, confirm gates and claim flows driven by component
// events. A session is exclusive to a (scope, kind) key, processes one
// transition at a time and is bounded by a deadline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoSession   = errors.New("no active session")
	ErrSessionBusy = errors.New("session transition already in flight")
	ErrWrongUser   = errors.New("event does not belong to this session")
)

// Key identifies the single session a workflow kind may hold for a scope.
// Scope is usually the invoking user ID, sometimes a channel ID.
type Key struct {
	Scope string
	Kind  string
}

// Event is one qualifying component interaction. Data carries the
// platform payload opaquely; the engine never inspects it.
type Event struct {
	Action    string
	Args      []string
	Values    []string
	UserID    string
	ChannelID string
	Data      any
}

// Transition advances a session. A nil Next in the result is terminal.
type Transition func(ctx context.Context, session *Session, event Event) (Result, error)

type Result struct {
	Next Transition
}

// Hooks observe terminal outcomes the transition itself cannot report:
// expiry, supersession and transition failure.
type Hooks struct {
	OnExpire func(session *Session)
	OnCancel func(session *Session)
	OnError  func(session *Session, err error)
}

type Session struct {
	Key    Key
	UserID string

	values  map[string]string
	next    Transition
	hooks   Hooks
	timeout time.Duration
	timer   *time.Timer
	gen     uint64
	busy    bool
	done    bool
}

// Set stores an accumulated selection on the session.
func (s *Session) Set(key, value string) {
	s.values[key] = value
}

func (s *Session) Get(key string) string {
	return s.values[key]
}

// Registry owns every live session. Entries are created on Start and
// removed on every terminal transition, so the map cannot grow without
// bound and a stale session cannot react to events meant for a new one.
type Registry struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[Key]*Session),
		logger:   logger,
	}
}

// Start registers a session for the key. An existing session for the same
// key is cancelled first, detaching its listener so it cannot act on
// behalf of the old invocation.
func (r *Registry) Start(key Key, userID string, timeout time.Duration, first Transition, hooks Hooks) *Session {
	session := &Session{
		Key:     key,
		UserID:  userID,
		values:  make(map[string]string),
		next:    first,
		hooks:   hooks,
		timeout: timeout,
	}

	r.mu.Lock()
	prior := r.sessions[key]
	if prior != nil {
		r.detachLocked(prior)
	}
	r.sessions[key] = session
	r.armLocked(key, session)
	r.mu.Unlock()

	if prior != nil {
		r.logger.Info("workflow superseded",
			zap.String("scope", key.Scope), zap.String("kind", key.Kind))
		if prior.hooks.OnCancel != nil {
			prior.hooks.OnCancel(prior)
		}
	}
	return session
}

// Cancel terminates the session for the key, if any, without invoking its
// cancel hook. Used when the flow owner already answered the user.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	session := r.sessions[key]
	if session != nil {
		r.detachLocked(session)
	}
	r.mu.Unlock()
	return session != nil
}

// Dispatch routes one qualifying event to the session for the key. Events
// from another user are rejected, as is a second event while a transition
// for the same session is still executing.
func (r *Registry) Dispatch(ctx context.Context, key Key, event Event) error {
	r.mu.Lock()
	session := r.sessions[key]
	if session == nil || session.done {
		r.mu.Unlock()
		return ErrNoSession
	}
	if session.UserID != "" && event.UserID != session.UserID {
		r.mu.Unlock()
		return ErrWrongUser
	}
	if session.busy {
		r.mu.Unlock()
		return ErrSessionBusy
	}
	session.busy = true
	session.gen++
	if session.timer != nil {
		session.timer.Stop()
	}
	transition := session.next
	r.mu.Unlock()

	result, err := runTransition(ctx, transition, session, event)

	r.mu.Lock()
	session.busy = false
	if session.done {
		// Superseded or cancelled while the transition ran; its terminal
		// hooks already fired, so neither re-arm nor report.
		r.mu.Unlock()
		return err
	}
	if err != nil {
		r.detachLocked(session)
		r.mu.Unlock()
		r.logger.Warn("workflow transition failed",
			zap.String("scope", key.Scope), zap.String("kind", key.Kind), zap.Error(err))
		if session.hooks.OnError != nil {
			session.hooks.OnError(session, err)
		}
		return err
	}
	if result.Next == nil {
		r.detachLocked(session)
		r.mu.Unlock()
		return nil
	}
	session.next = result.Next
	r.armLocked(key, session)
	r.mu.Unlock()
	return nil
}

// Active reports whether a session exists for the key.
func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key] != nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func runTransition(ctx context.Context, transition Transition, session *Session, event Event) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("transition panicked: %v", recovered)
		}
	}()
	return transition(ctx, session, event)
}

// armLocked starts the deadline timer for the session's next step. The
// generation counter resolves the race against a timer that already fired
// but has not yet taken the lock.
func (r *Registry) armLocked(key Key, session *Session) {
	session.gen++
	gen := session.gen
	session.timer = time.AfterFunc(session.timeout, func() {
		r.expire(key, session, gen)
	})
}

func (r *Registry) expire(key Key, session *Session, gen uint64) {
	r.mu.Lock()
	if session.done || session.gen != gen || r.sessions[key] != session {
		r.mu.Unlock()
		return
	}
	r.detachLocked(session)
	r.mu.Unlock()

	r.logger.Info("workflow timed out",
		zap.String("scope", key.Scope), zap.String("kind", key.Kind))
	if session.hooks.OnExpire != nil {
		session.hooks.OnExpire(session)
	}
}

func (r *Registry) detachLocked(session *Session) {
	session.done = true
	session.gen++
	if session.timer != nil {
		session.timer.Stop()
	}
	if r.sessions[session.Key] == session {
		delete(r.sessions, session.Key)
	}
}
