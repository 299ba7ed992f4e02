package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func terminal(ctx context.Context, s *Session, ev Event) (Result, error) {
	return Result{}, nil
}

func TestDispatchAdvancesAndTerminates(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}

	var got []string
	second := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		got = append(got, s.Get("fraction")+":"+ev.Action)
		return Result{}, nil
	}
	first := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		s.Set("fraction", ev.Values[0])
		return Result{Next: second}, nil
	}

	registry.Start(key, "u1", time.Minute, first, Hooks{})
	if err := registry.Dispatch(context.Background(), key, Event{Action: "select", Values: []string{"Red"}, UserID: "u1"}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if !registry.Active(key) {
		t.Fatal("session should survive a non-terminal transition")
	}
	if err := registry.Dispatch(context.Background(), key, Event{Action: "confirm", UserID: "u1"}); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if registry.Active(key) {
		t.Fatal("terminal transition should remove the session")
	}
	if len(got) != 1 || got[0] != "Red:confirm" {
		t.Fatalf("unexpected transitions: %v", got)
	}
}

func TestWrongUserRejected(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}
	registry.Start(key, "u1", time.Minute, terminal, Hooks{})

	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u2"}); !errors.Is(err, ErrWrongUser) {
		t.Fatalf("expected ErrWrongUser, got %v", err)
	}
	if !registry.Active(key) {
		t.Fatal("rejected event must not consume the session")
	}
}

func TestSupersessionCancelsPrior(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}

	cancelled := false
	stale := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		t.Fatal("superseded session must never run")
		return Result{}, nil
	}
	registry.Start(key, "u1", time.Minute, stale, Hooks{
		OnCancel: func(s *Session) { cancelled = true },
	})
	registry.Start(key, "u1", time.Minute, terminal, Hooks{})

	if !cancelled {
		t.Fatal("starting a second session must cancel the first")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", registry.Len())
	}
	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); err != nil {
		t.Fatalf("dispatch to new session: %v", err)
	}
}

func TestTimeoutFiresOnceAndIgnoresLateEvents(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "c1", Kind: "confirm"}

	expired := make(chan struct{})
	registry.Start(key, "u1", 10*time.Millisecond, terminal, Hooks{
		OnExpire: func(s *Session) { close(expired) },
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("session did not expire")
	}
	if registry.Active(key) {
		t.Fatal("expired session must be removed")
	}
	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("late event should see ErrNoSession, got %v", err)
	}
}

func TestEventStopsTimer(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "confirm"}

	expired := make(chan struct{}, 1)
	registry.Start(key, "u1", 50*time.Millisecond, terminal, Hooks{
		OnExpire: func(s *Session) { expired <- struct{}{} },
	})
	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case <-expired:
		t.Fatal("timer must not fire after the event won the race")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestConcurrentDispatchSingleFlight(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "claim"}

	entered := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		close(entered)
		<-release
		return Result{}, nil
	}
	registry.Start(key, "u1", time.Minute, slow, Hooks{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = registry.Dispatch(context.Background(), key, Event{UserID: "u1"})
	}()
	<-entered

	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	close(release)
	wg.Wait()
	if registry.Active(key) {
		t.Fatal("session should be gone after the terminal transition")
	}
}

func TestSupersededDuringTransition(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}

	entered := make(chan struct{})
	release := make(chan struct{})
	again := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		return Result{}, nil
	}
	slow := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		close(entered)
		<-release
		return Result{Next: again}, nil
	}

	cancelled := make(chan struct{})
	expired := make(chan struct{}, 1)
	var errored error
	registry.Start(key, "u1", 30*time.Millisecond, slow, Hooks{
		OnCancel: func(s *Session) { close(cancelled) },
		OnExpire: func(s *Session) { expired <- struct{}{} },
		OnError:  func(s *Session, err error) { errored = err },
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = registry.Dispatch(context.Background(), key, Event{UserID: "u1"})
	}()
	<-entered

	replacement := registry.Start(key, "u1", time.Minute, terminal, Hooks{})
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("supersession must cancel the in-flight session")
	}
	close(release)
	wg.Wait()

	if registry.Len() != 1 {
		t.Fatalf("expected only the replacement session, got %d", registry.Len())
	}
	if got := registry.sessions[key]; got != replacement {
		t.Fatal("replacement session was displaced by the stale transition")
	}
	select {
	case <-expired:
		t.Fatal("detached session must not re-arm its timer")
	case <-time.After(100 * time.Millisecond):
	}
	if errored != nil {
		t.Fatalf("detached session reported an error: %v", errored)
	}
}

func TestTransitionErrorReleasesSession(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}

	boom := errors.New("boom")
	var reported error
	failing := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		return Result{}, boom
	}
	registry.Start(key, "u1", time.Minute, failing, Hooks{
		OnError: func(s *Session, err error) { reported = err },
	})

	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); !errors.Is(err, boom) {
		t.Fatalf("expected transition error, got %v", err)
	}
	if !errors.Is(reported, boom) {
		t.Fatalf("error hook saw %v", reported)
	}
	if registry.Active(key) {
		t.Fatal("failed session must not keep listening")
	}
}

func TestTransitionPanicBecomesError(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	key := Key{Scope: "u1", Kind: "wizard"}

	panicking := func(ctx context.Context, s *Session, ev Event) (Result, error) {
		panic("bad state")
	}
	registry.Start(key, "u1", time.Minute, panicking, Hooks{})

	if err := registry.Dispatch(context.Background(), key, Event{UserID: "u1"}); err == nil {
		t.Fatal("expected an error from the panicking transition")
	}
	if registry.Active(key) {
		t.Fatal("panicked session must be removed")
	}
}
