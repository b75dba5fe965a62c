package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rkarchen/okx-stream/internal/wire"
)

// mockSender records sent frames.
type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *mockSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *mockSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestAuthenticator(conn Sender) *Authenticator {
	return NewAuthenticator(Config{
		AckTimeout:  200 * time.Millisecond,
		MaxAttempts: 3,
	}, testCreds(), conn, nil)
}

// authenticate runs the handshake and delivers the given ack concurrently.
func authenticate(t *testing.T, a *Authenticator, ack wire.ControlEvent) error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- a.Authenticate(context.Background())
	}()

	// Wait for the login frame to go out before acking.
	deadline := time.After(time.Second)
	for a.State() != LoginSent {
		select {
		case <-deadline:
			t.Fatal("login frame never sent")
		case err := <-done:
			return err
		default:
			time.Sleep(time.Millisecond)
		}
	}

	a.HandleLoginAck(ack)

	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("authenticate did not return")
		return nil
	}
}

func TestAuthenticator_Success(t *testing.T) {
	sender := &mockSender{}
	a := newTestAuthenticator(sender)

	err := authenticate(t, a, wire.ControlEvent{Event: wire.EventLogin, Code: wire.CodeOK})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if a.State() != Authenticated {
		t.Errorf("state = %s, want authenticated", a.State())
	}
	if sender.count() != 1 {
		t.Errorf("sent %d frames, want 1", sender.count())
	}
}

func TestAuthenticator_Rejected(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	err := authenticate(t, a, wire.ControlEvent{Event: wire.EventLogin, Code: "60009", Msg: "login failed"})
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}

	// One rejection is not terminal.
	if a.State() != Unauthenticated {
		t.Errorf("state = %s, want unauthenticated", a.State())
	}
}

func TestAuthenticator_TerminalAfterMaxAttempts(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	reject := wire.ControlEvent{Event: wire.EventLogin, Code: "60009", Msg: "login failed"}
	for i := 0; i < 3; i++ {
		a.Reset()
		if err := authenticate(t, a, reject); !errors.Is(err, ErrLoginFailed) {
			t.Fatalf("attempt %d: err = %v, want ErrLoginFailed", i, err)
		}
	}

	if a.State() != LoginFailed {
		t.Fatalf("state = %s, want login_failed", a.State())
	}

	// Terminal: resets do not revive it and further calls fail fast.
	a.Reset()
	if a.State() != LoginFailed {
		t.Errorf("state after reset = %s, want login_failed", a.State())
	}
	if err := a.Authenticate(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("err = %v, want ErrLoginFailed", err)
	}
}

func TestAuthenticator_SuccessResetsAttempts(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	reject := wire.ControlEvent{Event: wire.EventLogin, Code: "60009"}
	accept := wire.ControlEvent{Event: wire.EventLogin, Code: wire.CodeOK}

	for i := 0; i < 2; i++ {
		a.Reset()
		authenticate(t, a, reject)
	}
	a.Reset()
	if err := authenticate(t, a, accept); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// The slate is clean; two more rejections must not be terminal.
	for i := 0; i < 2; i++ {
		a.Reset()
		authenticate(t, a, reject)
	}
	if a.State() == LoginFailed {
		t.Error("state terminal after success cleared the attempt counter")
	}
}

func TestAuthenticator_AckTimeout(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	err := a.Authenticate(context.Background())
	if !errors.Is(err, ErrLoginTimeout) {
		t.Fatalf("err = %v, want ErrLoginTimeout", err)
	}
	if a.State() != Unauthenticated {
		t.Errorf("state = %s, want unauthenticated", a.State())
	}
}

func TestAuthenticator_SendFailure(t *testing.T) {
	a := newTestAuthenticator(&mockSender{err: errors.New("socket closed")})

	if err := a.Authenticate(context.Background()); err == nil {
		t.Fatal("expected send error")
	}
	if a.State() != Unauthenticated {
		t.Errorf("state = %s, want unauthenticated", a.State())
	}
}

func TestAuthenticator_ContextCancel(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Authenticate(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("authenticate did not return")
	}
}

func TestAuthenticator_UnsolicitedAckDropped(t *testing.T) {
	a := newTestAuthenticator(&mockSender{})

	// No handshake in flight; must not panic or change state.
	a.HandleLoginAck(wire.ControlEvent{Event: wire.EventLogin, Code: wire.CodeOK})

	if a.State() != Unauthenticated {
		t.Errorf("state = %s, want unauthenticated", a.State())
	}
}
