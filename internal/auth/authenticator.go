package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rkarchen/okx-stream/internal/metrics"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// Errors
var (
	// ErrLoginFailed means the server rejected the credentials. Not
	// retryable with the same credential set.
	ErrLoginFailed = errors.New("login failed")

	// ErrLoginTimeout means no login ack arrived in time. Callers treat
	// this as a transport failure and bounce the connection.
	ErrLoginTimeout = errors.New("login ack timeout")

	// ErrLoginInFlight means a login handshake is already in progress.
	ErrLoginInFlight = errors.New("login already in flight")
)

// State is the authentication state of one private connection.
type State int

const (
	Unauthenticated State = iota
	LoginSent
	Authenticated
	LoginFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoginSent:
		return "login_sent"
	case Authenticated:
		return "authenticated"
	case LoginFailed:
		return "login_failed"
	}
	return "unknown"
}

// Sender writes one frame to the private connection's outbound queue.
type Sender interface {
	Send(data []byte) error
}

// Config holds Authenticator tuning.
type Config struct {
	AckTimeout  time.Duration // max wait for a login ack
	MaxAttempts int           // rejected logins before LoginFailed is terminal
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AckTimeout:  5 * time.Second,
		MaxAttempts: 3,
	}
}

// Authenticator drives the login handshake over a live private connection.
// One instance per private connection; Reset is called on every reconnect.
type Authenticator struct {
	cfg    Config
	creds  *Credentials
	conn   Sender
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	state    State
	attempts int
	ack      chan wire.ControlEvent
}

// NewAuthenticator creates an Authenticator for the given connection.
func NewAuthenticator(cfg Config, creds *Credentials, conn Sender, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = DefaultConfig().AckTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	return &Authenticator{
		cfg:    cfg,
		creds:  creds,
		conn:   conn,
		logger: logger,
		now:    time.Now,
	}
}

// State returns the current authentication state.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reset returns the state to Unauthenticated after a reconnect. The
// rejected-attempt counter survives resets: a reconnect does not make bad
// credentials good.
func (a *Authenticator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == LoginFailed && a.attempts >= a.cfg.MaxAttempts {
		return
	}
	a.state = Unauthenticated
	a.ack = nil
}

// Authenticate sends a login frame and waits for the ack. On success the
// state becomes Authenticated. A rejection increments the attempt counter;
// once MaxAttempts rejections have accumulated the state is LoginFailed
// and further calls fail fast with ErrLoginFailed.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	a.mu.Lock()
	if a.state == LoginFailed {
		a.mu.Unlock()
		return ErrLoginFailed
	}
	if a.state == LoginSent {
		a.mu.Unlock()
		return ErrLoginInFlight
	}

	frame, err := a.creds.LoginFrame(a.now())
	if err != nil {
		a.mu.Unlock()
		return err
	}

	ack := make(chan wire.ControlEvent, 1)
	a.ack = ack
	a.state = LoginSent
	a.mu.Unlock()

	if err := a.conn.Send(frame); err != nil {
		a.setState(Unauthenticated)
		return fmt.Errorf("send login frame: %w", err)
	}

	timer := time.NewTimer(a.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		a.setState(Unauthenticated)
		return ctx.Err()

	case <-timer.C:
		a.setState(Unauthenticated)
		a.logger.Warn("login ack timeout", "timeout", a.cfg.AckTimeout)
		return ErrLoginTimeout

	case ev := <-ack:
		return a.finish(ev)
	}
}

// finish applies the login ack outcome.
func (a *Authenticator) finish(ev wire.ControlEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Code == wire.CodeOK {
		a.state = Authenticated
		a.attempts = 0
		a.logger.Info("login accepted")
		return nil
	}

	a.attempts++
	metrics.AuthFailures.Inc()

	if a.attempts >= a.cfg.MaxAttempts {
		a.state = LoginFailed
		a.logger.Error("login rejected, giving up",
			"code", ev.Code,
			"msg", ev.Msg,
			"attempts", a.attempts,
		)
	} else {
		a.state = Unauthenticated
		a.logger.Warn("login rejected",
			"code", ev.Code,
			"msg", ev.Msg,
			"attempt", a.attempts,
		)
	}

	return fmt.Errorf("code %s: %s: %w", ev.Code, ev.Msg, ErrLoginFailed)
}

// HandleLoginAck delivers an inbound login ack to the waiting handshake.
// Called by the Message Router. Acks with no handshake in flight are
// dropped.
func (a *Authenticator) HandleLoginAck(ev wire.ControlEvent) {
	a.mu.Lock()
	ack := a.ack
	a.ack = nil
	a.mu.Unlock()

	if ack == nil {
		a.logger.Debug("unsolicited login ack dropped", "code", ev.Code)
		return
	}

	select {
	case ack <- ev:
	default:
	}
}

// setState sets the state under lock.
func (a *Authenticator) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}
