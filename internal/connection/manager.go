package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rkarchen/okx-stream/internal/metrics"
)

// Manager owns one logical connection and keeps it alive across socket
// failures. Lifecycle: Disconnected -> Connecting -> Connected ->
// Disconnected -> Reconnecting -> Connecting... Reconnection never gives
// up on its own; the only terminal state is Closed, entered on Stop.
type Manager interface {
	// Start dials the first session and begins supervision.
	Start(ctx context.Context) error

	// Stop tears the connection down. Terminal.
	Stop(ctx context.Context) error

	// Send enqueues one frame on the live session's outbound queue.
	// Fails with ErrNotConnected while no session is live.
	Send(data []byte) error

	// Messages returns the channel of raw frames for the Message Router.
	Messages() <-chan RawMessage

	// StateChanges returns lifecycle transition notifications. Consumers
	// use the Connected transitions to replay logins and subscriptions.
	StateChanges() <-chan StateChange

	// State returns the current lifecycle state.
	State() State

	// Bounce force-closes the live session so the supervisor reconnects.
	// Used when a bounded wait (login ack) times out without a socket
	// error.
	Bounce()

	// Stats returns counters for operational visibility.
	Stats() ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// Output to Message Router
	out chan RawMessage

	// Lifecycle notifications
	changes chan StateChange

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	state     State
	client    Client
	reconnect int64
	received  int64
	lastUp    time.Time
}

// NewManager creates a Manager for one logical connection.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "conn"
	}

	return &manager{
		cfg:     cfg,
		logger:  logger.With("conn", cfg.Name),
		out:     make(chan RawMessage, cfg.MessageBufferSize),
		changes: make(chan StateChange, 32),
		state:   Disconnected,
	}
}

// Start begins supervision. The first dial happens on the supervisor
// goroutine; Start itself does not block on the network.
func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	return nil
}

// Stop shuts the connection down.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	if m.client != nil {
		m.client.Close()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
		return ctx.Err()
	}
}

// Send enqueues a frame on the live session.
func (m *manager) Send(data []byte) error {
	m.mu.RLock()
	client := m.client
	state := m.state
	m.mu.RUnlock()

	if state != Connected || client == nil {
		return ErrNotConnected
	}
	return client.Send(data)
}

// Messages returns the router-facing frame channel.
func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

// StateChanges returns the lifecycle notification channel.
func (m *manager) StateChanges() <-chan StateChange {
	return m.changes
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Bounce force-closes the live session.
func (m *manager) Bounce() {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client != nil {
		m.logger.Warn("bouncing connection")
		client.Close()
	}
}

// Stats returns current counters.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ManagerStats{
		State:            m.state,
		Reconnects:       m.reconnect,
		MessagesReceived: m.received,
		LastConnectedAt:  m.lastUp,
	}
}

// run is the supervisor loop: dial, pump until failure, back off, repeat.
func (m *manager) run() {
	defer m.wg.Done()

	backoff := Backoff{
		Base: m.cfg.ReconnectBaseDelay,
		Max:  m.cfg.ReconnectMaxDelay,
	}

	for {
		if m.ctx.Err() != nil {
			m.setState(Closed)
			return
		}

		m.setState(Connecting)

		clientCfg := m.cfg.Client
		sessionID := uuid.NewString()
		client := NewClient(clientCfg, m.logger.With("session", sessionID[:8]))

		if err := client.Connect(m.ctx); err != nil {
			m.logger.Warn("dial failed",
				"error", err,
				"attempt", backoff.Attempt(),
			)
			if !m.waitBackoff(&backoff) {
				m.setState(Closed)
				return
			}
			continue
		}

		m.mu.Lock()
		m.client = client
		m.lastUp = time.Now()
		m.mu.Unlock()

		m.setState(Connected)
		metrics.ConnectionUp.WithLabelValues(m.cfg.Name).Set(1)
		m.logger.Info("connected", "session", sessionID[:8])

		connectedAt := time.Now()
		err := m.pump(client)
		client.Close()

		metrics.ConnectionUp.WithLabelValues(m.cfg.Name).Set(0)

		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()

		if m.ctx.Err() != nil {
			m.setState(Closed)
			return
		}

		m.setState(Disconnected)
		m.logger.Warn("disconnected",
			"error", err,
			"uptime", time.Since(connectedAt),
		)

		// A sustained connected interval means the outage is over;
		// start the backoff schedule from scratch.
		if time.Since(connectedAt) >= m.cfg.StableResetAfter {
			backoff.Reset()
		}

		m.setState(Reconnecting)
		if !m.waitBackoff(&backoff) {
			m.setState(Closed)
			return
		}
	}
}

// pump forwards inbound frames to the router channel until the session
// fails or the manager stops.
func (m *manager) pump(client Client) error {
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()

		case err := <-client.Errors():
			if err == ErrStaleConnection {
				metrics.StaleConnections.WithLabelValues(m.cfg.Name).Inc()
			}
			return err

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}

			m.mu.Lock()
			m.received++
			m.mu.Unlock()
			metrics.MessagesReceived.WithLabelValues(m.cfg.Name).Inc()

			select {
			case m.out <- msg:
			case <-m.ctx.Done():
				return m.ctx.Err()
			default:
				m.logger.Warn("router buffer full, dropping frame")
				metrics.DroppedFrames.WithLabelValues("buffer_full").Inc()
			}
		}
	}
}

// waitBackoff sleeps for the next backoff delay. Returns false when the
// manager is stopping.
func (m *manager) waitBackoff(b *Backoff) bool {
	delay := b.Next()

	m.mu.Lock()
	m.reconnect++
	m.mu.Unlock()
	metrics.Reconnects.WithLabelValues(m.cfg.Name).Inc()

	m.logger.Info("waiting before reconnect",
		"delay", delay,
		"attempt", b.Attempt(),
	)

	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// setState records a transition and notifies observers.
func (m *manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	select {
	case m.changes <- StateChange{State: s, At: time.Now()}:
	default:
		m.logger.Warn("state change dropped, observer too slow", "state", s)
	}
}
