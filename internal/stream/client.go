package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rkarchen/okx-stream/internal/auth"
	"github.com/rkarchen/okx-stream/internal/book"
	"github.com/rkarchen/okx-stream/internal/config"
	"github.com/rkarchen/okx-stream/internal/connection"
	"github.com/rkarchen/okx-stream/internal/metrics"
	"github.com/rkarchen/okx-stream/internal/router"
	"github.com/rkarchen/okx-stream/internal/subscription"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// Client is the streaming client facade. It owns one public connection
// and, when credentials are configured, one private connection.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	public  connection.Manager
	private connection.Manager // nil without credentials

	authenticator *auth.Authenticator
	registry      *subscription.Registry
	engine        *book.Engine

	publicRouter  router.Router
	privateRouter router.Router

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Client from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.Events.BufferSize),
	}

	c.public = connection.NewManager(managerConfig("public", cfg.Endpoints.PublicURL, cfg.Connection), logger)

	if cfg.Credentials.Configured() {
		creds := &auth.Credentials{
			APIKey:     cfg.Credentials.APIKey,
			SecretKey:  cfg.Credentials.SecretKey,
			Passphrase: cfg.Credentials.Passphrase,
		}
		if err := creds.Validate(); err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}

		c.private = connection.NewManager(managerConfig("private", cfg.Endpoints.PrivateURL, cfg.Connection), logger)
		c.authenticator = auth.NewAuthenticator(auth.Config{
			AckTimeout:  cfg.Auth.AckTimeout,
			MaxAttempts: cfg.Auth.MaxAttempts,
		}, creds, c.private, logger)
	}

	c.engine = book.NewEngine(book.Config{
		MaxDepth:       cfg.Book.MaxDepth,
		ChecksumLevels: cfg.Book.ChecksumLevels,
	}, logger)
	c.engine.SetUpdateHandler(c.onBookUpdate)
	c.engine.SetInvalidHandler(c.onBookInvalid)

	c.registry = subscription.NewRegistry(subscription.DefaultConfig(), c.public, privateSender(c.private), logger)

	c.publicRouter = router.NewRouter(router.Config{
		Subscriptions: c.registry,
		Books:         c.engine,
		OnPush:        c.onPush,
	}, c.public.Messages(), logger.With("router", "public"))

	if c.private != nil {
		c.privateRouter = router.NewRouter(router.Config{
			Auth:          c.authenticator,
			Subscriptions: c.registry,
			OnPush:        c.onPush,
		}, c.private.Messages(), logger.With("router", "private"))
	}

	return c, nil
}

// Start opens the connections and begins streaming. Initial subscriptions
// from the config are registered immediately and sent once each
// connection reports ready.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.publicRouter.Start(c.ctx); err != nil {
		return fmt.Errorf("start public router: %w", err)
	}
	if err := c.public.Start(c.ctx); err != nil {
		return fmt.Errorf("start public connection: %w", err)
	}

	c.wg.Add(1)
	go c.stateLoop("public", c.public, false)

	if c.private != nil {
		if err := c.privateRouter.Start(c.ctx); err != nil {
			return fmt.Errorf("start private router: %w", err)
		}
		if err := c.private.Start(c.ctx); err != nil {
			return fmt.Errorf("start private connection: %w", err)
		}

		c.wg.Add(1)
		go c.stateLoop("private", c.private, true)
	}

	c.wg.Add(2)
	go c.rejectionLoop()
	go c.resyncLoop()

	if len(c.cfg.Subscriptions) > 0 {
		args := make([]wire.Arg, 0, len(c.cfg.Subscriptions))
		for _, sub := range c.cfg.Subscriptions {
			args = append(args, wire.Arg{
				Channel:  sub.Channel,
				InstID:   sub.InstID,
				InstType: sub.InstType,
			})
		}
		if err := c.Subscribe(args...); err != nil {
			return err
		}
	}

	c.logger.Info("streaming client started",
		"public_url", c.cfg.Endpoints.PublicURL,
		"private", c.private != nil,
	)

	return nil
}

// Stop tears down all owned connections. Terminal.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info("stopping streaming client")

	if c.cancel != nil {
		c.cancel()
	}

	if c.private != nil {
		c.private.Stop(ctx)
		c.privateRouter.Stop(ctx)
	}
	c.public.Stop(ctx)
	c.publicRouter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("client stop timed out")
		return ctx.Err()
	}

	close(c.events)
	return nil
}

// Subscribe registers the given channel args as desired and subscribes
// them as soon as their connection is ready.
func (c *Client) Subscribe(args ...wire.Arg) error {
	return c.registry.Subscribe(args...)
}

// Unsubscribe withdraws interest in the given channel args. Order books
// for unsubscribed instruments are destroyed.
func (c *Client) Unsubscribe(args ...wire.Arg) error {
	if err := c.registry.Unsubscribe(args...); err != nil {
		return err
	}
	for _, arg := range args {
		if arg.Channel == wire.ChannelBooks {
			c.engine.Forget(arg.InstID)
		}
	}
	return nil
}

// Book returns an immutable snapshot of the instrument's order book.
// Returns book.ErrBookInvalid while a resync is pending.
func (c *Client) Book(instID string) (book.Snapshot, error) {
	return c.engine.Snapshot(instID)
}

// Events returns the client's event stream. Closed by Stop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// stateLoop reacts to one connection's lifecycle transitions.
func (c *Client) stateLoop(name string, mgr connection.Manager, private bool) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return

		case change, ok := <-mgr.StateChanges():
			if !ok {
				return
			}

			switch change.State {
			case connection.Connected:
				c.emit(Event{Type: EventConnectionUp, Conn: name, At: change.At})
				if private {
					// Re-login before any private subscription flows.
					c.authenticator.Reset()
					c.wg.Add(1)
					go c.login()
				} else {
					c.registry.PublicReady()
				}

			case connection.Disconnected, connection.Closed:
				c.emit(Event{Type: EventConnectionDown, Conn: name, At: change.At})
				if private {
					c.registry.PrivateDown()
				} else {
					c.registry.PublicDown()
				}
			}
		}
	}
}

// login runs the private handshake and unblocks private subscriptions on
// success.
func (c *Client) login() {
	defer c.wg.Done()

	err := c.authenticator.Authenticate(c.ctx)
	switch {
	case err == nil:
		c.emit(Event{Type: EventAuthenticated, Conn: "private", At: time.Now()})
		c.registry.PrivateReady()

	case errors.Is(err, auth.ErrLoginFailed):
		// Credential errors are not retryable; surface and stand down.
		c.emit(Event{Type: EventAuthFailed, Conn: "private", Err: err, At: time.Now()})

	case errors.Is(err, auth.ErrLoginTimeout):
		// No ack in time means the session is suspect; bounce it and let
		// the reconnect path try again.
		c.private.Bounce()

	default:
		// Context cancellation or a send failure: the connection
		// lifecycle already has it covered.
	}
}

// rejectionLoop surfaces subscription rejections on the event stream.
func (c *Client) rejectionLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case rej, ok := <-c.registry.Rejections():
			if !ok {
				return
			}
			c.emit(Event{
				Type:    EventSubscriptionRejected,
				Channel: rej.Arg.Channel,
				InstID:  rej.Arg.InstID,
				Err:     rej,
				At:      time.Now(),
			})
		}
	}
}

// resyncLoop turns engine resync requests into subscription cycles so a
// fresh snapshot arrives.
func (c *Client) resyncLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case instID, ok := <-c.engine.Resync():
			if !ok {
				return
			}
			c.logger.Info("resyncing order book", "inst_id", instID)
			if err := c.registry.Resubscribe(wire.Arg{Channel: wire.ChannelBooks, InstID: instID}); err != nil {
				c.logger.Warn("resubscribe failed", "inst_id", instID, "error", err)
			}
		}
	}
}

// onPush forwards a non-book channel push to the event stream.
func (c *Client) onPush(push wire.Push, receivedAt time.Time) {
	c.emit(Event{
		Type:    EventPush,
		Channel: push.Arg.Channel,
		InstID:  push.Arg.InstID,
		Data:    push.Data,
		At:      receivedAt,
	})
}

// onBookUpdate forwards a fresh book snapshot to the event stream.
func (c *Client) onBookUpdate(snap book.Snapshot) {
	c.emit(Event{
		Type:    EventBookUpdate,
		Channel: wire.ChannelBooks,
		InstID:  snap.InstID,
		Book:    &snap,
		At:      snap.Timestamp,
	})
}

// onBookInvalid notifies the caller that a book diverged.
func (c *Client) onBookInvalid(instID string) {
	c.emit(Event{
		Type:    EventBookInvalid,
		Channel: wire.ChannelBooks,
		InstID:  instID,
		Err:     book.ErrBookInvalid,
		At:      time.Now(),
	})
}

// emit delivers an event without ever blocking the read path.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		c.logger.Warn("event dropped, consumer too slow", "type", ev.Type)
	}
}

// managerConfig builds a ManagerConfig from the transport settings.
func managerConfig(name, url string, cc config.ConnectionConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		Name: name,
		Client: connection.ClientConfig{
			URL:           url,
			DialTimeout:   cc.DialTimeout,
			PingInterval:  cc.PingInterval,
			PongTimeout:   cc.PongTimeout,
			WriteTimeout:  cc.WriteTimeout,
			SendQueueSize: cc.SendQueueSize,
			BufferSize:    cc.MessageBufferSize,
		},
		ReconnectBaseDelay: cc.ReconnectBaseDelay,
		ReconnectMaxDelay:  cc.ReconnectMaxDelay,
		StableResetAfter:   cc.StableResetAfter,
		MessageBufferSize:  cc.MessageBufferSize,
	}
}

// privateSender adapts a possibly-nil Manager into the registry's Sender.
func privateSender(m connection.Manager) subscription.Sender {
	if m == nil {
		return nil
	}
	return m
}
