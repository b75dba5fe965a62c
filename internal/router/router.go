package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rkarchen/okx-stream/internal/connection"
	"github.com/rkarchen/okx-stream/internal/metrics"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// Router consumes raw frames from one connection and dispatches them.
type Router interface {
	// Start begins routing frames from the input channel.
	Start(ctx context.Context) error

	// Stop shuts the routing loop down.
	Stop(ctx context.Context) error

	// Stats returns current router counters.
	Stats() Stats
}

// router is the internal implementation.
type router struct {
	cfg    Config
	logger *slog.Logger

	input <-chan connection.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	received        int64
	pongs           int64
	pushes          int64
	parseErrors     int64
	droppedNoSub    int64
	serverErrors    int64
	unknownControls int64
}

// NewRouter creates a Message Router for one connection's frame stream.
func NewRouter(cfg Config, input <-chan connection.RawMessage, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:    cfg,
		logger: logger,
		input:  input,
	}
}

// Start begins routing.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	return nil
}

// Stop shuts the routing loop down.
func (r *router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
		return ctx.Err()
	}
}

// Stats returns current counters.
func (r *router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:        r.received,
		Pongs:           r.pongs,
		Pushes:          r.pushes,
		ParseErrors:     r.parseErrors,
		DroppedNoSub:    r.droppedNoSub,
		ServerErrors:    r.serverErrors,
		UnknownControls: r.unknownControls,
	}
}

// routeLoop is the dispatch goroutine. It is the sole consumer of the
// connection's frames, which preserves per-instrument delta order for the
// book engine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				return
			}
			r.route(raw)
		}
	}
}

// route classifies and dispatches one frame.
func (r *router) route(raw connection.RawMessage) {
	r.count(&r.received)

	// Heartbeat replies are bare text outside the JSON envelope.
	if bytes.Equal(raw.Data, wire.Pong) {
		r.count(&r.pongs)
		return
	}

	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.count(&r.parseErrors)
		metrics.ParseErrors.Inc()
		r.logger.Warn("unparseable frame dropped",
			"error", err,
			"len", len(raw.Data),
		)
		return
	}

	switch r.classify(env) {
	case KindLoginAck:
		if r.cfg.Auth != nil {
			r.cfg.Auth.HandleLoginAck(r.control(env))
		}

	case KindSubscribeAck:
		r.cfg.Subscriptions.HandleSubscribeAck(r.control(env))

	case KindUnsubscribeAck:
		r.cfg.Subscriptions.HandleUnsubscribeAck(r.control(env))

	case KindSubscribeError:
		r.cfg.Subscriptions.HandleSubscribeError(r.control(env))

	case KindServerError:
		r.count(&r.serverErrors)
		metrics.ServerErrors.Inc()
		r.logger.Warn("server error", "code", env.Code, "msg", env.Msg)
		if r.cfg.OnServerError != nil {
			r.cfg.OnServerError(env.Code, env.Msg)
		}

	case KindChannelPush:
		r.dispatchPush(env, raw)

	default:
		r.count(&r.unknownControls)
		metrics.DroppedFrames.WithLabelValues("unknown_control").Inc()
		r.logger.Debug("unknown control frame dropped", "event", env.Event)
	}
}

// classify determines the frame kind from the fixed discriminator scheme:
// the event field for control frames, the arg+data envelope for pushes.
func (r *router) classify(env envelope) Kind {
	switch env.Event {
	case wire.EventLogin:
		return KindLoginAck
	case wire.EventSubscribe:
		return KindSubscribeAck
	case wire.EventUnsubscribe:
		return KindUnsubscribeAck
	case wire.EventError:
		// Errors that echo the offending arg are subscription
		// rejections; the rest are generic server errors.
		if env.Arg.Channel != "" {
			return KindSubscribeError
		}
		return KindServerError
	case "":
		if env.Arg.Channel != "" && len(env.Data) > 0 {
			return KindChannelPush
		}
		return KindUnknownControl
	default:
		return KindUnknownControl
	}
}

// dispatchPush delivers a channel push to the book engine or the generic
// push sink. Pushes with no live subscription are dropped: they race an
// unsubscribe already in flight.
func (r *router) dispatchPush(env envelope, raw connection.RawMessage) {
	if !r.cfg.Subscriptions.IsLive(env.Arg) {
		r.count(&r.droppedNoSub)
		metrics.DroppedFrames.WithLabelValues("no_subscription").Inc()
		return
	}

	r.count(&r.pushes)

	push := wire.Push{
		Arg:    env.Arg,
		Action: env.Action,
		Data:   env.Data,
	}

	if env.Arg.Channel == wire.ChannelBooks && r.cfg.Books != nil {
		if err := r.cfg.Books.HandleBookPush(push, raw.ReceivedAt); err != nil {
			r.count(&r.parseErrors)
			metrics.ParseErrors.Inc()
			r.logger.Warn("book push dropped",
				"inst_id", env.Arg.InstID,
				"error", err,
			)
		}
		return
	}

	if r.cfg.OnPush != nil {
		r.cfg.OnPush(push, raw.ReceivedAt)
	}
}

// control converts an envelope into a ControlEvent.
func (r *router) control(env envelope) wire.ControlEvent {
	return wire.ControlEvent{
		Event: env.Event,
		Arg:   env.Arg,
		Code:  env.Code,
		Msg:   env.Msg,
	}
}

// count bumps one counter under the stats lock.
func (r *router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}
