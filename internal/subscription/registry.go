package subscription

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rkarchen/okx-stream/internal/metrics"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// Registry holds desired/confirmed subscription state for one client.
// Both caller goroutines and the reconnect path mutate it, so all state
// lives under one mutex.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	public  Sender
	private Sender // nil when no credentials are configured

	mu           sync.Mutex
	subs         map[string]*Subscription
	publicReady  bool
	privateReady bool
	replays      int64
	rejected     int64

	rejections chan *Rejection
}

// NewRegistry creates a Subscription Registry. private may be nil.
func NewRegistry(cfg Config, public, private Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxArgsPerFrame == 0 {
		cfg.MaxArgsPerFrame = DefaultConfig().MaxArgsPerFrame
	}
	if cfg.RejectionBuffer == 0 {
		cfg.RejectionBuffer = DefaultConfig().RejectionBuffer
	}

	return &Registry{
		cfg:        cfg,
		logger:     logger,
		public:     public,
		private:    private,
		subs:       make(map[string]*Subscription),
		rejections: make(chan *Rejection, cfg.RejectionBuffer),
	}
}

// Subscribe marks the given args desired and, when the owning connection
// is ready, enqueues subscribe frames. Re-subscribing an already-desired
// arg is a no-op.
func (r *Registry) Subscribe(args ...wire.Arg) error {
	var pub, priv []wire.Arg

	r.mu.Lock()
	for _, arg := range args {
		isPriv := wire.IsPrivate(arg.Channel)
		if isPriv && r.private == nil {
			r.mu.Unlock()
			return ErrNoPrivateSession
		}

		sub, ok := r.subs[arg.Key()]
		if ok && sub.Desired {
			continue
		}
		if !ok {
			sub = &Subscription{
				Arg:       arg,
				Private:   isPriv,
				CreatedAt: time.Now(),
			}
			r.subs[arg.Key()] = sub
		}
		sub.Desired = true
		sub.Rejected = false

		if isPriv && r.privateReady {
			priv = append(priv, arg)
		} else if !isPriv && r.publicReady {
			pub = append(pub, arg)
		}
	}
	r.mu.Unlock()

	r.sendBatched(r.public, wire.OpSubscribe, pub)
	r.sendBatched(r.private, wire.OpSubscribe, priv)
	return nil
}

// Unsubscribe marks the given args undesired and enqueues unsubscribe
// frames for the ones the server has confirmed.
func (r *Registry) Unsubscribe(args ...wire.Arg) error {
	var pub, priv []wire.Arg

	r.mu.Lock()
	for _, arg := range args {
		sub, ok := r.subs[arg.Key()]
		if !ok {
			continue
		}
		sub.Desired = false

		if !sub.Confirmed {
			// Never confirmed and no longer wanted: nothing on the wire
			// to undo.
			delete(r.subs, arg.Key())
			continue
		}

		if sub.Private {
			priv = append(priv, arg)
		} else {
			pub = append(pub, arg)
		}
	}
	r.mu.Unlock()

	r.sendBatched(r.public, wire.OpUnsubscribe, pub)
	r.sendBatched(r.private, wire.OpUnsubscribe, priv)
	return nil
}

// Resubscribe cycles one desired subscription to force a fresh snapshot,
// e.g. after order-book drift.
func (r *Registry) Resubscribe(arg wire.Arg) error {
	r.mu.Lock()
	sub, ok := r.subs[arg.Key()]
	if !ok || !sub.Desired {
		r.mu.Unlock()
		return nil
	}
	sub.Confirmed = false
	conn := r.public
	if sub.Private {
		conn = r.private
	}
	r.mu.Unlock()

	r.sendBatched(conn, wire.OpUnsubscribe, []wire.Arg{arg})
	r.sendBatched(conn, wire.OpSubscribe, []wire.Arg{arg})
	return nil
}

// PublicReady replays desired public subscriptions after a (re)connect.
func (r *Registry) PublicReady() {
	r.mu.Lock()
	r.publicReady = true
	args := r.replayLocked(false)
	r.mu.Unlock()

	r.sendBatched(r.public, wire.OpSubscribe, args)
}

// PrivateReady replays desired private subscriptions once the session is
// authenticated.
func (r *Registry) PrivateReady() {
	r.mu.Lock()
	r.privateReady = true
	args := r.replayLocked(true)
	r.mu.Unlock()

	r.sendBatched(r.private, wire.OpSubscribe, args)
}

// PublicDown marks the public connection gone: nothing is confirmed any
// more.
func (r *Registry) PublicDown() {
	r.markDown(false)
}

// PrivateDown marks the private session gone.
func (r *Registry) PrivateDown() {
	r.markDown(true)
}

// replayLocked collects desired args in one scope for re-subscription,
// resets their confirmed flags, and prunes entries nobody wants any more.
// Caller holds r.mu.
func (r *Registry) replayLocked(private bool) []wire.Arg {
	var args []wire.Arg
	for key, sub := range r.subs {
		if sub.Private != private {
			continue
		}
		if !sub.Desired {
			if !sub.Confirmed {
				delete(r.subs, key)
			}
			continue
		}
		if sub.Rejected {
			// The server refused this filter; replaying it would just
			// earn the same rejection.
			continue
		}
		sub.Confirmed = false
		args = append(args, sub.Arg)
	}

	if len(args) > 0 {
		r.replays += int64(len(args))
		metrics.SubscriptionReplays.Add(float64(len(args)))
		r.logger.Info("replaying subscriptions",
			"private", private,
			"count", len(args),
		)
	}
	return args
}

// markDown clears ready and confirmed state for one scope.
func (r *Registry) markDown(private bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if private {
		r.privateReady = false
	} else {
		r.publicReady = false
	}
	for _, sub := range r.subs {
		if sub.Private == private {
			sub.Confirmed = false
		}
	}
}

// HandleSubscribeAck confirms the matching subscription.
func (r *Registry) HandleSubscribeAck(ev wire.ControlEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[ev.Arg.Key()]
	if !ok {
		r.logger.Debug("ack for unknown subscription",
			"channel", ev.Arg.Channel,
			"inst_id", ev.Arg.InstID,
		)
		return
	}
	sub.Confirmed = true

	r.logger.Debug("subscription confirmed",
		"channel", ev.Arg.Channel,
		"inst_id", ev.Arg.InstID,
	)
}

// HandleUnsubscribeAck clears confirmation and prunes the entry when the
// caller no longer wants it.
func (r *Registry) HandleUnsubscribeAck(ev wire.ControlEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[ev.Arg.Key()]
	if !ok {
		return
	}
	sub.Confirmed = false
	if !sub.Desired {
		delete(r.subs, ev.Arg.Key())
	}
}

// HandleSubscribeError surfaces a server-side subscription rejection. The
// desired flag stays as the caller set it; the rejected flag keeps the
// replay path from hammering a bad filter.
func (r *Registry) HandleSubscribeError(ev wire.ControlEvent) {
	r.mu.Lock()
	if sub, ok := r.subs[ev.Arg.Key()]; ok {
		sub.Confirmed = false
		sub.Rejected = true
	}
	r.rejected++
	r.mu.Unlock()

	metrics.SubscriptionRejections.Inc()

	rej := &Rejection{Arg: ev.Arg, Code: ev.Code, Msg: ev.Msg}
	select {
	case r.rejections <- rej:
	default:
		r.logger.Warn("rejection queue full, dropping", "error", rej)
	}
}

// IsLive reports whether pushes for the arg should be delivered. A
// subscription is app-visible iff it is desired; this also defends
// against pushes racing an in-flight unsubscribe.
func (r *Registry) IsLive(arg wire.Arg) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[arg.Key()]
	return ok && sub.Desired
}

// Rejections returns the channel of surfaced subscription rejections.
func (r *Registry) Rejections() <-chan *Rejection {
	return r.rejections
}

// Stats returns current registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Total:    len(r.subs),
		Replays:  r.replays,
		Rejected: r.rejected,
	}
	for _, sub := range r.subs {
		if sub.Desired {
			s.Desired++
		}
		if sub.Confirmed {
			s.Confirmed++
		}
	}
	return s
}

// Desired returns a copy of all desired subscriptions, for diagnostics.
func (r *Registry) Desired() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Desired {
			out = append(out, *sub)
		}
	}
	return out
}

// sendBatched chunks args into frames of at most MaxArgsPerFrame and
// enqueues them. Send failures are logged, not returned: a dead
// connection means the replay path will re-send once it is back.
func (r *Registry) sendBatched(conn Sender, op string, args []wire.Arg) {
	if conn == nil || len(args) == 0 {
		return
	}

	for len(args) > 0 {
		n := len(args)
		if n > r.cfg.MaxArgsPerFrame {
			n = r.cfg.MaxArgsPerFrame
		}

		frame, err := json.Marshal(wire.Request{Op: op, Args: args[:n]})
		if err != nil {
			r.logger.Error("marshal request", "op", op, "error", err)
			return
		}
		if err := conn.Send(frame); err != nil {
			r.logger.Warn("send failed, will replay on reconnect",
				"op", op,
				"args", n,
				"error", err,
			)
			return
		}
		args = args[n:]
	}
}
