package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rkarchen/okx-stream/internal/config"
	"github.com/rkarchen/okx-stream/internal/wire"
)

// mockExchange is a WebSocket server speaking the exchange control
// protocol: it acks subscribes and logins and lets tests inject pushes.
type mockExchange struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	conns      []*exchangeConn
	loginCode  string
	snapshotOn map[string]wire.BookData // instId -> snapshot sent on books subscribe
}

type exchangeConn struct {
	mu         sync.Mutex
	ws         *websocket.Conn
	subscribes []wire.Request
	logins     int
}

func newMockExchange(t *testing.T) *mockExchange {
	m := &mockExchange{
		t:          t,
		loginCode:  wire.CodeOK,
		snapshotOn: make(map[string]wire.BookData),
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer ws.Close()

		conn := &exchangeConn{ws: ws}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()

		m.serve(conn)
	}))
	t.Cleanup(m.server.Close)

	return m
}

func (m *mockExchange) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *mockExchange) serve(conn *exchangeConn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		if string(data) == "ping" {
			conn.write(m.t, []byte("pong"))
			continue
		}

		var req struct {
			Op   string          `json:"op"`
			Args json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		switch req.Op {
		case wire.OpLogin:
			conn.mu.Lock()
			conn.logins++
			conn.mu.Unlock()

			m.mu.Lock()
			code := m.loginCode
			m.mu.Unlock()

			msg := ""
			if code != wire.CodeOK {
				msg = "login failed"
			}
			ack, _ := json.Marshal(wire.ControlEvent{Event: wire.EventLogin, Code: code, Msg: msg})
			conn.write(m.t, ack)

		case wire.OpSubscribe, wire.OpUnsubscribe:
			var full wire.Request
			if err := json.Unmarshal(data, &full); err != nil {
				continue
			}

			conn.mu.Lock()
			if full.Op == wire.OpSubscribe {
				conn.subscribes = append(conn.subscribes, full)
			}
			conn.mu.Unlock()

			event := wire.EventSubscribe
			if full.Op == wire.OpUnsubscribe {
				event = wire.EventUnsubscribe
			}
			for _, arg := range full.Args {
				ack, _ := json.Marshal(wire.ControlEvent{Event: event, Arg: arg})
				conn.write(m.t, ack)
			}

			if full.Op != wire.OpSubscribe {
				continue
			}
			for _, arg := range full.Args {
				m.mu.Lock()
				snap, ok := m.snapshotOn[arg.InstID]
				m.mu.Unlock()
				if !ok || arg.Channel != wire.ChannelBooks {
					continue
				}
				m.sendBookPush(conn, arg.InstID, wire.ActionSnapshot, snap)
			}
		}
	}
}

func (m *mockExchange) sendBookPush(conn *exchangeConn, instID, action string, data wire.BookData) {
	raw, _ := json.Marshal([]wire.BookData{data})
	push, _ := json.Marshal(wire.Push{
		Arg:    wire.Arg{Channel: wire.ChannelBooks, InstID: instID},
		Action: action,
		Data:   raw,
	})
	conn.write(m.t, push)
}

func (c *exchangeConn) write(t *testing.T, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Logf("server write: %v", err)
	}
}

func (c *exchangeConn) close() {
	c.ws.Close()
}

func (m *mockExchange) conn(i int) *exchangeConn {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		if len(m.conns) > i {
			conn := m.conns[i]
			m.mu.Unlock()
			return conn
		}
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	m.t.Fatalf("connection %d never arrived", i)
	return nil
}

// subscribeCount waits until the connection has seen n subscribe frames.
func (c *exchangeConn) subscribeCount(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.subscribes)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection never saw %d subscribe frames", n)
}

func testConfig(publicURL string) *config.Config {
	return &config.Config{
		Endpoints: config.EndpointsConfig{PublicURL: publicURL},
		Connection: config.ConnectionConfig{
			DialTimeout:        2 * time.Second,
			PingInterval:       time.Second,
			PongTimeout:        time.Second,
			WriteTimeout:       time.Second,
			ReconnectBaseDelay: 20 * time.Millisecond,
			ReconnectMaxDelay:  100 * time.Millisecond,
			StableResetAfter:   time.Second,
			SendQueueSize:      64,
			MessageBufferSize:  256,
		},
		Auth: config.AuthConfig{AckTimeout: time.Second, MaxAttempts: 3},
		Book: config.BookConfig{MaxDepth: 400, ChecksumLevels: 25},
		Events: config.EventsConfig{
			BufferSize: 256,
		},
		Metrics: config.MetricsConfig{Port: 9090, Path: "/metrics"},
	}
}

func startClient(t *testing.T, cfg *config.Config) *Client {
	t.Helper()

	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client.Stop(ctx)
	})
	return client
}

// waitEvent drains the event stream until an event of the wanted type
// arrives.
func waitEvent(t *testing.T, client *Client, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("never received event %s", want)
		}
	}
}

func TestClient_BookFlow(t *testing.T) {
	exchange := newMockExchange(t)
	exchange.snapshotOn["BTC-USDT"] = wire.BookData{
		Bids:     [][]string{{"25.5", "10", "0", "1"}, {"25.4", "5", "0", "1"}},
		Asks:     [][]string{{"25.6", "3", "0", "1"}, {"25.7", "8", "0", "1"}},
		TS:       "1700000000000",
		Checksum: 376670357,
		SeqID:    1,
	}

	cfg := testConfig(exchange.url())
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Channel: wire.ChannelBooks, InstID: "BTC-USDT"},
	}

	client := startClient(t, cfg)

	waitEvent(t, client, EventConnectionUp)
	ev := waitEvent(t, client, EventBookUpdate)

	if ev.InstID != "BTC-USDT" || ev.Book == nil {
		t.Fatalf("event = %+v", ev)
	}
	bid, ok := ev.Book.BestBid()
	if !ok || bid.PriceRaw != "25.5" {
		t.Errorf("best bid = %+v", bid)
	}

	snap, err := client.Book("BTC-USDT")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Errorf("snapshot = %d bids, %d asks", len(snap.Bids), len(snap.Asks))
	}
}

func TestClient_ReconnectReplaysSubscriptions(t *testing.T) {
	exchange := newMockExchange(t)

	cfg := testConfig(exchange.url())
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Channel: wire.ChannelTickers, InstID: "BTC-USDT"},
		{Channel: wire.ChannelTickers, InstID: "ETH-USDT"},
		{Channel: wire.ChannelTrades, InstID: "BTC-USDT"},
	}

	client := startClient(t, cfg)

	first := exchange.conn(0)
	first.subscribeCount(t, 1)
	waitEvent(t, client, EventConnectionUp)

	first.close()
	waitEvent(t, client, EventConnectionDown)

	second := exchange.conn(1)
	second.subscribeCount(t, 1)

	second.mu.Lock()
	defer second.mu.Unlock()
	total := 0
	for _, req := range second.subscribes {
		total += len(req.Args)
	}
	if total != 3 {
		t.Errorf("replayed %d args, want all 3", total)
	}
}

func TestClient_ChecksumMismatchTriggersResync(t *testing.T) {
	exchange := newMockExchange(t)
	exchange.snapshotOn["BTC-USDT"] = wire.BookData{
		Bids:     [][]string{{"25.5", "10", "0", "1"}, {"25.4", "5", "0", "1"}},
		Asks:     [][]string{{"25.6", "3", "0", "1"}, {"25.7", "8", "0", "1"}},
		TS:       "1700000000000",
		Checksum: 376670357,
		SeqID:    1,
	}

	cfg := testConfig(exchange.url())
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Channel: wire.ChannelBooks, InstID: "BTC-USDT"},
	}

	client := startClient(t, cfg)
	waitEvent(t, client, EventBookUpdate)

	// A delta with a bogus checksum invalidates the book; the client
	// cycles the subscription and the replayed subscribe earns a fresh
	// snapshot that revalidates it.
	conn := exchange.conn(0)
	exchange.sendBookPush(conn, "BTC-USDT", wire.ActionUpdate, wire.BookData{
		Bids:     [][]string{{"25.5", "12", "0", "2"}},
		TS:       "1700000001000",
		Checksum: 1,
		SeqID:    2,
	})

	waitEvent(t, client, EventBookInvalid)
	waitEvent(t, client, EventBookUpdate)

	if _, err := client.Book("BTC-USDT"); err != nil {
		t.Errorf("Book after resync: %v", err)
	}
}

func TestClient_PrivateLogin(t *testing.T) {
	public := newMockExchange(t)
	private := newMockExchange(t)

	cfg := testConfig(public.url())
	cfg.Endpoints.PrivateURL = private.url()
	cfg.Credentials = config.CredentialsConfig{
		APIKey:     "k",
		SecretKey:  "s",
		Passphrase: "p",
	}
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Channel: wire.ChannelOrders, InstType: "SPOT"},
	}

	client := startClient(t, cfg)

	waitEvent(t, client, EventAuthenticated)

	// The private subscription goes out only after the login ack.
	conn := private.conn(0)
	conn.subscribeCount(t, 1)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.logins != 1 {
		t.Errorf("logins = %d, want 1", conn.logins)
	}
	if conn.subscribes[0].Args[0].Channel != wire.ChannelOrders {
		t.Errorf("private subscribe = %+v", conn.subscribes[0])
	}
}

func TestClient_LoginRejected(t *testing.T) {
	public := newMockExchange(t)
	private := newMockExchange(t)
	private.loginCode = "60009"

	cfg := testConfig(public.url())
	cfg.Endpoints.PrivateURL = private.url()
	cfg.Credentials = config.CredentialsConfig{
		APIKey:     "k",
		SecretKey:  "s",
		Passphrase: "p",
	}

	client := startClient(t, cfg)

	ev := waitEvent(t, client, EventAuthFailed)
	if ev.Err == nil {
		t.Error("auth failure event missing error")
	}
}

func TestClient_PrivateChannelWithoutCredentials(t *testing.T) {
	exchange := newMockExchange(t)
	client := startClient(t, testConfig(exchange.url()))

	err := client.Subscribe(wire.Arg{Channel: wire.ChannelOrders, InstType: "SPOT"})
	if err == nil {
		t.Error("expected error subscribing a private channel without credentials")
	}
}

func TestClient_UnsubscribeForgetsBook(t *testing.T) {
	exchange := newMockExchange(t)
	exchange.snapshotOn["BTC-USDT"] = wire.BookData{
		Bids:     [][]string{{"25.5", "10", "0", "1"}},
		Asks:     [][]string{{"25.6", "3", "0", "1"}},
		TS:       "1700000000000",
		Checksum: 0,
		SeqID:    1,
	}

	cfg := testConfig(exchange.url())
	cfg.Subscriptions = []config.SubscriptionConfig{
		{Channel: wire.ChannelBooks, InstID: "BTC-USDT"},
	}

	client := startClient(t, cfg)
	waitEvent(t, client, EventBookUpdate)

	arg := wire.Arg{Channel: wire.ChannelBooks, InstID: "BTC-USDT"}
	if err := client.Unsubscribe(arg); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if _, err := client.Book("BTC-USDT"); err == nil {
		t.Error("Book should fail after unsubscribe destroyed it")
	}
}
