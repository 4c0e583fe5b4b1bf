package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradedesk/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(symbol string, price int64) model.PriceEvent {
	return model.PriceEvent{
		Symbol:    symbol,
		Price:     decimal.NewFromInt(price),
		Timestamp: time.Now().UTC(),
	}
}

func waitEvent(t *testing.T, ch <-chan model.PriceEvent) model.PriceEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.PriceEvent{}
	}
}

func TestSubscription_CancelStopsDelivery(t *testing.T) {
	c := New(Config{Topic: "prices"}, testLogger())

	var got []model.PriceEvent
	sub := c.Subscribe(func(e model.PriceEvent) { got = append(got, e) })

	c.dispatch(ev("AAPL", 100))
	sub.Cancel()
	c.dispatch(ev("AAPL", 101))
	c.dispatch(ev("AAPL", 102))

	if len(got) != 1 {
		t.Fatalf("expected exactly 1 event before cancel, got %d", len(got))
	}

	// Cancel is idempotent.
	sub.Cancel()
}

func TestSubscribe_ReplaysRecentEvents(t *testing.T) {
	c := New(Config{Topic: "prices", ReplaySize: 8}, testLogger())

	c.dispatch(ev("AAPL", 100))
	c.dispatch(ev("MSFT", 400))

	var got []model.PriceEvent
	c.Subscribe(func(e model.PriceEvent) { got = append(got, e) })

	if len(got) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(got))
	}
	if got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Errorf("replay out of order: %s, %s", got[0].Symbol, got[1].Symbol)
	}
}

func TestClose_IdempotentBeforeConnect(t *testing.T) {
	c := New(Config{Topic: "prices"}, testLogger())
	c.Close()
	c.Close()

	if c.Status() != StatusDisconnected {
		t.Errorf("status: got %s, want disconnected", c.Status())
	}
}

var upgrader = websocket.Upgrader{}

// wsURL rewrites an httptest server URL to the ws scheme.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnect_WebSocketDelivery(t *testing.T) {
	serverGotTopic := make(chan string, 1)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		serverGotTopic <- sub.Topic

		conn.WriteJSON(ev("AAPL", 110))
		conn.WriteJSON(ev("MSFT", 401))
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{WSURL: wsURL(srv), Topic: "prices"}, testLogger())
	events := make(chan model.PriceEvent, 16)
	c.Subscribe(func(e model.PriceEvent) { events <- e })

	c.Connect(context.Background())
	defer c.Close()

	first := waitEvent(t, events)
	second := waitEvent(t, events)

	if first.Symbol != "AAPL" || second.Symbol != "MSFT" {
		t.Errorf("events out of delivery order: %s, %s", first.Symbol, second.Symbol)
	}
	if topic := <-serverGotTopic; topic != "prices" {
		t.Errorf("subscribed topic: got %q, want prices", topic)
	}
	if c.Status() != StatusConnected {
		t.Errorf("status: got %s, want connected", c.Status())
	}
}

func TestConnect_FallsBackToStream(t *testing.T) {
	// Refuses the websocket upgrade, forcing the downgrade path.
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusNotFound)
	}))
	defer wsSrv.Close()

	streamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("topic"); got != "prices" {
			t.Errorf("stream topic: got %q, want prices", got)
		}
		flusher := w.(http.Flusher)
		enc := json.NewEncoder(w)
		enc.Encode(ev("TSLA", 250))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer streamSrv.Close()

	c := New(Config{
		WSURL:     wsURL(wsSrv),
		StreamURL: streamSrv.URL,
		Topic:     "prices",
	}, testLogger())
	events := make(chan model.PriceEvent, 16)
	c.Subscribe(func(e model.PriceEvent) { events <- e })

	c.Connect(context.Background())
	defer c.Close()

	got := waitEvent(t, events)
	if got.Symbol != "TSLA" {
		t.Errorf("symbol: got %s, want TSLA", got.Symbol)
	}
}

func TestConnect_ReconnectsAfterDrop(t *testing.T) {
	conns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns++
		n := conns

		var sub subscribeFrame
		conn.ReadJSON(&sub)

		if n == 1 {
			// First connection: one event, then drop.
			conn.WriteJSON(ev("AAPL", 100))
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteJSON(ev("AAPL", 105))
		<-r.Context().Done()
	}))
	defer srv.Close()

	reconnects := make(chan struct{}, 8)
	c := New(Config{
		WSURL:      wsURL(srv),
		Topic:      "prices",
		RetryDelay: 20 * time.Millisecond,
	}, testLogger())
	c.OnReconnect = func() { reconnects <- struct{}{} }

	events := make(chan model.PriceEvent, 16)
	c.Subscribe(func(e model.PriceEvent) { events <- e })

	c.Connect(context.Background())
	defer c.Close()

	first := waitEvent(t, events)
	if !first.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("first price: got %s, want 100", first.Price)
	}

	select {
	case <-reconnects:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect hook never fired")
	}

	second := waitEvent(t, events)
	if !second.Price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("post-reconnect price: got %s, want 105", second.Price)
	}
}

func TestReplayBuffer_WrapAround(t *testing.T) {
	rb := newReplayBuffer(3)
	for i := int64(1); i <= 5; i++ {
		rb.Push(ev("AAPL", i))
	}

	events := rb.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(events))
	}
	for i, want := range []int64{3, 4, 5} {
		if !events[i].Price.Equal(decimal.NewFromInt(want)) {
			t.Errorf("event %d: got %s, want %d", i, events[i].Price, want)
		}
	}
}
