package feed

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

	"solana-holder-ledger/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func next(t *testing.T, events <-chan domain.FeedEvent) domain.FeedEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

// nextNonState skips connection state events.
func nextNonState(t *testing.T, events <-chan domain.FeedEvent) domain.FeedEvent {
	t.Helper()
	for {
		ev := next(t, events)
		if _, ok := ev.(domain.ConnectionStateEvent); !ok {
			return ev
		}
	}
}

func readSubscriptions(t *testing.T, c *websocket.Conn, n int) []subscribeRequest {
	t.Helper()
	var reqs []subscribeRequest
	for i := 0; i < n; i++ {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return reqs
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return reqs
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func TestStreamClient_SubscribesAndDeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var got []subscribeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		reqs := readSubscriptions(t, c, 3)
		mu.Lock()
		got = reqs
		mu.Unlock()

		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"launch","data":{"tokenAddress":"Mint1","symbol":"ABC"}}`))
		c.WriteMessage(websocket.TextMessage, []byte(`not json`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"transaction","data":{"signature":"sig1","tokenAddress":"Mint1","walletAddress":"W1","type":"buy","amount":"5","pricePerToken":1,"blockTime":100,"slot":1}}`))
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"graduation","data":{"tokenAddress":"Mint1","blockTime":200}}`))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewStreamClient(StreamConfig{
		URL:        wsURL(server),
		Tokens:     []string{"Mint1", "Mint2"},
		NewTokens:  true,
		Migrations: true,
	})
	defer client.Close()

	events, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if st, ok := next(t, events).(domain.ConnectionStateEvent); !ok || st.State != domain.ConnectionConnecting {
		t.Fatalf("expected connecting state first")
	}
	if st, ok := next(t, events).(domain.ConnectionStateEvent); !ok || st.State != domain.ConnectionConnected {
		t.Fatalf("expected connected state second")
	}

	if _, ok := nextNonState(t, events).(domain.LaunchEvent); !ok {
		t.Error("expected launch event")
	}
	tr, ok := nextNonState(t, events).(domain.TradeEvent)
	if !ok {
		t.Fatal("expected trade event after skipping malformed message")
	}
	if tr.Signature != "sig1" || tr.Amount.String() != "5" {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if _, ok := nextNonState(t, events).(domain.GraduationEvent); !ok {
		t.Error("expected graduation event")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected 3 subscribe requests, got %d", len(got))
	}
	if got[0].Method != methodSubscribeTokenTrade || len(got[0].Keys) != 2 {
		t.Errorf("unexpected trade subscription: %+v", got[0])
	}
	if got[1].Method != methodSubscribeNewToken || got[2].Method != methodSubscribeMigration {
		t.Errorf("unexpected subscriptions: %+v", got)
	}
}

func TestStreamClient_ReconnectsAndResubscribes(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		reqs := readSubscriptions(t, c, 1)
		if len(reqs) != 1 || reqs[0].Method != methodSubscribeTokenTrade {
			t.Errorf("connection %d: expected token trade subscription, got %+v", n, reqs)
		}

		if n == 1 {
			// Drop the first connection.
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"transaction","data":{"signature":"after-reconnect"}}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewStreamClient(StreamConfig{
		URL:               wsURL(server),
		Tokens:            []string{"Mint1"},
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
	})
	defer client.Close()

	events, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sawDisconnect := false
	for {
		ev := next(t, events)
		if st, ok := ev.(domain.ConnectionStateEvent); ok {
			if st.State == domain.ConnectionDisconnected {
				sawDisconnect = true
			}
			continue
		}
		tr, ok := ev.(domain.TradeEvent)
		if !ok || tr.Signature != "after-reconnect" {
			t.Fatalf("unexpected event %#v", ev)
		}
		break
	}
	if !sawDisconnect {
		t.Error("expected a disconnected state event before reconnecting")
	}

	mu.Lock()
	defer mu.Unlock()
	if connections < 2 {
		t.Errorf("expected at least 2 connections, got %d", connections)
	}
}

func TestStreamClient_CloseEndsChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewStreamClient(StreamConfig{URL: wsURL(server)})
	events, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	next(t, events) // connecting
	next(t, events) // connected

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Close")
		}
	}
}

func TestStreamClient_SubscribeTwice(t *testing.T) {
	client := NewStreamClient(StreamConfig{URL: "ws://127.0.0.1:1"})
	defer client.Close()

	if _, err := client.Subscribe(context.Background()); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if _, err := client.Subscribe(context.Background()); err == nil {
		t.Error("expected error on second Subscribe")
	}
}
