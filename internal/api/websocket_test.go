package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradepipe/internal/events"

	"github.com/gorilla/websocket"
)

func TestWebsocketStreamsBusEvents(t *testing.T) {
	f := newAPIFixture(t)

	srv := httptest.NewServer(f.server.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		defer resp.Body.Close()
	}

	// Give the handler a moment to register its subscriptions.
	time.Sleep(50 * time.Millisecond)
	f.server.Bus.Publish(events.EventSignal, events.SignalPayload{
		Symbol:     "BTC-USD",
		Strategy:   "green",
		SignalType: "enter",
		Price:      101,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Event   string `json:"event"`
		Payload struct {
			Symbol     string  `json:"Symbol"`
			SignalType string  `json:"SignalType"`
			Price      float64 `json:"Price"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	if env.Event != string(events.EventSignal) {
		t.Fatalf("event = %q, want %q", env.Event, events.EventSignal)
	}
	if env.Payload.Symbol != "BTC-USD" || env.Payload.Price != 101 {
		t.Fatalf("payload = %+v", env.Payload)
	}
}
