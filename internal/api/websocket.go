package api

import (
	"log"
	"net/http"
	"sync"

	"tradepipe/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents is the set of bus topics mirrored to websocket clients.
var streamedEvents = []events.Event{
	events.EventBar,
	events.EventSignal,
	events.EventOrderSubmitted,
	events.EventOrderFilled,
	events.EventOrderRejected,
	events.EventOrderCancelled,
	events.EventRiskAlert,
	events.EventTradeOpened,
	events.EventTradeClosed,
	events.EventBacktestDone,
}

type wsEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsEnvelope, 256)
	stop := make(chan struct{})
	gone := make(chan struct{})
	var wg sync.WaitGroup

	for _, topic := range streamedEvents {
		stream, unsub := s.Bus.Subscribe(topic, 64)
		defer unsub()

		wg.Add(1)
		go func(topic events.Event, stream <-chan any) {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- wsEnvelope{Event: string(topic), Payload: msg}:
					case <-stop:
						return
					}
				case <-stop:
					return
				}
			}
		}(topic, stream)
	}

	// Read pump: drains control frames and detects client disconnect.
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer wg.Wait()
	defer close(stop)
	for {
		select {
		case env := <-merged:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-gone:
			return
		}
	}
}
