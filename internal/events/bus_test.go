package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	sigs, unsub := bus.Subscribe(EventSignal, 4)
	defer unsub()
	bars, unsubBars := bus.Subscribe(EventBar, 4)
	defer unsubBars()

	bus.Publish(EventSignal, SignalPayload{Symbol: "BTC-USD", SignalType: "enter", Price: 100})

	select {
	case msg := <-sigs:
		sig, ok := msg.(SignalPayload)
		if !ok || sig.Price != 100 {
			t.Fatalf("got %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}

	// Topics are isolated.
	select {
	case msg := <-bars:
		t.Fatalf("bar subscriber received %#v", msg)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventTradeClosed, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventTradeClosed, TradePayload{TradeID: "t1"})
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventBar, 1)
	defer unsub()

	bus.Publish(EventBar, BarPayload{Close: 1})
	bus.Publish(EventBar, BarPayload{Close: 2})

	first := (<-ch).(BarPayload)
	if first.Close != 1 {
		t.Fatalf("first message close = %v", first.Close)
	}
	select {
	case msg := <-ch:
		t.Fatalf("overflow message delivered: %#v", msg)
	default:
	}
}
