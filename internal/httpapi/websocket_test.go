package httpapi

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/broker"
)

func TestHubBroadcastDeliversToRegisteredClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := &wsClient{send: make(chan wsFrame, 1)}

	hub.register(client)
	hub.Broadcast("signal", map[string]string{"pair": "EURUSD"})

	frame := <-client.send
	require.Equal(t, "signal", frame.Type)
}

func TestHubBroadcastDropsFrameForFullClientBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := &wsClient{send: make(chan wsFrame)} // unbuffered, nobody reading

	hub.register(client)

	done := make(chan struct{})
	go func() {
		hub.Broadcast("signal", nil)
		close(done)
	}()
	<-done // must not block even though nothing drains client.send
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := &wsClient{send: make(chan wsFrame, 1)}

	hub.register(client)
	hub.unregister(client)

	_, open := <-client.send
	require.False(t, open)
}

func TestHubEmitForwardsBrokerEventAsFrame(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := &wsClient{send: make(chan wsFrame, 1)}
	hub.register(client)

	hub.Emit(broker.Event{Type: "trade_opened", Broker: "oanda", TradeID: "t1"})

	frame := <-client.send
	require.Equal(t, "trade_opened", frame.Type)
}
