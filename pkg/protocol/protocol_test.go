package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hub answers every frame with reply(frame); an empty reply sends nothing.
func hub(t *testing.T, reply func(string) string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&ws.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if out := reply(string(msg)); out != "" {
				if err := conn.WriteMessage(ws.TextMessage, []byte(out)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func start(t *testing.T, url string, timeout time.Duration) *Protocol {
	t.Helper()
	ptcl, err := NewProtocol(context.Background(), PtclConfig{
		Shard:   "BLINDNAV",
		Url:     url,
		Reconn:  1,
		Timeout: timeout,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ptcl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ptcl
}

func TestTransmitReceive(t *testing.T) {
	url := hub(t, func(in string) string {
		parts := strings.Split(in, ":")
		// VERTEX:ON:TORCH:BLINDNAV -> BLINDNAV:OK:TORCH:VERTEX
		return parts[3] + ":OK:" + parts[2] + ":" + parts[0]
	})
	ptcl := start(t, url, time.Second)

	msg, err := ptcl.TransmitReceive(context.Background(), []string{"VERTEX", "ON", "TORCH"})
	require.NoError(t, err)
	assert.Equal(t, "OK", msg.Verb)
	assert.Equal(t, "TORCH", msg.Noun)
	assert.Equal(t, "VERTEX", msg.From)
}

func TestTransmitReceiveDeviceError(t *testing.T) {
	url := hub(t, func(string) string { return "BLINDNAV:ERR:BUSY:VERTEX" })
	ptcl := start(t, url, time.Second)

	msg, err := ptcl.TransmitReceive(context.Background(), "VERTEX:ON:TORCH")
	require.Error(t, err)
	assert.Equal(t, "BUSY", msg.Noun)
}

func TestTransmitReceiveTimeout(t *testing.T) {
	url := hub(t, func(string) string { return "" })
	ptcl := start(t, url, 50*time.Millisecond)

	_, err := ptcl.TransmitReceive(context.Background(), []string{"VERTEX", "ON", "TORCH"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUnsolicitedFramesEmitted(t *testing.T) {
	url := hub(t, func(in string) string {
		if strings.HasPrefix(in, "ALL:") {
			return "ALL:PING:HUB:VERTEX"
		}
		return "OTHER:OK:TORCH:VERTEX"
	})
	ptcl := start(t, url, time.Second)

	got := make(chan *Message, 1)
	ptcl.EmitOut(func(m *Message) { got <- m })

	require.NoError(t, ptcl.Transmit("OTHER:OK:TORCH"))
	require.NoError(t, ptcl.Transmit("ALL:PING:HUB"))

	select {
	case m := <-got:
		assert.Equal(t, "PING", m.Verb, "frames for other shards are filtered")
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast frame not emitted")
	}
}

func TestParse(t *testing.T) {
	p := &Protocol{shard: "BLINDNAV"}

	msg, err := p.Parse("BLINDNAV:ok:torch:1:VERTEX")
	require.NoError(t, err)
	assert.Equal(t, &Message{To: "BLINDNAV", Verb: "OK", Noun: "TORCH", Args: []string{"1"}, From: "VERTEX"}, msg)
	assert.Equal(t, "BLINDNAV:OK:TORCH:1:VERTEX", msg.String())

	for _, bad := range []string{"", "A:B:C", "A:B C:D:E", "A:B:C:$$", "A:B:!:D"} {
		_, err := p.Parse(bad)
		assert.Error(t, err, bad)
	}
}
