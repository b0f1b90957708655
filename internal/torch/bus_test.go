package torch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindnav/pkg/protocol"
)

type fakeBus struct {
	sent  [][]string
	reply *protocol.Message
	err   error
}

func (b *fakeBus) TransmitReceive(_ context.Context, v any) (*protocol.Message, error) {
	b.sent = append(b.sent, v.([]string))
	return b.reply, b.err
}

func TestSetTorch(t *testing.T) {
	bus := &fakeBus{reply: &protocol.Message{To: "BLINDNAV", Verb: "OK", Noun: "TORCH", From: "VERTEX"}}
	tr := NewBusTorch(bus, "VERTEX")

	require.NoError(t, tr.SetTorch(context.Background(), true))
	require.NoError(t, tr.SetTorch(context.Background(), false))
	assert.Equal(t, [][]string{{"VERTEX", "ON", "TORCH"}, {"VERTEX", "OFF", "TORCH"}}, bus.sent)
}

func TestSetTorchFailures(t *testing.T) {
	bus := &fakeBus{err: protocol.ErrTimeout}
	err := NewBusTorch(bus, "VERTEX").SetTorch(context.Background(), true)
	assert.ErrorIs(t, err, protocol.ErrTimeout)

	bus = &fakeBus{reply: &protocol.Message{Verb: "PING", Noun: "HUB"}}
	err = NewBusTorch(bus, "VERTEX").SetTorch(context.Background(), true)
	assert.Error(t, err)

	assert.NoError(t, Null{}.SetTorch(context.Background(), true))
}
