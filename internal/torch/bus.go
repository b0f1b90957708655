// Package torch switches the camera torch over the device bus.
package torch

import (
	"context"
	"fmt"
	log "log/slog"

	"blindnav/pkg/protocol"
)

type Transceiver interface {
	TransmitReceive(ctx context.Context, v any) (*protocol.Message, error)
}

// BusTorch sends DEVICE:ON:TORCH / DEVICE:OFF:TORCH and expects an OK reply.
type BusTorch struct {
	bus    Transceiver
	device string
}

func NewBusTorch(bus Transceiver, device string) *BusTorch {
	return &BusTorch{bus: bus, device: device}
}

func (t *BusTorch) SetTorch(ctx context.Context, on bool) error {
	verb := "OFF"
	if on {
		verb = "ON"
	}

	msg, err := t.bus.TransmitReceive(ctx, []string{t.device, verb, "TORCH"})
	if err != nil {
		return fmt.Errorf("torch %s: %w", verb, err)
	}
	if msg.Verb != "OK" {
		return fmt.Errorf("torch %s: unexpected reply %s", verb, msg.String())
	}

	log.Debug("Torch switched", "on", on, "device", t.device)
	return nil
}

// Null is used when no torch is attached.
type Null struct{}

func (Null) SetTorch(context.Context, bool) error { return nil }
