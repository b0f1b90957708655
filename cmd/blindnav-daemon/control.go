package main

import (
	"errors"
	"fmt"

	"blindnav/internal/coordinator"
	"blindnav/internal/ipc"
)

// control maps control socket commands onto the coordinator. The reply
// detail is the mode after the command.
func control(c *coordinator.Coordinator) ipc.Handler {
	return func(m ipc.ControlMessage) (string, error) {
		switch m.Cmd {
		case ipc.CmdDoubleTap:
			c.DoubleTap()
		case ipc.CmdLongPress:
			c.LongPress()
		case ipc.CmdMode:
			mode, err := coordinator.ParseMode(m.Arg)
			if err != nil {
				return "", err
			}
			c.SelectMode(mode)
		case ipc.CmdCapture:
			if !c.ManualCapture() {
				return "", errors.New("manual capture needs currency mode")
			}
		case ipc.CmdTotal:
			c.Total()
		case ipc.CmdReset:
			c.ResetLedger()
		case ipc.CmdUtter:
			if !c.HandleUtterance(m.Arg, true) {
				return "", fmt.Errorf("no command in %q", m.Arg)
			}
		case ipc.CmdStatus:
		default:
			return "", fmt.Errorf("unknown command %q", m.Cmd)
		}
		return c.Mode().String(), nil
	}
}
