// Package ipc is the local control socket used by blindnav-ctl to deliver
// gestures and menu selections to the daemon.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const SocketPath = "/tmp/blindnav.sock"

const (
	CmdDoubleTap = "double-tap"
	CmdLongPress = "long-press"
	CmdMode      = "mode"
	CmdCapture   = "capture"
	CmdTotal     = "total"
	CmdReset     = "reset"
	CmdUtter     = "utter"
	CmdStatus    = "status"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler executes one command and returns a short detail for the caller.
type Handler func(ControlMessage) (string, error)

// Serve accepts connections on path until ctx is done. Each connection
// carries one message and gets one reply.
func Serve(ctx context.Context, path string, h Handler) error {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("Accept failed", "err", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(conn, h)
		}()
	}
}

func handleConn(conn net.Conn, h Handler) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("Bad control message", "err", err)
		return
	}

	log.Debug("Control message", "cmd", msg.Cmd, "arg", msg.Arg)

	var reply Reply
	detail, err := h(msg)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.OK = true
		reply.Detail = detail
	}
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Failed to reply", "err", err)
	}
}

// Send delivers msg to the daemon listening on path and waits for its reply.
func Send(path string, msg ControlMessage) (Reply, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
