package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

var ErrTimeout = errors.New("no reply from device")

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  uint
	Timeout time.Duration
	EmitOut func(*Message)
}

// Protocol speaks TO:VERB:NOUN[:ARGS...]:FROM frames over a websocket hub.
// One request may wait for a reply at a time.
type Protocol struct {
	ws *WebSocket

	shard   string
	timeout time.Duration

	reqMu    sync.Mutex
	waiterMu sync.Mutex
	waiter   chan *Message

	emitOut func(*Message)
}

func NewProtocol(ctx context.Context, cfg PtclConfig) (*Protocol, error) {
	ws, err := NewWebSocket(ctx, cfg.Url, cfg.Reconn, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Url, err)
	}

	return &Protocol{
		shard:   cfg.Shard,
		timeout: cfg.Timeout,
		ws:      ws,
		emitOut: cfg.EmitOut,
	}, nil
}

// EmitOut sets the handler for frames nobody is waiting for.
func (ptcl *Protocol) EmitOut(f func(*Message)) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.emitOut = f
}

// TransmitReceive sends v and waits for the next frame addressed to this
// shard, up to the configured timeout.
func (ptcl *Protocol) TransmitReceive(ctx context.Context, v any) (*Message, error) {
	ptcl.reqMu.Lock()
	defer ptcl.reqMu.Unlock()

	w := ptcl.installWaiter()
	defer ptcl.clearWaiter()

	if err := ptcl.Transmit(v); err != nil {
		return nil, err
	}

	if ptcl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ptcl.timeout)
		defer cancel()
	}

	select {
	case msg := <-w:
		if msg.Verb == "ERR" {
			return msg, fmt.Errorf("device error: %s", msg.Noun)
		}
		return msg, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (ptcl *Protocol) Transmit(v any) error {
	var msg string

	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		msg = m.String()
	case string:
		msg = fmt.Sprintf("%s:%s", m, ptcl.shard)
	case []string:
		pay := strings.Join(m, ":")
		msg = fmt.Sprintf("%s:%s", pay, ptcl.shard)
	default:
		return fmt.Errorf("unsupported message type %T", v)
	}

	err := ptcl.ws.Write([]byte(msg))
	if err != nil {
		log.Error("Failed to transmit", "msg", msg, "err", err)
	}
	return err
}

// Run reads frames until ctx is done, reconnecting when the hub drops.
func (ptcl *Protocol) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ptcl.ws.Close()
	}()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch in.kind {
		case CONN_CLOSE:
			log.Warn("Trying to reconnect", "url", ptcl.ws.url)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return err
			}
			log.Info("Successfully reconnected")

		case READ_FAILURE:
			log.Error("Failed to read", "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return err
			}

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := ptcl.Parse(string(in.msg))
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}

			if emit := ptcl.deliver(msg); emit != nil {
				emit(msg)
			}
		}
	}
}

func (ptcl *Protocol) installWaiter() chan *Message {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = make(chan *Message, 1)
	return ptcl.waiter
}

func (ptcl *Protocol) clearWaiter() {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = nil
}

// deliver hands msg to a pending request. If there is none it returns the
// handler for unsolicited frames.
func (ptcl *Protocol) deliver(msg *Message) func(*Message) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()

	if ptcl.waiter != nil {
		select {
		case ptcl.waiter <- msg:
			ptcl.waiter = nil
			return nil
		default:
		}
	}
	return ptcl.emitOut
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to := strings.Split(string(msg), ":")[0]
	return to == ptcl.shard || to == "ALL"
}

func (ptcl *Protocol) Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}

	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	return &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}
