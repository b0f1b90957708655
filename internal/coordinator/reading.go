package coordinator

import (
	"context"
	"errors"
	log "log/slog"
	"strings"

	"blindnav/internal/speech"
	"blindnav/pkg/vlm"
)

var periodicalPrefixes = []string{"book:", "news", "magazine", "newspaper"}

// ReadingSession is the text recognised since reading mode last started.
type ReadingSession struct {
	cur cursor
}

func (r *ReadingSession) Append(frag string) { r.cur.append(frag) }

func (r *ReadingSession) Text() string { return r.cur.text }

func (r *ReadingSession) Reset() { r.cur.reset() }

// Paragraphs splits the text on blank lines, dropping empty ones.
func (r *ReadingSession) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(r.cur.text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsPeriodical reports whether the text looks like a book or press page.
func (r *ReadingSession) IsPeriodical() bool {
	head := strings.ToLower(strings.TrimSpace(r.cur.text))
	for _, p := range periodicalPrefixes {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

// Title is the first line of a periodical, without a "Book:" tag.
func (r *ReadingSession) Title() string {
	if !r.IsPeriodical() {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(r.cur.text), "\n")
	line = strings.TrimSpace(line)
	if len(line) >= 5 && strings.EqualFold(line[:5], "book:") {
		line = strings.TrimSpace(line[5:])
	}
	return line
}

// Chunks is the unit of speech: paragraphs for periodicals, the whole
// text otherwise.
func (r *ReadingSession) Chunks() []string {
	if r.IsPeriodical() {
		return r.Paragraphs()
	}
	if t := strings.TrimSpace(r.cur.text); t != "" {
		return []string{t}
	}
	return nil
}

// take returns the next speakable piece: whole paragraphs for periodicals,
// whole sentences otherwise.
func (r *ReadingSession) take() string {
	if r.IsPeriodical() {
		return r.cur.takeThrough(paragraphEnd)
	}
	return r.cur.takeThrough(sentenceEnd)
}

// read captures one frame and streams the recognised text aloud.
func (c *Coordinator) read(ctx context.Context, epoch uint64) {
	img, err := c.capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("Capture failed", "mode", Reading, "epoch", epoch, "err", err)
		c.sayIfCurrent(epoch, ReadFailedMessage, speech.Flush)
		return
	}

	tk, err := c.admit(ctx, c.readLane, c.frame(img))
	if err != nil {
		return
	}
	ok := false
	defer func() { tk.Release(ok) }()

	c.sayIfCurrent(epoch, ProcessingPhrase, speech.Append)

	s, err := c.analyzer.Analyze(ctx, vlm.Request{Profile: vlm.Reading, Image: img})
	if err != nil {
		c.readFailed(ctx, epoch, err)
		return
	}
	defer s.Close()

	for s.Next() {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			log.Debug("Dropped stale fragment", "mode", Reading, "epoch", epoch)
			return
		}
		c.reading.Append(s.Current())
		if text := c.reading.take(); text != "" {
			c.speaker.Say(text, speech.Append)
		}
		c.mu.Unlock()
	}
	if err := s.Err(); err != nil {
		c.readFailed(ctx, epoch, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	if strings.TrimSpace(c.reading.Text()) == "" {
		c.speaker.Say(ReadFailedMessage, speech.Flush)
		return
	}
	if rest := c.reading.cur.takeAll(); rest != "" {
		c.speaker.Say(rest, speech.Append)
	}
	ok = true

	log.Info("Reading finished",
		"session", c.session,
		"epoch", epoch,
		"paragraphs", len(c.reading.Paragraphs()),
		"periodical", c.reading.IsPeriodical(),
		"title", c.reading.Title(),
	)
	c.publishLocked()
}

func (c *Coordinator) readFailed(ctx context.Context, epoch uint64, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	log.Warn("Reading inference failed", "epoch", epoch, "err", err)
	c.sayIfCurrent(epoch, ReadFailedMessage, speech.Flush)
}

// rereadLocked speaks the session again from the start.
func (c *Coordinator) rereadLocked() {
	c.speaker.Stop()
	c.speaker.Say(RereadPhrase, speech.Flush)
	for _, chunk := range c.reading.Chunks() {
		c.speaker.Say(chunk, speech.Append)
	}
	c.reading.cur.spoken = len(c.reading.cur.text)
}
