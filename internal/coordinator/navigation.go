package coordinator

import (
	"context"
	"errors"
	"image"
	log "log/slog"
	"strings"
	"time"

	"blindnav/internal/flashlight"
	"blindnav/internal/pipeline"
	"blindnav/internal/speech"
	"blindnav/pkg/vlm"
)

// frameLoop keeps the camera running in Navigation and Assistant.
func (c *Coordinator) frameLoop(ctx context.Context) {
	t := time.NewTicker(c.opts.NavigationCadence)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		img, err := c.capture(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("Capture failed", "err", err)
			}
			continue
		}
		c.OnFrame(img)
	}
}

// OnFrame takes one camera frame. It feeds the brightness sampler and, in
// Navigation, forwards the frame to inference when the lane admits it.
func (c *Coordinator) OnFrame(img image.Image) {
	c.mu.Lock()
	root, mode := c.root, c.mode
	c.mu.Unlock()
	if mode != Navigation && mode != Assistant {
		return
	}

	c.announceFlash(c.flash.Observe(root, flashlight.Brightness(img)))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != Navigation && c.mode != Assistant {
		return
	}
	f := c.frame(img)
	if c.mode != Navigation {
		// kept as context for the next question
		c.navLane.Keep(f)
		return
	}

	if c.analysis.Stale(f.At, c.opts.AnalysisStaleness) {
		log.Debug("Analysis expired", "session", c.session, "len", c.analysis.Len())
		c.analysis.Clear()
	}
	if !c.online {
		c.navLane.Keep(f)
		return
	}

	tk, err := c.navLane.Admit(f)
	if err != nil {
		log.Debug("Frame dropped", "lane", c.navLane.Name(), "seq", f.Seq, "reason", err)
		return
	}

	ctx, epoch := c.modeCtx, c.epoch
	c.goLocked(func() { c.narrate(ctx, epoch, tk, f) })
}

// narrate streams one navigation description into the analysis buffer and
// speaks it sentence by sentence. The first sentence supersedes whatever is
// still playing; later ones queue unless they carry hazard language.
func (c *Coordinator) narrate(ctx context.Context, epoch uint64, tk *pipeline.Ticket, f pipeline.Frame) {
	ok := false
	defer func() { tk.Release(ok) }()

	s, err := c.analyzer.Analyze(ctx, vlm.Request{Profile: vlm.Navigation, Image: f.Image})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Navigation inference failed", "epoch", epoch, "seq", f.Seq, "err", err)
		}
		return
	}
	defer s.Close()

	var resp strings.Builder
	first := true

	c.mu.Lock()
	c.analysis.Break()
	c.mu.Unlock()

	for s.Next() {
		frag := s.Current()

		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			log.Debug("Dropped stale fragment", "mode", Navigation, "epoch", epoch)
			return
		}
		c.analysis.Append(frag, c.now())
		resp.WriteString(frag)
		text := c.speakNarrationLocked(c.analysis.TakeSentences(), &first)
		c.mu.Unlock()

		c.darknessHint(text)
	}
	if err := s.Err(); err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			log.Warn("Navigation stream failed", "epoch", epoch, "seq", f.Seq, "err", err)
		}
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	text := c.speakNarrationLocked(c.analysis.TakeAll(), &first)
	c.history.push(vlm.Clean(resp.String()))
	c.publishLocked()
	c.mu.Unlock()

	c.darknessHint(text)
	ok = true
}

// speakNarrationLocked cleans and voices text. It returns the cleaned text.
func (c *Coordinator) speakNarrationLocked(text string, first *bool) string {
	text = strings.TrimSpace(vlm.Clean(text))
	if text == "" || !c.online {
		return text
	}

	p := speech.Append
	switch {
	case isPriority(text):
		p = speech.Alert
	case *first:
		p = speech.Flush
	}
	*first = false
	c.speaker.Say(text, p)
	return text
}

func (c *Coordinator) darknessHint(text string) {
	if text == "" || !mentionsDarkness(text) {
		return
	}
	c.announceFlash(c.flash.Hint(c.rootCtx()))
}

// Ask sends a free-text question to the assistant with the narration
// context. Only one question is in flight at a time.
func (c *Coordinator) Ask(question string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.mode != Assistant {
		return
	}
	if !c.online {
		c.speaker.Say(OfflineMessage, speech.Flush)
		return
	}

	f, _ := c.navLane.Latest()
	tk, err := c.assistLane.Admit(f)
	if err != nil {
		log.Debug("Query dropped", "session", c.session, "reason", err)
		return
	}

	req := vlm.Request{
		Profile: vlm.Assistant,
		Image:   f.Image,
		Query:   question,
		Current: c.analysis.Text(),
		History: c.history.snapshots(),
	}
	c.chat.Break()
	c.chat.Append(question+"\n", c.now())
	c.chat.TakeAll()

	ctx, epoch := c.modeCtx, c.epoch
	c.goLocked(func() { c.answer(ctx, epoch, tk, req) })
}

func (c *Coordinator) answer(ctx context.Context, epoch uint64, tk *pipeline.Ticket, req vlm.Request) {
	ok := false
	defer func() { tk.Release(ok) }()

	if req.Image == nil {
		if img, err := c.capture(ctx); err == nil {
			req.Image = img
		} else if ctx.Err() == nil {
			log.Debug("No frame for query", "err", err)
		}
	}

	s, err := c.analyzer.Analyze(ctx, req)
	if err != nil {
		c.answerFailed(ctx, epoch, err)
		return
	}
	defer s.Close()

	first := true
	spoke := false
	for s.Next() {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			log.Debug("Dropped stale fragment", "mode", Assistant, "epoch", epoch)
			return
		}
		c.chat.Append(s.Current(), c.now())
		if text := c.chat.TakeSentences(); text != "" {
			c.speaker.Say(text, answerPolicy(&first))
			spoke = true
		}
		c.mu.Unlock()
	}
	if err := s.Err(); err != nil {
		c.answerFailed(ctx, epoch, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	if text := c.chat.TakeAll(); text != "" {
		c.speaker.Say(text, answerPolicy(&first))
		spoke = true
	}
	if !spoke {
		c.speaker.Say(AssistantEmptyMessage, speech.Flush)
		return
	}
	c.publishLocked()
	ok = true
}

func answerPolicy(first *bool) speech.Policy {
	if *first {
		*first = false
		return speech.Flush
	}
	return speech.Append
}

func (c *Coordinator) answerFailed(ctx context.Context, epoch uint64, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	log.Warn("Assistant inference failed", "epoch", epoch, "err", err)
	c.sayIfCurrent(epoch, AssistantErrorMessage, speech.Flush)
}
