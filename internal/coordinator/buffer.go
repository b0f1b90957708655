package coordinator

import (
	"strings"
	"time"
)

// cursor is accumulated text plus the offset up to which it was spoken.
// spoken never exceeds len(text).
type cursor struct {
	text   string
	spoken int
}

func (c *cursor) append(frag string) {
	c.text += frag
}

// takeThrough returns the unspoken text up to and including the last
// boundary found by last, and marks it spoken.
func (c *cursor) takeThrough(last func(string) int) string {
	rest := c.text[c.spoken:]
	i := last(rest)
	if i < 0 {
		return ""
	}
	c.spoken += i
	return strings.TrimSpace(rest[:i])
}

func (c *cursor) takeAll() string {
	rest := c.text[c.spoken:]
	c.spoken = len(c.text)
	return strings.TrimSpace(rest)
}

func (c *cursor) reset() {
	c.text = ""
	c.spoken = 0
}

// sentenceEnd returns the offset just past the last sentence terminator.
func sentenceEnd(s string) int {
	i := strings.LastIndexAny(s, ".!?\n")
	if i < 0 {
		return -1
	}
	return i + 1
}

// paragraphEnd returns the offset just past the last blank-line separator.
func paragraphEnd(s string) int {
	i := strings.LastIndex(s, "\n\n")
	if i < 0 {
		return -1
	}
	return i + 2
}

// AnalysisBuffer accumulates narration for the navigation session.
type AnalysisBuffer struct {
	cur     cursor
	updated time.Time
}

// Append adds a streamed fragment.
func (b *AnalysisBuffer) Append(frag string, now time.Time) {
	b.cur.append(frag)
	b.updated = now
}

// Break separates the next response from the previous one.
func (b *AnalysisBuffer) Break() {
	if b.cur.text != "" && !strings.HasSuffix(b.cur.text, " ") && !strings.HasSuffix(b.cur.text, "\n") {
		b.cur.append(" ")
	}
}

// TakeSentences returns the complete sentences not yet spoken.
func (b *AnalysisBuffer) TakeSentences() string { return b.cur.takeThrough(sentenceEnd) }

// TakeAll returns everything not yet spoken.
func (b *AnalysisBuffer) TakeAll() string { return b.cur.takeAll() }

func (b *AnalysisBuffer) Text() string { return b.cur.text }

func (b *AnalysisBuffer) Spoken() int { return b.cur.spoken }

func (b *AnalysisBuffer) Len() int { return len(b.cur.text) }

// Stale reports whether the buffer holds text that was last updated more
// than maxAge before now.
func (b *AnalysisBuffer) Stale(now time.Time, maxAge time.Duration) bool {
	return b.cur.text != "" && now.Sub(b.updated) > maxAge
}

func (b *AnalysisBuffer) Clear() {
	b.cur.reset()
	b.updated = time.Time{}
}

// history keeps the last few narration snapshots, oldest first.
type history struct {
	max   int
	items []string
}

func (h *history) push(s string) {
	s = strings.TrimSpace(s)
	if s == "" || h.max <= 0 {
		return
	}
	h.items = append(h.items, s)
	if len(h.items) > h.max {
		h.items = h.items[len(h.items)-h.max:]
	}
}

func (h *history) snapshots() []string {
	return append([]string(nil), h.items...)
}
