// Package currency counts paper notes seen by the camera across frames.
package currency

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	ResetMessage    = "Currency tracking reset. Ready to detect new notes."
	EmptyMessage    = "No currency notes have been detected yet."
	GuidanceMessage = "No currency detected. Please point your camera at a currency note and hold steady."
)

// Ledger is the list of notes counted this session, in detection order.
type Ledger struct {
	unit string

	mu    sync.Mutex
	notes []int
}

func NewLedger(unit string) *Ledger {
	return &Ledger{unit: unit}
}

// Record takes the denominations seen in one frame and appends, per
// denomination, only the excess over what the ledger already holds.
// It returns the notes that were appended.
func (l *Ledger) Record(frame []int) []int {
	seen := counts(frame)

	l.mu.Lock()
	defer l.mu.Unlock()

	have := counts(l.notes)

	var added []int
	for _, d := range sortedKeys(seen) {
		if d <= 0 {
			continue
		}
		for i := have[d]; i < seen[d]; i++ {
			added = append(added, d)
		}
	}
	l.notes = append(l.notes, added...)
	return added
}

func (l *Ledger) Notes() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.notes...)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.notes)
}

func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sum(l.notes)
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = nil
}

// Announcement describes freshly added notes and the running total.
func (l *Ledger) Announcement(added []int) string {
	if len(added) == 0 {
		return ""
	}

	l.mu.Lock()
	n, total := len(l.notes), sum(l.notes)
	l.mu.Unlock()

	var head string
	if len(added) == 1 {
		head = fmt.Sprintf("Detected new %d %s note", added[0], l.unit)
	} else {
		head = "Detected new notes: " + l.breakdown(added, func(count, d int) string {
			if count == 1 {
				return fmt.Sprintf("one %d %s note", d, l.unit)
			}
			return fmt.Sprintf("%d %d %s notes", count, d, l.unit)
		})
	}

	return fmt.Sprintf("%s. You now have %d notes worth a total of %d %ss.", head, n, total, l.unit)
}

// Report speaks the whole ledger.
func (l *Ledger) Report() string {
	notes := l.Notes()
	switch len(notes) {
	case 0:
		return EmptyMessage
	case 1:
		return fmt.Sprintf("You have one %d %s note. Total is %d %ss.", notes[0], l.unit, notes[0], l.unit)
	}

	list := l.breakdown(notes, func(count, d int) string {
		return fmt.Sprintf("%d × %d", count, d)
	})
	return fmt.Sprintf("You have %s. That's %d notes with a total value of %d %ss.", list, len(notes), sum(notes), l.unit)
}

// breakdown groups notes by denomination, highest first.
func (l *Ledger) breakdown(notes []int, item func(count, d int) string) string {
	c := counts(notes)
	keys := sortedKeys(c)
	parts := make([]string, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		parts = append(parts, item(c[keys[i]], keys[i]))
	}
	return strings.Join(parts, ", ")
}

func counts(notes []int) map[int]int {
	m := make(map[int]int, len(notes))
	for _, d := range notes {
		m[d]++
	}
	return m
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sum(notes []int) int {
	t := 0
	for _, d := range notes {
		t += d
	}
	return t
}
