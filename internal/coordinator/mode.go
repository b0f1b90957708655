package coordinator

import (
	"fmt"
	"strings"
)

type Mode int

const (
	Navigation Mode = iota
	Assistant
	Reading
	Currency
)

func (m Mode) String() string {
	switch m {
	case Navigation:
		return "navigation"
	case Assistant:
		return "assistant"
	case Reading:
		return "reading"
	case Currency:
		return "currency"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names printed by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "navigation", "nav":
		return Navigation, nil
	case "assistant", "chat":
		return Assistant, nil
	case "reading", "read":
		return Reading, nil
	case "currency", "money":
		return Currency, nil
	}
	return Navigation, fmt.Errorf("unknown mode %q", s)
}
