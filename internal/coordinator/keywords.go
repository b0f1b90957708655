package coordinator

import "strings"

var (
	priorityWords = []string{"turn", "stop", "proceed", "careful", "watch out", "caution"}
	darknessWords = []string{"dark", "dim", "poor visibility", "poor light", "difficult to see", "low light"}
)

// isPriority reports directional or hazard language that must not wait
// behind other narration.
func isPriority(s string) bool {
	return mentions(s, priorityWords)
}

func mentionsDarkness(s string) bool {
	return mentions(s, darknessWords)
}

func mentions(s string, words []string) bool {
	s = strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
