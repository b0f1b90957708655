package vlm

import (
	"regexp"
	"strings"
)

var (
	fillers = regexp.MustCompile(`(?i)\b(I notice|in the image|in the frame|visible)\b`)
	iCanSee = regexp.MustCompile(`(?i)\bI can see\b`)
	spaces  = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean strips camera-centric filler from navigation narration so it reads
// as a statement about the world.
func Clean(s string) string {
	s = iCanSee.ReplaceAllString(s, "There is")
	s = fillers.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ,", ",")
	return s
}
