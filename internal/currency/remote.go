package currency

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"blindnav/internal/scratch"
	"blindnav/pkg/vlm"
)

// RemoteClassifier asks the vision model's currency profile and parses its
// "Detected: 20 Rupee" lines.
type RemoteClassifier struct {
	analyzer vlm.Analyzer
	detected *regexp.Regexp
}

func NewRemoteClassifier(a vlm.Analyzer, unit string) *RemoteClassifier {
	return &RemoteClassifier{analyzer: a, detected: detectedLine(unit)}
}

func (c *RemoteClassifier) Classify(ctx context.Context, img image.Image) (Reading, error) {
	s, err := c.analyzer.Analyze(ctx, vlm.Request{Profile: vlm.Currency, Image: img})
	if err != nil {
		return Reading{}, err
	}
	text, err := vlm.Collect(s)
	if err != nil {
		return Reading{}, fmt.Errorf("currency stream: %w", err)
	}

	r := Reading{Text: strings.TrimSpace(text)}
	if NoCurrency(text) {
		return r, nil
	}
	r.Detected = parseDetected(text, c.detected)
	return r, nil
}

// NoCurrency reports whether the model said it saw no money.
func NoCurrency(text string) bool {
	return strings.Contains(strings.ToLower(text), "no currency detected")
}

// ParseDenominations reads the "Detected: <n> <unit>" lines, one per note.
// Amounts elsewhere in the text, such as a total, are not notes.
func ParseDenominations(text, unit string) []int {
	return parseDetected(text, detectedLine(unit))
}

func detectedLine(unit string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*detected:\s*(\d+)\s+` + regexp.QuoteMeta(unit) + `s?\b`)
}

func parseDetected(text string, re *regexp.Regexp) []int {
	var out []int
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		d, err := strconv.Atoi(m[1])
		if err != nil || d <= 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ExecScorer runs an external model runner on a scratch copy of the frame.
// The runner gets the image path as its last argument and prints one score
// per label.
type ExecScorer struct {
	command []string
	scratch scratch.Provider
}

func NewExecScorer(command []string, p scratch.Provider) *ExecScorer {
	return &ExecScorer{command: command, scratch: p}
}

func (s *ExecScorer) Score(ctx context.Context, img image.Image) ([]float32, error) {
	if len(s.command) == 0 {
		return nil, fmt.Errorf("no scorer command configured")
	}

	f, err := s.scratch.Create("note-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("scratch file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(s.command))
	args = append(args, s.command[1:]...)
	args = append(args, f.Name())

	out, err := exec.CommandContext(ctx, s.command[0], args...).Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.command[0], err)
	}
	return ParseScores(out)
}
