package currency

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var ErrNoLabels = errors.New("no labels loaded")

type Prediction struct {
	Label      string
	Confidence float32
}

// Reading is the interpretation of one frame.
type Reading struct {
	// Detected holds confidently recognised denominations, one entry per note.
	Detected []int
	// Possible holds low-confidence guesses worth mentioning.
	Possible []int
	// Text is the raw model output when the reading came from a text model.
	Text string
}

func (r Reading) Empty() bool { return len(r.Detected) == 0 && len(r.Possible) == 0 }

// Classifier turns a frame into a Reading.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Reading, error)
}

// Scorer runs the note model and returns one score per label.
type Scorer interface {
	Score(ctx context.Context, img image.Image) ([]float32, error)
}

// Thresholds split predictions into detected and possible notes. A score
// must be strictly greater than a threshold to pass it.
type Thresholds struct {
	Confident float32
	Possible  float32
}

// LoadLabels reads one label per line. Blank lines are skipped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	return labels, nil
}

// LabelClassifier maps the scores of an on-device model to denominations.
type LabelClassifier struct {
	scorer Scorer
	labels []string
	th     Thresholds
}

func NewLabelClassifier(s Scorer, labels []string, th Thresholds) (*LabelClassifier, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	return &LabelClassifier{scorer: s, labels: labels, th: th}, nil
}

func (c *LabelClassifier) Classify(ctx context.Context, img image.Image) (Reading, error) {
	scores, err := c.scorer.Score(ctx, img)
	if err != nil {
		return Reading{}, fmt.Errorf("score: %w", err)
	}

	preds := make([]Prediction, 0, len(scores))
	for i, s := range scores {
		if i >= len(c.labels) {
			break
		}
		preds = append(preds, Prediction{Label: c.labels[i], Confidence: s})
	}
	return Interpret(preds, c.th), nil
}

// Interpret applies the thresholds. The "none" label and labels that are
// not a number are ignored. Results are ordered by confidence.
func Interpret(preds []Prediction, th Thresholds) Reading {
	kept := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if strings.EqualFold(p.Label, "none") || p.Confidence <= th.Possible {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })

	var r Reading
	for _, p := range kept {
		d, err := strconv.Atoi(strings.TrimSpace(p.Label))
		if err != nil || d <= 0 {
			continue
		}
		if p.Confidence > th.Confident {
			r.Detected = append(r.Detected, d)
		} else {
			r.Possible = append(r.Possible, d)
		}
	}
	return r
}

// PossibleMessage is spoken when only low-confidence guesses exist.
func PossibleMessage(r Reading, unit string) string {
	if len(r.Possible) == 0 {
		return ""
	}
	parts := make([]string, len(r.Possible))
	for i, d := range r.Possible {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("Possibly %s %s note. Try again with better lighting.", strings.Join(parts, ", "), unit)
}

// ParseScores reads whitespace or comma separated floats, as printed by an
// external model runner.
func ParseScores(out []byte) ([]float32, error) {
	fields := strings.FieldsFunc(string(bytes.TrimSpace(out)), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	scores := make([]float32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("parse score %q: %w", f, err)
		}
		scores = append(scores, float32(v))
	}
	return scores, nil
}
