package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Recorder captures one utterance at a time from the default input device.
type Recorder struct {
	SampleRate int
	// Lead is how long to wait for speech to begin.
	Lead time.Duration
	// Tail is the silence that ends an utterance.
	Tail time.Duration
	// Max caps the utterance length.
	Max time.Duration
	// Threshold is the RMS level treated as speech.
	Threshold float64
}

func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{
		SampleRate: sampleRate,
		Lead:       5 * time.Second,
		Tail:       600 * time.Millisecond,
		Max:        10 * time.Second,
		Threshold:  0.015,
	}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto returns the samples of one utterance, mono float32 in [-1, 1].
// It returns no samples when nobody spoke within Lead.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	frameSize := r.SampleRate / 50 // 20ms
	buf := make([]float32, frameSize)
	out := make([]float32, 0, r.SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silenceFrames int
	)

	frame := 20 * time.Millisecond
	leadFrames := int(r.Lead / frame)
	tailFrames := int(r.Tail / frame)
	maxFrames := int(r.Max / frame)

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}

		if frameRMS(buf) > r.Threshold {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}

		if !speaking {
			if i >= leadFrames {
				return nil, nil
			}
			continue
		}

		silenceFrames++
		if silenceFrames >= tailFrames {
			break
		}
		out = append(out, buf...)
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
