package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Earcon plays a short mp3 cue, e.g. the start-up chime.
type Earcon struct {
	path string

	once    sync.Once
	initErr error
}

func NewEarcon(path string) *Earcon {
	return &Earcon{path: path}
}

// Play blocks until the cue has finished or ctx is done.
func (e *Earcon) Play(ctx context.Context) error {
	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("open earcon: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode earcon: %w", err)
	}
	defer streamer.Close()

	e.once.Do(func() {
		e.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if e.initErr != nil {
		return fmt.Errorf("speaker init: %w", e.initErr)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
