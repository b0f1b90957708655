// Package recognizer turns local audio capture and whisper transcription into
// a voice.Recognizer.
package recognizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"blindnav/internal/voice"
	"blindnav/pkg/stt"
)

type Capturer interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm []float32, opt stt.Options) (stt.Result, error)
}

// Whisper records one utterance per session and transcribes it
// locally. Whisper has no partial results, so every transcript is final.
type Whisper struct {
	mic  Capturer
	stt  Transcriber
	opts stt.Options
}

func NewWhisper(mic Capturer, t Transcriber, opts stt.Options) *Whisper {
	return &Whisper{mic: mic, stt: t, opts: opts}
}

// whisper marks silence and noise as "[BLANK_AUDIO]", "(music)" and such.
var nonSpeech = regexp.MustCompile(`[\[(][^\])]*[\])]`)

func (w *Whisper) Listen(ctx context.Context) (<-chan voice.Transcript, error) {
	out := make(chan voice.Transcript, 1)

	go func() {
		defer close(out)
		out <- w.listenOnce(ctx)
	}()

	return out, nil
}

func (w *Whisper) listenOnce(ctx context.Context) voice.Transcript {
	pcm, err := w.mic.RecordAuto(ctx)
	if err != nil {
		return voice.Transcript{Err: fmt.Errorf("record: %w", err)}
	}
	if len(pcm) == 0 {
		return voice.Transcript{Err: voice.ErrSpeechTimeout}
	}

	res, err := w.stt.TranscribePCM(ctx, pcm, w.opts)
	if err != nil {
		return voice.Transcript{Err: fmt.Errorf("transcribe: %w", err)}
	}

	text := strings.TrimSpace(nonSpeech.ReplaceAllString(res.Text, ""))
	if text == "" {
		return voice.Transcript{Err: voice.ErrNoMatch}
	}
	return voice.Transcript{Text: text, Final: true}
}
