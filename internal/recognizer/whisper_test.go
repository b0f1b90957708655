package recognizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindnav/internal/voice"
	"blindnav/pkg/stt"
)

type fakeMic struct {
	pcm []float32
	err error
}

func (m fakeMic) RecordAuto(context.Context) ([]float32, error) { return m.pcm, m.err }

type fakeSTT struct{ text string }

func (s fakeSTT) TranscribePCM(context.Context, []float32, stt.Options) (stt.Result, error) {
	return stt.Result{Text: s.text}, nil
}

func TestWhisper(t *testing.T) {
	listen := func(mic Capturer, tr Transcriber) voice.Transcript {
		ch, err := NewWhisper(mic, tr, stt.Options{}).Listen(context.Background())
		require.NoError(t, err)
		got := <-ch
		_, open := <-ch
		require.False(t, open)
		return got
	}

	got := listen(fakeMic{}, fakeSTT{})
	assert.ErrorIs(t, got.Err, voice.ErrSpeechTimeout)

	got = listen(fakeMic{pcm: make([]float32, 160)}, fakeSTT{text: " [BLANK_AUDIO] "})
	assert.ErrorIs(t, got.Err, voice.ErrNoMatch)

	got = listen(fakeMic{pcm: make([]float32, 160)}, fakeSTT{text: " Hey Siri (wind) "})
	require.NoError(t, got.Err)
	assert.Equal(t, voice.Transcript{Text: "Hey Siri", Final: true}, got)

	got = listen(fakeMic{err: errors.New("device gone")}, fakeSTT{})
	assert.Error(t, got.Err)
}
