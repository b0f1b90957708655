// blindnav-replay runs recorded utterances through the transcriber and the
// voice command router and prints what each one would trigger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"blindnav/internal/coordinator"
	"blindnav/internal/recognizer"
	"blindnav/internal/voice"
	"blindnav/pkg/audioconv"
	"blindnav/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// clip is a Capturer that hands out one decoded file.
type clip []float32

func (c clip) RecordAuto(context.Context) ([]float32, error) { return c, nil }

func main() {
	modelPath := cli.StringP("model", "m", "third_party/whisper.cpp/models/ggml-base.en.bin", "Whisper model")
	lang := cli.String("lang", "en", "Spoken language")
	modeName := cli.String("mode", "navigation", "Mode the utterances are heard in")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	mode, err := coordinator.ParseMode(*modeName)
	if err != nil {
		log.Error("Bad mode", "err", err)
		os.Exit(2)
	}
	scope := voice.Scope{Assistant: mode == coordinator.Assistant, Currency: mode == coordinator.Currency}

	whisper, err := stt.NewTranscriber(*modelPath)
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	vocab := voice.DefaultVocabulary()
	router := voice.NewRouter(vocab)
	opts := stt.Options{Language: *lang, InitialPrompt: voice.InitialPrompt(vocab)}

	ctx := context.Background()
	failed := false
	for _, path := range cli.Args() {
		if err := replay(ctx, path, whisper, router, scope, opts); err != nil {
			log.Error("Replay failed", "file", path, "err", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func replay(ctx context.Context, path string, t recognizer.Transcriber, r *voice.Router, scope voice.Scope, opts stt.Options) error {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{})
	if err != nil {
		return err
	}
	log.Debug("Decoded", "file", path, "samples", len(pcm))

	rec := recognizer.NewWhisper(clip(pcm), t, opts)
	ch, err := rec.Listen(ctx)
	if err != nil {
		return err
	}

	for tr := range ch {
		name := filepath.Base(path)
		switch {
		case errors.Is(tr.Err, voice.ErrNoMatch), errors.Is(tr.Err, voice.ErrSpeechTimeout):
			fmt.Printf("%s\t-\t(%v)\n", name, tr.Err)
		case tr.Err != nil:
			return tr.Err
		default:
			cmd := r.Route(tr.Text, scope, tr.Final)
			fmt.Printf("%s\t%s\t%q\n", name, cmd.Kind, tr.Text)
		}
	}
	return nil
}
