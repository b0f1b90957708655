package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"blindnav/internal/audio"
	"blindnav/internal/camera"
	"blindnav/internal/config"
	"blindnav/internal/connectivity"
	"blindnav/internal/coordinator"
	"blindnav/internal/currency"
	"blindnav/internal/flashlight"
	"blindnav/internal/ipc"
	"blindnav/internal/notify"
	"blindnav/internal/overlay"
	"blindnav/internal/proxy"
	"blindnav/internal/recognizer"
	"blindnav/internal/scratch"
	"blindnav/internal/speech"
	"blindnav/internal/supervisor"
	"blindnav/internal/torch"
	"blindnav/internal/tts"
	"blindnav/internal/voice"
	"blindnav/pkg/protocol"
	"blindnav/pkg/stt"
	"blindnav/pkg/vlm"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

type flags struct {
	socket    string
	cameraDir string
	noMic     bool
}

func main() {
	configPath := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	url := cli.StringP("url", "u", "", "Url of device hub")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	model := cli.StringP("model", "m", "", "Vision model name")
	var f flags
	cli.StringVar(&f.socket, "socket", ipc.SocketPath, "Control socket path")
	cli.StringVar(&f.cameraDir, "camera-dir", "", "Replay frames from a directory instead of the camera")
	cli.BoolVar(&f.noMic, "no-mic", false, "Run without the microphone listener")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file", "path", *envFile)
	}

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			log.Error("Failed to load config", "err", err)
			os.Exit(1)
		}
	}
	config.ApplyEnv(cfg)
	if *url != "" {
		cfg.Bus.URL = *url
	}
	if *proxyAddr != "" {
		cfg.Remote.Proxy = *proxyAddr
	}
	if *model != "" {
		cfg.Remote.Model = *model
	}
	if f.cameraDir != "" {
		cfg.Camera.Dir = f.cameraDir
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Daemon failed", "err", err)
		os.Exit(1)
	}

	log.Info("Shut down")
}

func run(ctx context.Context, cfg *config.Config, f flags) error {
	httpClient, err := proxy.NewClient(cfg.Remote.Proxy, 0)
	if err != nil {
		return err
	}
	probeClient, err := proxy.NewClient(cfg.Remote.Proxy, cfg.Connectivity.Timeout)
	if err != nil {
		return err
	}

	log.Debug("Loaded proxy", "proxy", cfg.Remote.Proxy)

	analyzer := vlm.NewClient(vlm.Config{
		APIKey:     cfg.Remote.APIKey,
		Model:      cfg.Remote.Model,
		BaseURL:    cfg.Remote.BaseURL,
		HTTPClient: httpClient,
	})

	engine, err := tts.NewEspeak(cfg.Speech.Voice, int(175*cfg.Speech.Rate))
	if err != nil {
		return err
	}
	defer engine.Close()
	out := speech.New(engine)

	log.Debug("Loaded speech engine", "voice", cfg.Speech.Voice)

	scratchDir := scratch.Dir(filepath.Join(os.TempDir(), "blindnav"))

	cam, err := openCamera(cfg, scratchDir)
	if err != nil {
		return err
	}

	classifier, err := openClassifier(cfg, analyzer, scratchDir)
	if err != nil {
		return err
	}

	var (
		bus *protocol.Protocol
		tr  flashlight.Torch = torch.Null{}
	)
	if cfg.Bus.URL != "" {
		bus, err = protocol.NewProtocol(ctx, protocol.PtclConfig{
			Shard:   cfg.Bus.Shard,
			Url:     cfg.Bus.URL,
			Reconn:  cfg.Bus.Reconn,
			Timeout: cfg.Bus.Timeout,
			EmitOut: func(m *protocol.Message) {
				log.Debug("Unsolicited frame", "msg", m.String())
			},
		})
		if err != nil {
			return err
		}
		tr = torch.NewBusTorch(bus, cfg.Bus.Device)
		log.Debug("Connected to hub", "url", cfg.Bus.URL)
	} else {
		log.Warn("No device hub configured, torch is simulated")
	}

	var sink overlay.Sink = overlay.LogSink{}
	if cfg.Bus.Overlay != "" {
		ws, err := protocol.NewWebSocket(ctx, cfg.Bus.Overlay, cfg.Bus.Reconn, cfg.Bus.Timeout)
		if err != nil {
			return err
		}
		defer ws.Close()
		sink = ws
	}
	pub := overlay.NewPublisher(sink)

	flash := flashlight.New(tr, flashlight.Settings{
		DarkThreshold:     cfg.Flashlight.DarkThreshold,
		LightThreshold:    cfg.Flashlight.LightThreshold,
		DarkFrames:        cfg.Flashlight.DarkFrames,
		MinToggleInterval: cfg.Flashlight.MinToggleInterval,
		MinHold:           cfg.Flashlight.MinHold,
	})

	var listener *voice.Listener
	deps := coordinator.Deps{
		Speaker:    out,
		Camera:     cam,
		Analyzer:   analyzer,
		Classifier: classifier,
		Flashlight: flash,
		Router:     voice.NewRouter(voice.DefaultVocabulary()),
		Publisher:  pub,
		Listening: func() bool {
			return listener != nil && listener.State() == voice.Listening
		},
	}
	if cfg.Audio.Earcon != "" {
		deps.Earcon = notify.NewEarcon(cfg.Audio.Earcon)
	}
	coord := coordinator.New(deps, coordinator.OptionsFrom(cfg))

	if !f.noMic {
		rec := audio.NewRecorder(cfg.Audio.SampleRate)
		if err := rec.Init(); err != nil {
			return err
		}
		defer rec.Close()

		whisper, err := stt.NewTranscriber(cfg.Voice.WhisperModel)
		if err != nil {
			return err
		}
		defer whisper.Close()

		heard := recognizer.NewWhisper(rec, whisper, stt.Options{
			Language:      cfg.Voice.Language,
			InitialPrompt: voice.InitialPrompt(voice.DefaultVocabulary()),
		})
		listener = voice.NewListener(heard, coord, voice.Delays{
			Restart: cfg.Voice.RestartDelay,
			Timeout: cfg.Voice.TimeoutDelay,
			Error:   cfg.Voice.ErrorDelay,
		})
		log.Debug("Loaded whisper", "model", cfg.Voice.WhisperModel)
	}

	monitor := connectivity.NewMonitor(connectivity.HTTPProbe{
		URL:    cfg.Connectivity.ProbeURL,
		Client: probeClient,
	}, cfg.Connectivity.Timeout)

	g, gctx := supervisor.New(ctx)

	coord.Start(gctx)
	log.Info("Boot up - successful", "session", coord.Session())

	g.Go("speech", out.Run)
	g.Go("overlay", pub.Run)
	if bus != nil {
		g.Go("bus", bus.Run)
	}
	if listener != nil {
		g.Go("listener", listener.Run)
	}
	g.Go("control", func(ctx context.Context) error {
		return ipc.Serve(ctx, f.socket, control(coord))
	})
	g.Every("keep-alive", cfg.Flashlight.KeepAlive, func(ctx context.Context) error {
		flash.KeepAlive(ctx)
		return nil
	})
	g.Every("connectivity", cfg.Connectivity.Interval, func(ctx context.Context) error {
		coord.SetOnline(monitor.Sample(ctx))
		return nil
	})
	g.Go("coordinator", func(ctx context.Context) error {
		<-ctx.Done()
		coord.Close()
		return ctx.Err()
	})

	return g.Wait()
}

func openCamera(cfg *config.Config, p scratch.Provider) (coordinator.Camera, error) {
	switch {
	case cfg.Camera.Dir != "":
		return camera.NewDir(cfg.Camera.Dir)
	case len(cfg.Camera.Command) > 0:
		return camera.NewCommand(cfg.Camera.Command, p)
	}
	return nil, errors.New("no camera configured: set camera.dir or camera.command")
}

// openClassifier prefers the on-device model and falls back to the remote
// currency profile.
func openClassifier(cfg *config.Config, a vlm.Analyzer, p scratch.Provider) (currency.Classifier, error) {
	if cfg.Currency.LabelsFile == "" || len(cfg.Currency.ScorerCommand) == 0 {
		log.Info("Using remote currency recognition")
		return currency.NewRemoteClassifier(a, cfg.Currency.Unit), nil
	}

	labels, err := currency.LoadLabels(cfg.Currency.LabelsFile)
	if err != nil {
		return nil, err
	}
	log.Info("Using on-device currency model", "labels", len(labels))

	return currency.NewLabelClassifier(
		currency.NewExecScorer(cfg.Currency.ScorerCommand, p),
		labels,
		currency.Thresholds{Confident: cfg.Currency.Confident, Possible: cfg.Currency.Possible},
	)
}
