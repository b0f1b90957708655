package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the daemon. Zero values are never used
// directly: Default fills them and Validate rejects what is left broken.
type Config struct {
	Flashlight   Flashlight   `yaml:"flashlight"`
	Pipeline     Pipeline     `yaml:"pipeline"`
	Speech       Speech       `yaml:"speech"`
	Voice        Voice        `yaml:"voice"`
	Currency     Currency     `yaml:"currency"`
	Connectivity Connectivity `yaml:"connectivity"`
	Remote       Remote       `yaml:"remote"`
	Bus          Bus          `yaml:"bus"`
	Camera       Camera       `yaml:"camera"`
	Audio        Audio        `yaml:"audio"`
}

type Flashlight struct {
	DarkThreshold     int           `yaml:"dark_threshold"`
	LightThreshold    int           `yaml:"light_threshold"`
	DarkFrames        int           `yaml:"dark_frames"`
	MinToggleInterval time.Duration `yaml:"min_toggle_interval"`
	MinHold           time.Duration `yaml:"min_hold"`
	KeepAlive         time.Duration `yaml:"keep_alive"`
}

type Pipeline struct {
	NavigationCadence time.Duration `yaml:"navigation_cadence"`
	InferenceMinGap   time.Duration `yaml:"inference_min_gap"`
	FrameBuffer       int           `yaml:"frame_buffer"`
	AnalysisStaleness time.Duration `yaml:"analysis_staleness"`
	ContextHistory    int           `yaml:"context_history"`
}

type Speech struct {
	Voice string  `yaml:"voice"`
	Rate  float64 `yaml:"rate"`
}

type Voice struct {
	RestartDelay time.Duration `yaml:"restart_delay"`
	TimeoutDelay time.Duration `yaml:"timeout_delay"`
	ErrorDelay   time.Duration `yaml:"error_delay"`
	WhisperModel string        `yaml:"whisper_model"`
	Language     string        `yaml:"language"`
}

type Currency struct {
	Cadence          time.Duration `yaml:"cadence"`
	BusyBackoff      time.Duration `yaml:"busy_backoff"`
	GuidanceThrottle time.Duration `yaml:"guidance_throttle"`
	Confident        float32       `yaml:"confident"`
	Possible         float32       `yaml:"possible"`
	Unit             string        `yaml:"unit"`
	LabelsFile       string        `yaml:"labels_file"`
	// ScorerCommand runs the on-device model; it gets an image path as
	// last argument and prints one score per label.
	ScorerCommand    []string      `yaml:"scorer_command"`
}

type Connectivity struct {
	Interval time.Duration `yaml:"interval"`
	ProbeURL string        `yaml:"probe_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Remote struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Proxy   string `yaml:"proxy"`
}

type Bus struct {
	URL     string        `yaml:"url"`
	Shard   string        `yaml:"shard"`
	Device  string        `yaml:"device"`
	Reconn  uint          `yaml:"reconnect_seconds"`
	Timeout time.Duration `yaml:"timeout"`
	Overlay string        `yaml:"overlay_url"`
}

type Camera struct {
	Dir     string   `yaml:"dir"`
	Command []string `yaml:"command"`
}

type Audio struct {
	SampleRate int    `yaml:"sample_rate"`
	Earcon     string `yaml:"earcon"`
}

// Default returns the configuration the original handset shipped with.
func Default() *Config {
	return &Config{
		Flashlight: Flashlight{
			DarkThreshold:     60,
			LightThreshold:    80,
			DarkFrames:        2,
			MinToggleInterval: 5 * time.Second,
			MinHold:           10 * time.Minute,
			KeepAlive:         10 * time.Second,
		},
		Pipeline: Pipeline{
			NavigationCadence: 5 * time.Second,
			InferenceMinGap:   2 * time.Second,
			FrameBuffer:       3,
			AnalysisStaleness: 30 * time.Second,
			ContextHistory:    5,
		},
		Speech: Speech{
			Voice: "en-us",
			Rate:  1.1,
		},
		Voice: Voice{
			RestartDelay: 100 * time.Millisecond,
			TimeoutDelay: 200 * time.Millisecond,
			ErrorDelay:   500 * time.Millisecond,
			WhisperModel: "third_party/whisper.cpp/models/ggml-base.en.bin",
			Language:     "en",
		},
		Currency: Currency{
			Cadence:          3 * time.Second,
			BusyBackoff:      500 * time.Millisecond,
			GuidanceThrottle: 3 * time.Second,
			Confident:        0.4,
			Possible:         0.2,
			Unit:             "Rupee",
		},
		Connectivity: Connectivity{
			Interval: 5 * time.Second,
			ProbeURL: "https://clients3.google.com/generate_204",
			Timeout:  3 * time.Second,
		},
		Remote: Remote{
			Model: "gpt-4o-mini",
		},
		Bus: Bus{
			Shard:   "BLINDNAV",
			Device:  "VERTEX",
			Reconn:  2,
			Timeout: 3 * time.Second,
		},
		Audio: Audio{
			SampleRate: 16000,
			Earcon:     "beep.mp3",
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// ApplyEnv reads the handful of settings that are conventionally passed
// through the environment (or a .env file loaded beforehand).
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("BLINDNAV_MODEL"); v != "" {
		cfg.Remote.Model = v
	}
	if v := os.Getenv("BLINDNAV_BUS_URL"); v != "" {
		cfg.Bus.URL = v
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Remote.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY not set"))
	}
	if c.Flashlight.DarkThreshold <= 0 || c.Flashlight.DarkThreshold > 255 {
		errs = append(errs, fmt.Errorf("flashlight.dark_threshold out of range: %d", c.Flashlight.DarkThreshold))
	}
	if c.Flashlight.LightThreshold < c.Flashlight.DarkThreshold {
		errs = append(errs, errors.New("flashlight.light_threshold below dark_threshold"))
	}
	if c.Flashlight.DarkFrames <= 0 {
		errs = append(errs, errors.New("flashlight.dark_frames must be positive"))
	}

	positive := map[string]time.Duration{
		"flashlight.min_toggle_interval": c.Flashlight.MinToggleInterval,
		"flashlight.min_hold":            c.Flashlight.MinHold,
		"flashlight.keep_alive":          c.Flashlight.KeepAlive,
		"pipeline.navigation_cadence":    c.Pipeline.NavigationCadence,
		"pipeline.inference_min_gap":     c.Pipeline.InferenceMinGap,
		"pipeline.analysis_staleness":    c.Pipeline.AnalysisStaleness,
		"currency.cadence":               c.Currency.Cadence,
		"currency.busy_backoff":          c.Currency.BusyBackoff,
		"connectivity.interval":          c.Connectivity.Interval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Pipeline.FrameBuffer < 0 {
		errs = append(errs, errors.New("pipeline.frame_buffer must not be negative"))
	}
	if c.Currency.Possible <= 0 || c.Currency.Confident < c.Currency.Possible {
		errs = append(errs, errors.New("currency thresholds must satisfy 0 < possible <= confident"))
	}

	return errors.Join(errs...)
}
