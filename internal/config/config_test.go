package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValidOnceKeyed(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "missing API key must be rejected")

	cfg.Remote.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blindnav.yaml")
	body := "flashlight:\n  dark_threshold: 45\n  min_hold: 2m\ncurrency:\n  unit: Dollar\n  scorer_command: [tflite-run, --model, notes.tflite]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, 45, cfg.Flashlight.DarkThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Flashlight.MinHold)
	assert.Equal(t, "Dollar", cfg.Currency.Unit)
	assert.Equal(t, []string{"tflite-run", "--model", "notes.tflite"}, cfg.Currency.ScorerCommand)
	assert.Equal(t, 2, cfg.Flashlight.DarkFrames, "untouched keys keep defaults")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("BLINDNAV_MODEL", "gpt-4o")
	t.Setenv("BLINDNAV_BUS_URL", "ws://bus:8092/ws")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, "sk-env", cfg.Remote.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Remote.Model)
	assert.Equal(t, "ws://bus:8092/ws", cfg.Bus.URL)
}

func TestValidateRejectsBrokenValues(t *testing.T) {
	cfg := Default()
	cfg.Remote.APIKey = "sk-test"
	cfg.Flashlight.DarkFrames = 0
	cfg.Currency.Cadence = 0
	cfg.Currency.Possible = 0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dark_frames")
	assert.Contains(t, err.Error(), "currency.cadence")
	assert.Contains(t, err.Error(), "currency thresholds")
}
