package camera

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindnav/internal/scratch"
)

func writePNG(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDirLoops(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 200)
	writePNG(t, filepath.Join(dir, "a.png"), 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	cam, err := NewDir(dir)
	require.NoError(t, err)

	ctx := context.Background()
	var got []uint8
	for i := 0; i < 3; i++ {
		img, err := cam.Capture(ctx)
		require.NoError(t, err)
		got = append(got, color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y)
	}
	assert.Equal(t, []uint8{20, 200, 20}, got)
}

func TestDirEmpty(t *testing.T) {
	_, err := NewDir(t.TempDir())
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestCommand(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.png")
	writePNG(t, src, 90)

	cam, err := NewCommand([]string{"cp", src}, scratch.Dir(t.TempDir()))
	require.NoError(t, err)

	img, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(90), color.GrayModel.Convert(img.At(1, 1)).(color.Gray).Y)

	cam, _ = NewCommand([]string{"false"}, scratch.Dir(t.TempDir()))
	_, err = cam.Capture(context.Background())
	assert.Error(t, err)

	_, err = NewCommand(nil, scratch.Dir(""))
	assert.Error(t, err)
}
