// Package camera provides frame sources for the coordinator.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"blindnav/internal/scratch"
)

var ErrNoFrames = errors.New("no frames available")

// Dir replays the images of a directory in name order, looping forever.
type Dir struct {
	path string

	mu    sync.Mutex
	files []string
	next  int
}

func NewDir(path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFrames)
	}
	sort.Strings(files)

	return &Dir{path: path, files: files}, nil
}

func (d *Dir) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	name := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	return decodeFile(name)
}

// Command runs an external capture tool that writes one image to the path
// it is given as last argument, e.g. fswebcam or libcamera-still.
type Command struct {
	argv    []string
	scratch scratch.Provider
}

func NewCommand(argv []string, p scratch.Provider) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty capture command")
	}
	return &Command{argv: argv, scratch: p}, nil
}

func (c *Command) Capture(ctx context.Context) (image.Image, error) {
	f, err := c.scratch.Create("frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("scratch file: %w", err)
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	args := make([]string, 0, len(c.argv))
	args = append(args, c.argv[1:]...)
	args = append(args, name)

	if out, err := exec.CommandContext(ctx, c.argv[0], args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("capture: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return decodeFile(name)
}

func decodeFile(name string) (image.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(name), err)
	}
	return img, nil
}
