// Package scratch hands out writable temporary files.
package scratch

import (
	"fmt"
	"os"
)

type Provider interface {
	Create(pattern string) (*os.File, error)
}

// Dir creates files under a directory; an empty Dir uses os.TempDir.
type Dir string

func (d Dir) Create(pattern string) (*os.File, error) {
	if d != "" {
		if err := os.MkdirAll(string(d), 0o755); err != nil {
			return nil, fmt.Errorf("scratch dir: %w", err)
		}
	}
	return os.CreateTemp(string(d), pattern)
}
