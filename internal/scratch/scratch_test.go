package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirCreate(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested")
	f, err := Dir(root).Create("frame-*.jpg")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, root, filepath.Dir(f.Name()))
	assert.True(t, strings.HasSuffix(f.Name(), ".jpg"))

	_, err = f.WriteString("x")
	require.NoError(t, err)
	_, err = os.Stat(f.Name())
	assert.NoError(t, err)
}
