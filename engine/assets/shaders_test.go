package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpirv(t *testing.T, dir string, words []uint32) string {
	t.Helper()
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	path := filepath.Join(dir, "test.spv")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoadShaderSPIRV(t *testing.T) {
	words := []uint32{spirvMagic, 0x00010600, 0, 1, 0}
	path := writeSpirv(t, t.TempDir(), words)

	got, err := LoadShaderSPIRV(path)
	require.NoError(t, err)
	assert.Equal(t, words, got)
}

func TestLoadShaderSPIRVBadMagic(t *testing.T) {
	path := writeSpirv(t, t.TempDir(), []uint32{0xdeadbeef, 1, 2})

	_, err := LoadShaderSPIRV(path)
	assert.Error(t, err)
}

func TestLoadShaderSPIRVTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.spv")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := LoadShaderSPIRV(path)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.spv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadShaderSPIRV(empty)
	assert.Error(t, err)
}

func TestLoadShaderSPIRVMissing(t *testing.T) {
	_, err := LoadShaderSPIRV(filepath.Join(t.TempDir(), "nope.spv"))
	assert.Error(t, err)
}
