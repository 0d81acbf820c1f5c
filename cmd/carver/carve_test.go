package main

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Will-Banksy/searchlight/pkg/filetypes"
)

func TestFileTypeWiresFromConfigDefaultsWithoutConfigFile(t *testing.T) {
	wires, err := fileTypeWiresFromConfig("")
	require.NoError(t, err)
	assert.Equal(t, filetypes.Default(), wires)
}

func TestFileTypeWiresFromConfigLoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
file_types:
  - name: custom
    header_patterns:
      - "CUST"
    max_length: 1024
    extension: cust
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	wires, err := fileTypeWiresFromConfig(path)
	require.NoError(t, err)
	require.Len(t, wires, 1)
	assert.Equal(t, "custom", wires[0].Name)
	assert.Equal(t, "cust", wires[0].Extension)
}

func TestFileTypeWiresFromConfigRejectsBadFile(t *testing.T) {
	_, err := fileTypeWiresFromConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestBuildExtensionsHandlesMultiHeaderWire(t *testing.T) {
	wires := []filetypes.Wire{
		{
			Name:           "multi",
			HeaderPatterns: []string{"AAAA", "BBBB"},
			MaxLength:      64,
			Extension:      "bin",
		},
		{
			Name:           "single",
			HeaderPatterns: []string{"CCCC"},
			MaxLength:      64,
			Extension:      "sgl",
		},
	}

	exts := buildExtensions(wires)
	assert.Equal(t, "bin", exts["multi#0"])
	assert.Equal(t, "bin", exts["multi#1"])
	assert.Equal(t, "sgl", exts["single"])
}

func pngBytes() []byte {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	chunk := func(typ string, data []byte) []byte {
		var out []byte
		length := make([]byte, 4)
		binary.BigEndian.PutUint32(length, uint32(len(data)))
		out = append(out, length...)
		out = append(out, []byte(typ)...)
		out = append(out, data...)
		h := crc32.NewIEEE()
		h.Write([]byte(typ))
		h.Write(data)
		crc := make([]byte, 4)
		binary.BigEndian.PutUint32(crc, h.Sum32())
		return append(out, crc...)
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 1)
	binary.BigEndian.PutUint32(ihdr[4:8], 1)
	ihdr[8] = 8

	var out []byte
	out = append(out, sig...)
	out = append(out, chunk("IHDR", ihdr)...)
	out = append(out, chunk("IEND", nil)...)
	return out
}

func TestCarveCmdExecuteEndToEnd(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(imgPath, pngBytes(), 0o644))

	outDir := filepath.Join(dir, "out")

	c := &CarveCmd{
		Image:       imgPath,
		Output:      outDir,
		Format:      "table",
		BlockSize:   1 << 16,
		ClusterSize: 4096,
		IOStrategy:  "buffered",
	}

	err := c.execute()
	require.NoError(t, err)
	assert.Equal(t, 0, lastExitCode)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCarveCmdExecuteRejectsUnknownTypesGlob(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(imgPath, pngBytes(), 0o644))

	c := &CarveCmd{
		Image:       imgPath,
		Output:      filepath.Join(dir, "out"),
		Format:      "table",
		Types:       "doesnotexist",
		BlockSize:   1 << 16,
		ClusterSize: 4096,
	}

	err := c.execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
}

func TestCarveCmdExecuteExplicitGPUWithoutDispatcherIsComputeError(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(imgPath, pngBytes(), 0o644))

	c := &CarveCmd{
		Image:       imgPath,
		Output:      filepath.Join(dir, "out"),
		Format:      "table",
		BlockSize:   1 << 16,
		ClusterSize: 4096,
		UseGPU:      true,
	}

	err := c.execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "compute error")
}
