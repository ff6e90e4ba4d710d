package shaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/dieselrt"
)

func spirv(words ...uint32) []byte {
	out := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(out, SPIRVMagic)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*(i+1):], w)
	}
	return out
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadSPIRV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracer.comp.spv", spirv(1, 2, 3))

	l := NewLoader(dir)
	code, err := l.Load("tracer.comp.spv", dieselrt.StageCompute, "")
	require.NoError(t, err)
	assert.Equal(t, dieselrt.StageCompute, code.Stage)
	assert.Equal(t, "", code.Entry)
	assert.Len(t, code.Code, 16)
}

func TestLoadRejectsBadSPIRV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "short.spv", []byte{1, 2, 3})
	writeFile(t, dir, "magic.spv", []byte{0, 0, 0, 0, 1, 1, 1, 1})

	l := NewLoader(dir)
	_, err := l.Load("short.spv", dieselrt.StageVertex, "")
	assert.Error(t, err)
	_, err = l.Load("magic.spv", dieselrt.StageVertex, "")
	assert.Error(t, err)
	_, err = l.Load("missing.spv", dieselrt.StageVertex, "")
	assert.Error(t, err)
}

func TestLoadUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shader.glsl", []byte("void main() {}"))
	_, err := NewLoader(dir).Load("shader.glsl", dieselrt.StageFragment, "")
	assert.Error(t, err)
}

func TestLoadWGSL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "blit.wgsl", []byte("@fragment fn fs_main() {}"))

	var source string
	l := &Loader{Root: dir, Compile: func(src string) ([]byte, error) {
		source = src
		return spirv(7), nil
	}}
	code, err := l.Load("blit.wgsl", dieselrt.StageFragment, "")
	require.NoError(t, err)
	assert.Equal(t, "@fragment fn fs_main() {}", source)
	assert.Equal(t, "fs_main", code.Entry)
	assert.Len(t, code.Code, 8)

	code, err = l.Load("blit.wgsl", dieselrt.StageFragment, "blit")
	require.NoError(t, err)
	assert.Equal(t, "blit", code.Entry)

	l.Compile = func(string) ([]byte, error) { return nil, errors.New("parse error") }
	_, err = l.Load("blit.wgsl", dieselrt.StageFragment, "")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	l := NewLoader("/assets")
	p, err := l.Resolve("a.spv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/assets", "a.spv"), p)

	p, err = l.Resolve("/abs/b.spv")
	require.NoError(t, err)
	assert.Equal(t, "/abs/b.spv", p)
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tracer.comp.spv", spirv(1))
	other := writeFile(t, dir, "notes.txt", []byte("x"))

	w, err := Watch(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(other, []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(path, spirv(2), 0o644))

	abs, _ := filepath.Abs(path)
	select {
	case got := <-w.Changes():
		assert.Equal(t, abs, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
