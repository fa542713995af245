package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSize(t *testing.T) {
	g := NewSeeded(DefaultSeed)
	for _, size := range []int64{0, 1, 2, 7, 8, 9, 4095, 4096, 4097} {
		assert.Len(t, g.Generate(size, 'z', true), int(size))
	}
}

func TestGenerateMarker(t *testing.T) {
	g := NewSeeded(DefaultSeed)
	data := g.Generate(4096, 'f', true)
	assert.Equal(t, byte('f'), data[0])

	empty := g.Generate(0, 'f', true)
	assert.Empty(t, empty)
}

func TestSeededIsReproducible(t *testing.T) {
	a := NewSeeded("integrity")
	b := NewSeeded("integrity")
	assert.Equal(t, a.Generate(1000, 'k', false), b.Generate(1000, 'k', false))
	assert.Equal(t, a.IntN(1000), b.IntN(1000))

	c := NewSeeded("other")
	assert.NotEqual(t, NewSeeded("integrity").Generate(64, 'k', false), c.Generate(64, 'k', false))
}

func TestSplitStreamsAreIndependent(t *testing.T) {
	a := NewSeeded(DefaultSeed)
	b := NewSeeded(DefaultSeed)
	sa, sb := a.Split(), b.Split()

	// Consuming the parent does not move the split stream.
	a.Generate(4096, 'k', false)
	assert.Equal(t, sa.IntN(1<<30), sb.IntN(1<<30))
	assert.Equal(t, a.Generate(64, 'k', false), b.Generate(4096+64, 'k', false)[4096:])
}

func TestUnseededDiffers(t *testing.T) {
	assert.NotEqual(t, NewUnseeded().Generate(64, 'k', false), NewUnseeded().Generate(64, 'k', false))
}

func TestWriteFileMatchesGenerate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "s3-object.bin")

	size := int64(chunkSize*2 + 100)
	require.NoError(t, NewSeeded("w").WriteFile(path, ObjectSpec{Size: size, Marker: 'z'}, true))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := NewSeeded("w").Generate(size, 'z', true)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFileOverwritesAndEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj")
	g := NewSeeded(DefaultSeed)
	require.NoError(t, g.WriteFile(path, ObjectSpec{Size: 10, Marker: 'k'}, true))
	require.NoError(t, g.WriteFile(path, ObjectSpec{Size: 0, Marker: 'k'}, true))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestWriteFileFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	// A directory at the destination makes the rename fail.
	dst := filepath.Join(dir, "taken")
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "child"), 0o755))

	err := NewSeeded(DefaultSeed).WriteFile(dst, ObjectSpec{Size: 16, Marker: 'k'}, false)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
