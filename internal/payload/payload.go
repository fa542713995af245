// Package payload generates pseudo-random object bodies, optionally stamped
// with a corruption marker in byte 0.
package payload

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSeed seeds generators used by automated sweeps.
const DefaultSeed = "integrity"

const chunkSize = 64 << 10

// ObjectSpec describes one generated payload.
type ObjectSpec struct {
	Size   int64
	Marker byte
}

// Generator produces payload bytes from a single random stream. It is safe
// for concurrent use, though interleaving callers makes the output order
// dependent on scheduling.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a reproducible Generator. The same seed always yields the
// same sequence of payloads and IntN values.
func NewSeeded(seed string) *Generator {
	return &Generator{rng: rand.New(rand.NewChaCha8(sha256.Sum256([]byte(seed))))}
}

// NewUnseeded returns a Generator with a random seed, so separate runs never
// collide.
func NewUnseeded() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Split returns a Generator seeded from g's stream. Draws from either one
// leave the other's sequence untouched.
func (g *Generator) Split() *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Generator{rng: rand.New(rand.NewPCG(g.rng.Uint64(), g.rng.Uint64()))}
}

// IntN returns a uniform value in [0, n) from the generator's stream.
func (g *Generator) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Generate returns size pseudo-random bytes. When corrupt is set and size is
// positive, byte 0 is overwritten with marker.
func (g *Generator) Generate(size int64, marker byte, corrupt bool) []byte {
	if size <= 0 {
		return []byte{}
	}
	buf := make([]byte, size)
	g.fill(buf)
	if corrupt {
		buf[0] = marker
	}
	return buf
}

func (g *Generator) fill(buf []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var word [8]byte
	for i := 0; i < len(buf); i += 8 {
		binary.LittleEndian.PutUint64(word[:], g.rng.Uint64())
		copy(buf[i:], word[:])
	}
}

// WriteFile writes a generated payload to path using a temp file in the same
// directory, fsync and rename. The temp file is removed on every failure.
func (g *Generator) WriteFile(path string, spec ObjectSpec, corrupt bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating payload directory %q: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".payload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := g.stream(tmpFile, spec, corrupt); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing payload %q: %w", path, err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %q: %w", path, err)
	}
	return nil
}

// stream writes the payload in fixed-size chunks so large objects are never
// held in memory at once.
func (g *Generator) stream(f *os.File, spec ObjectSpec, corrupt bool) error {
	buf := make([]byte, chunkSize)
	first := true
	for remaining := spec.Size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		chunk := buf[:n]
		g.fill(chunk)
		if first && corrupt {
			chunk[0] = spec.Marker
		}
		first = false
		if _, err := f.Write(chunk); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}
