package corruption

import (
	"errors"
	"math/rand/v2"
	"testing"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		spec   Spec
		marker byte
	}{
		{"none-on-write", Spec{None, OnWrite}, 'k'},
		{"zero-on-write", Spec{ZeroFill, OnWrite}, 'z'},
		{"first_byte-on-write", Spec{FirstByteMark, OnWrite}, 'f'},
		{"none-on-read", Spec{None, OnRead}, 'K'},
		{"zero-on-read", Spec{ZeroFill, OnRead}, 'Z'},
		{"first_byte-on-read", Spec{FirstByteMark, OnRead}, 'F'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, marker, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.spec, spec)
			assert.Equal(t, tt.marker, marker)
			assert.Equal(t, Category(tt.name), spec.Category())
			assert.Equal(t, tt.marker, spec.Marker())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	_, _, err := Parse("bit-flip-on-write")
	require.Error(t, err)
	assert.True(t, errors.Is(err, herr.ErrInvalidCategory))
	assert.Contains(t, err.Error(), "bit-flip-on-write")
}

func TestMarkersDistinct(t *testing.T) {
	seen := map[byte]Category{}
	for _, c := range All() {
		_, m, err := Parse(string(c))
		require.NoError(t, err)
		_, dup := seen[m]
		assert.False(t, dup, "marker %q reused by %s", m, c)
		seen[m] = c
	}
	assert.Len(t, seen, 6)
}

func TestExpectFailure(t *testing.T) {
	for _, c := range All() {
		spec, _, err := Parse(string(c))
		require.NoError(t, err)

		assert.False(t, spec.ExpectFailure(0), "%s: empty objects always round-trip", c)
		assert.Equal(t, !spec.IsNoop(), spec.ExpectFailure(4097), c)
	}
}

func TestApply(t *testing.T) {
	data := []byte{1, 2, 3}
	assert.False(t, Spec{None, OnWrite}.Apply(data, 'k'))
	assert.Equal(t, []byte{1, 2, 3}, data)

	assert.True(t, Spec{ZeroFill, OnWrite}.Apply(data, 'z'))
	assert.Equal(t, []byte{'z', 2, 3}, data)

	var empty []byte
	assert.False(t, Spec{FirstByteMark, OnRead}.Apply(empty, 'F'))
}

func TestPickCorruptedPart(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	assert.Equal(t, -1, PickCorruptedPart(rng, Spec{ZeroFill, OnWrite}, 0))
	assert.Equal(t, 0, PickCorruptedPart(rng, Spec{ZeroFill, OnRead}, 3))
	assert.Equal(t, 0, PickCorruptedPart(rng, Spec{FirstByteMark, OnRead}, 3))

	hits := make([]int, 3)
	for i := 0; i < 300; i++ {
		idx := PickCorruptedPart(rng, Spec{FirstByteMark, OnWrite}, 3)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 3)
		hits[idx]++
	}
	for i, h := range hits {
		assert.NotZero(t, h, "part %d never chosen", i)
	}
}
