package verify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		retrieved bool
		actual    []byte
		expected  []byte
		want      Outcome
		pass      bool
		reason    Reason
	}{
		{"match", true, []byte("abc"), []byte("abc"), Success, true, ""},
		{"empty match", true, []byte{}, []byte{}, Success, true, ""},
		{"nil vs empty", true, nil, []byte{}, Success, true, ""},
		{"expected failure", false, nil, []byte("abc"), Failure, true, ""},
		{"unexpected success", true, []byte("abc"), []byte("abc"), Failure, false, ExpectedFailureButSucceeded},
		{"unexpected failure", false, nil, []byte("abc"), Success, false, ExpectedSuccessButFailed},
		{"mismatch", true, []byte("abd"), []byte("abc"), Success, false, ContentMismatch},
		{"short", true, []byte("ab"), []byte("abc"), Success, false, ContentMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Verify(tt.retrieved, tt.actual, tt.expected, tt.want)
			assert.Equal(t, tt.pass, v.Pass)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestVerifyMismatchDetail(t *testing.T) {
	v := Verify(true, []byte("abXd"), []byte("abcd"), Success)
	assert.Equal(t, int64(2), v.Compared)
	assert.Contains(t, v.Detail, "offset 2")
	assert.Contains(t, v.Detail, "got 4 bytes, expected 4")
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, Verdict{Pass: true}.Err())
	assert.True(t, errors.Is(Verify(true, nil, nil, Failure).Err(), herr.ErrUnexpectedSuccess))
	assert.True(t, errors.Is(Verify(false, nil, nil, Success).Err(), herr.ErrUnexpectedFailure))
	assert.True(t, errors.Is(Verify(true, []byte("a"), []byte("b"), Success).Err(), herr.ErrContentMismatch))
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, Failure, OutcomeFor(true))
	assert.Equal(t, Success, OutcomeFor(false))
	assert.Equal(t, "failure", Failure.String())
}

func write(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestVerifyFilesConcatenation(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 100<<10)
	for i := range big {
		big[i] = byte(i * 7)
	}
	p1 := write(t, dir, "p1", big)
	p2 := write(t, dir, "p2", []byte("tail"))
	download := write(t, dir, "download", append(append([]byte{}, big...), "tail"...))

	v, err := VerifyFiles(true, download, []string{p1, p2}, Success)
	require.NoError(t, err)
	assert.True(t, v.Pass, v.Detail)
	assert.Equal(t, int64(len(big)+4), v.Compared)
}

func TestVerifyFilesMismatch(t *testing.T) {
	dir := t.TempDir()
	p1 := write(t, dir, "p1", make([]byte, 70000))
	bad := make([]byte, 70000)
	bad[69999] = 1
	download := write(t, dir, "download", bad)

	v, err := VerifyFiles(true, download, []string{p1}, Success)
	require.NoError(t, err)
	assert.False(t, v.Pass)
	assert.Equal(t, ContentMismatch, v.Reason)
	assert.Equal(t, int64(69999), v.Compared)
}

func TestVerifyFilesLengthDiffers(t *testing.T) {
	dir := t.TempDir()
	p1 := write(t, dir, "p1", []byte("abc"))
	download := write(t, dir, "download", []byte("abcd"))

	v, err := VerifyFiles(true, download, []string{p1}, Success)
	require.NoError(t, err)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Detail, "offset 3 (got 4 bytes, expected 3)")
}

func TestVerifyFilesEmpty(t *testing.T) {
	dir := t.TempDir()
	p1 := write(t, dir, "p1", nil)
	download := write(t, dir, "download", nil)

	v, err := VerifyFiles(true, download, []string{p1}, Success)
	require.NoError(t, err)
	assert.True(t, v.Pass)
}

func TestVerifyFilesExpectedFailureSkipsIO(t *testing.T) {
	v, err := VerifyFiles(false, "/nonexistent", []string{"/nonexistent"}, Failure)
	require.NoError(t, err)
	assert.True(t, v.Pass)
}

func TestVerifyFilesMissingDownload(t *testing.T) {
	_, err := VerifyFiles(true, filepath.Join(t.TempDir(), "missing"), nil, Success)
	assert.Error(t, err)
}
