// Package verify classifies the outcome of reading an object back against
// the outcome the corruption model predicted.
package verify

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	herr "github.com/bleepstore/integrity/internal/errors"
)

// Outcome is the expected result of a read-back.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}

// OutcomeFor maps an expect-failure flag to an Outcome.
func OutcomeFor(expectFailure bool) Outcome {
	if expectFailure {
		return Failure
	}
	return Success
}

// Reason tags a failed verdict.
type Reason string

const (
	ExpectedFailureButSucceeded Reason = "ExpectedFailureButSucceeded"
	ExpectedSuccessButFailed    Reason = "ExpectedSuccessButFailed"
	ContentMismatch             Reason = "ContentMismatch"
)

// Verdict is the result of a verification.
type Verdict struct {
	Pass   bool
	Reason Reason
	Detail string
	// Compared is the number of bytes found identical.
	Compared int64
}

// Err returns nil for a passing verdict and the matching harness error
// otherwise.
func (v Verdict) Err() error {
	if v.Pass {
		return nil
	}
	switch v.Reason {
	case ExpectedFailureButSucceeded:
		return herr.ErrUnexpectedSuccess.WithDetail("%s", v.Detail)
	case ExpectedSuccessButFailed:
		return herr.ErrUnexpectedFailure.WithDetail("%s", v.Detail)
	default:
		return herr.ErrContentMismatch.WithDetail("%s", v.Detail)
	}
}

// Verify checks a read-back. retrieved reports whether the read succeeded;
// actual is ignored when it did not.
func Verify(retrieved bool, actual, expected []byte, want Outcome) Verdict {
	if v, done := classify(retrieved, want); done {
		return v
	}
	if bytes.Equal(actual, expected) {
		return Verdict{Pass: true, Compared: int64(len(expected))}
	}
	off := firstDiff(actual, expected)
	return mismatch(off, int64(len(actual)), int64(len(expected)))
}

// VerifyFiles checks a read-back written to download against the
// concatenation of the expected files, streaming both sides.
func VerifyFiles(retrieved bool, download string, expected []string, want Outcome) (Verdict, error) {
	if v, done := classify(retrieved, want); done {
		return v, nil
	}

	got, err := os.Open(download)
	if err != nil {
		return Verdict{}, fmt.Errorf("opening download %q: %w", download, err)
	}
	defer got.Close()
	gotInfo, err := got.Stat()
	if err != nil {
		return Verdict{}, fmt.Errorf("stat download %q: %w", download, err)
	}

	var (
		readers  []io.Reader
		expLen   int64
		expFiles []*os.File
	)
	defer func() {
		for _, f := range expFiles {
			f.Close()
		}
	}()
	for _, path := range expected {
		f, err := os.Open(path)
		if err != nil {
			return Verdict{}, fmt.Errorf("opening reference %q: %w", path, err)
		}
		expFiles = append(expFiles, f)
		info, err := f.Stat()
		if err != nil {
			return Verdict{}, fmt.Errorf("stat reference %q: %w", path, err)
		}
		expLen += info.Size()
		readers = append(readers, f)
	}

	off, equal, err := compareStreams(bufio.NewReader(got), bufio.NewReader(io.MultiReader(readers...)))
	if err != nil {
		return Verdict{}, err
	}
	if equal {
		return Verdict{Pass: true, Compared: off}, nil
	}
	return mismatch(off, gotInfo.Size(), expLen), nil
}

func classify(retrieved bool, want Outcome) (Verdict, bool) {
	switch {
	case want == Failure && retrieved:
		return Verdict{Reason: ExpectedFailureButSucceeded, Detail: "read succeeded"}, true
	case want == Failure:
		return Verdict{Pass: true}, true
	case !retrieved:
		return Verdict{Reason: ExpectedSuccessButFailed, Detail: "read failed"}, true
	}
	return Verdict{}, false
}

func mismatch(off, gotLen, expLen int64) Verdict {
	return Verdict{
		Reason:   ContentMismatch,
		Detail:   fmt.Sprintf("first difference at offset %d (got %d bytes, expected %d)", off, gotLen, expLen),
		Compared: off,
	}
}

func firstDiff(a, b []byte) int64 {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int64(i)
		}
	}
	return int64(n)
}

// compareStreams returns the offset of the first differing byte, or the
// common length when both streams are identical.
func compareStreams(a, b io.Reader) (int64, bool, error) {
	bufA := make([]byte, 64<<10)
	bufB := make([]byte, 64<<10)
	var off int64
	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)
		if errA != nil && errA != io.EOF && errA != io.ErrUnexpectedEOF {
			return 0, false, fmt.Errorf("reading download: %w", errA)
		}
		if errB != nil && errB != io.EOF && errB != io.ErrUnexpectedEOF {
			return 0, false, fmt.Errorf("reading reference: %w", errB)
		}
		n := min(na, nb)
		if d := firstDiff(bufA[:n], bufB[:n]); d < int64(n) {
			return off + d, false, nil
		}
		off += int64(n)
		if na != nb {
			return off, false, nil
		}
		if na < len(bufA) {
			return off, true, nil
		}
	}
}
