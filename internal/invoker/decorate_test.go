package invoker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocking() Invoker {
	return Func(func(ctx context.Context, op Op, p Params) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
}

func TestWithTimeoutExpires(t *testing.T) {
	inv := WithTimeout(blocking(), 20*time.Millisecond)
	_, err := inv.Invoke(context.Background(), OpGetObject, Params{Bucket: "b", Key: "k"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, herr.ErrInvocationTimeout))
	assert.Contains(t, err.Error(), "get-object b/k")
}

func TestWithTimeoutParentCanceled(t *testing.T) {
	inv := WithTimeout(blocking(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, OpGetObject, Params{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, herr.ErrInvocationTimeout))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutDisabled(t *testing.T) {
	inner := Func(func(ctx context.Context, op Op, p Params) (Result, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return Result{ExitStatus: 3}, nil
	})
	res, err := WithTimeout(inner, 0).Invoke(context.Background(), OpPutObject, Params{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitStatus)
}

func TestInstrumentedLogs(t *testing.T) {
	metrics.Register()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	inner := Func(func(ctx context.Context, op Op, p Params) (Result, error) {
		return Result{ExitStatus: 254, Stderr: []byte("NoSuchKey")}, nil
	})
	res, err := Instrumented(inner, log).Invoke(context.Background(), OpGetObject, Params{Bucket: "b", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, 254, res.ExitStatus)

	out := buf.String()
	assert.Contains(t, out, "component=invoker")
	assert.Contains(t, out, "op=get-object")
	assert.Contains(t, out, "exit_status=254")
	assert.Contains(t, out, "stderr=NoSuchKey")
}
