package invoker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bleepstore/integrity/internal/config"
	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/metrics"
)

// WithTimeout bounds every invocation of inv by d. An invocation cut short by
// the bound fails with ErrInvocationTimeout. A non-positive d returns inv
// unchanged.
func WithTimeout(inv Invoker, d time.Duration) Invoker {
	if d <= 0 {
		return inv
	}
	return Func(func(ctx context.Context, op Op, p Params) (Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		res, err := inv.Invoke(callCtx, op, p)
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Result{}, herr.ErrInvocationTimeout.WithDetail("%s %s/%s after %s", op, p.Bucket, p.Key, d)
		}
		return res, err
	})
}

// Instrumented records metrics for every invocation and logs it at debug
// level.
func Instrumented(inv Invoker, log *slog.Logger) Invoker {
	log = logging.With(log, "invoker")
	return Func(func(ctx context.Context, op Op, p Params) (Result, error) {
		start := time.Now()
		res, err := inv.Invoke(ctx, op, p)
		elapsed := time.Since(start)

		status := metrics.Status(err == nil && res.OK())
		if err != nil {
			status = "error"
		}
		metrics.InvocationsTotal.WithLabelValues(string(op), status).Inc()
		metrics.InvocationDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())

		attrs := []any{
			"op", op,
			"bucket", p.Bucket,
			"key", p.Key,
			"exit_status", res.ExitStatus,
			"duration", elapsed,
		}
		if p.PartNumber > 0 {
			attrs = append(attrs, "part_number", p.PartNumber)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		} else if !res.OK() && len(res.Stderr) > 0 {
			attrs = append(attrs, "stderr", string(res.Stderr))
		}
		log.Debug("invocation", attrs...)
		return res, err
	})
}

// New builds the invoker selected by cfg, wired with fault injection, the
// configured timeout and instrumentation.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (Invoker, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Target)
	if err != nil {
		return nil, err
	}
	faults := NewFaultClient(cfg.Target.Endpoint, cfg.Target.Region,
		cfg.FaultInjection.Header, cfg.FaultInjection.Method, awsCfg.Credentials)

	var inv Invoker
	switch cfg.Invoker.Kind {
	case "sdk":
		inv = &SDK{client: NewS3Client(awsCfg, cfg.Target), Faults: faults}
	case "cli":
		inv = NewCLI(cfg.Target, cfg.Invoker, faults)
	default:
		return nil, herr.ErrMissingRequiredInput.WithDetail("unknown invoker kind %q", cfg.Invoker.Kind)
	}

	inv = WithTimeout(inv, time.Duration(cfg.Invoker.TimeoutSeconds)*time.Second)
	return Instrumented(inv, log), nil
}

// Describe renders invocations as manual commands for dry runs.
type Describe struct {
	Endpoint    string
	FaultHeader string
}

// Line returns the command line for op.
func (d Describe) Line(op Op, p Params) string {
	return CommandLine(op, p, d.Endpoint, d.FaultHeader)
}
