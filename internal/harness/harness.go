// Package harness ties one tool invocation to its side outputs: the results
// ledger, the status server, the JSON report, the report archive and the
// metrics textfile. Each output is enabled by its config section.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/bleepstore/integrity/internal/archive"
	"github.com/bleepstore/integrity/internal/config"
	"github.com/bleepstore/integrity/internal/ledger"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/metrics"
	"github.com/bleepstore/integrity/internal/report"
	"github.com/bleepstore/integrity/internal/status"
	"github.com/bleepstore/integrity/internal/uid"
)

// Run is one harness run in progress.
type Run struct {
	ID       string
	Mode     string
	Progress *status.Progress
	// Ledger is nil when ledger.path is not configured.
	Ledger *ledger.Store
	// StatusAddr is the bound status server address, nil when disabled.
	StatusAddr net.Addr

	cfg    *config.Config
	server *status.Server
	log    *slog.Logger
}

// Begin registers metrics, opens the ledger and starts the status server as
// configured. A run that fails to begin has released everything it opened.
func Begin(ctx context.Context, cfg *config.Config, mode string, log *slog.Logger) (*Run, error) {
	metrics.Register()
	r := &Run{
		ID:       uid.New(),
		Mode:     mode,
		Progress: &status.Progress{},
		cfg:      cfg,
		log:      logging.With(log, "harness"),
	}

	if path := cfg.Ledger.Path; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
		store, err := ledger.Open(path)
		if err != nil {
			return nil, err
		}
		err = store.BeginRun(ctx, ledger.Run{RunID: r.ID, Mode: mode, Endpoint: cfg.Target.Endpoint})
		if err != nil {
			store.Close()
			return nil, err
		}
		r.Ledger = store
	}

	if addr := cfg.Status.Addr; addr != "" {
		r.server = status.New(r.Progress, log)
		bound, err := r.server.Start(addr)
		if err != nil {
			if r.Ledger != nil {
				r.Ledger.Close()
			}
			return nil, fmt.Errorf("starting status server: %w", err)
		}
		r.StatusAddr = bound
	}

	r.log.Info("run started", "run_id", r.ID, "mode", mode)
	return r, nil
}

// Record adds res to rep and forwards it to the ledger and progress. Sweeps
// record through their own hooks; this is for callers that produce results
// outside a sweep.
func (r *Run) Record(ctx context.Context, rep *report.Report, res report.Result) {
	rep.Add(res)
	r.Progress.Record(res.Passed)
	if r.Ledger == nil {
		return
	}
	err := r.Ledger.Record(ctx, ledger.Entry{
		RunID:    r.ID,
		Name:     res.Name,
		Mode:     res.Mode,
		Category: res.Category,
		Key:      res.Key,
		Size:     res.Size,
		Passed:   res.Passed,
		Reason:   res.Reason,
		Error:    res.Error,
		Duration: res.Duration,
	})
	if err != nil {
		r.log.Warn("recording result in ledger", "name", res.Name, "error", err)
	}
}

// End closes the run: it finishes the ledger run, writes and archives the
// report, writes the metrics textfile and stops the status server. Every
// step is attempted; their errors are joined.
func (r *Run) End(ctx context.Context, rep *report.Report) error {
	if rep.EndTime.IsZero() {
		rep.Finish()
	}
	r.Progress.Finish()

	var errs []error
	if r.Ledger != nil {
		errs = append(errs, r.Ledger.FinishRun(ctx, r.ID, time.Now()))
		errs = append(errs, r.Ledger.Close())
	}
	if path := r.cfg.Report.Path; path != "" {
		errs = append(errs, rep.WriteFile(path))
	}
	if url := r.cfg.Report.ArchiveURL; url != "" {
		errs = append(errs, r.archive(ctx, url, rep))
	}
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics textfile: %w", err))
		}
	}
	if r.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), status.ShutdownTimeout)
		defer cancel()
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stopping status server: %w", err))
		}
	}

	r.log.Info("run finished", "run_id", r.ID, "passed", rep.Passed, "failed", rep.Failed)
	return errors.Join(errs...)
}

func (r *Run) archive(ctx context.Context, url string, rep *report.Report) error {
	data, err := rep.JSON()
	if err != nil {
		return err
	}
	sink, err := archive.Open(ctx, url, r.cfg.Target)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.json", r.Mode, r.ID)
	if err := sink.Upload(ctx, name, data); err != nil {
		return fmt.Errorf("archiving report to %s: %w", sink, err)
	}
	r.log.Info("report archived", "destination", sink.String(), "name", name)
	return nil
}
