// Package sweep runs the automated put/get and multipart scenario matrices
// and collects their outcomes. A failed scenario is counted and reported;
// it never stops the sweep.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/bleepstore/integrity/internal/corruption"
	"github.com/bleepstore/integrity/internal/driver"
	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/ledger"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/matrix"
	"github.com/bleepstore/integrity/internal/metrics"
	"github.com/bleepstore/integrity/internal/payload"
	"github.com/bleepstore/integrity/internal/report"
	"github.com/bleepstore/integrity/internal/status"
)

// Sweep modes.
const (
	ModePutGet    = "put-get"
	ModeMultipart = "multipart"
	ModeAll       = "all"
)

// Options configure a Sweeper.
type Options struct {
	RunID    string
	Endpoint string
	Bucket   string
	// Body, Download and Manifest are scratch paths. Multipart parts are
	// written next to Body as Body.part1..N and Body.last_part.
	Body     string
	Download string
	Manifest string
	// Workers is the number of scenarios in flight. With more than one,
	// every scenario gets its own scratch paths.
	Workers int
	// CreateObjects generates payload files before each scenario. Without
	// it the existing files at the scratch paths are uploaded.
	CreateObjects bool
	// StampKeepMarker writes the keep marker into byte 0 of payloads that
	// are not corrupted.
	StampKeepMarker bool
	// DryRun prints each scenario and its command sequence instead of
	// running it.
	DryRun   bool
	Describe invoker.Describe
}

// Sweeper runs scenario matrices through a driver.
type Sweeper struct {
	inv      invoker.Invoker
	drv      *driver.Driver
	gen      *payload.Generator
	planner  *payload.Generator
	opts     Options
	ledger   *ledger.Store
	progress *status.Progress
	out      io.Writer
	log      *slog.Logger
}

// Option is a functional option for configuring the Sweeper.
type Option func(*Sweeper)

// WithLedger records every result in l under Options.RunID.
func WithLedger(l *ledger.Store) Option {
	return func(s *Sweeper) {
		s.ledger = l
	}
}

// WithProgress reports progress to p.
func WithProgress(p *status.Progress) Option {
	return func(s *Sweeper) {
		s.progress = p
	}
}

// WithOutput prints result lines and dry-run descriptions to w.
func WithOutput(w io.Writer) Option {
	return func(s *Sweeper) {
		s.out = w
	}
}

// New returns a Sweeper issuing operations through inv and drawing payloads
// from gen. Corrupted-part choices come from a stream split off gen here, so
// they depend only on the order of scenarios and never on when workers
// generate their payloads.
func New(inv invoker.Invoker, gen *payload.Generator, opts Options, log *slog.Logger, options ...Option) *Sweeper {
	if opts.Workers < 1 || opts.DryRun {
		opts.Workers = 1
	}
	if opts.Manifest == "" {
		opts.Manifest = "./parts.json"
	}
	s := &Sweeper{
		inv:     inv,
		drv:     driver.New(inv, opts.Manifest, log),
		gen:     gen,
		planner: gen.Split(),
		opts:    opts,
		out:     io.Discard,
		log:     logging.With(log, "sweep"),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Prepare creates the sweep bucket. A failure, typically because the bucket
// already exists, is logged and ignored.
func (s *Sweeper) Prepare(ctx context.Context) error {
	p := invoker.Params{Bucket: s.opts.Bucket}
	if s.opts.DryRun {
		fmt.Fprintln(s.out, "To prepare for the test please run the following (it might return error which is OK):")
		fmt.Fprintf(s.out, "  %s || true\n\n", s.opts.Describe.Line(invoker.OpCreateBucket, p))
		return nil
	}
	res, err := s.inv.Invoke(ctx, invoker.OpCreateBucket, p)
	if err != nil {
		return err
	}
	if !res.OK() {
		s.log.Info("create-bucket failed, continuing", "bucket", s.opts.Bucket, "exit_status", res.ExitStatus)
	}
	return nil
}

// PutGet runs the single-object matrix of m.
func (s *Sweeper) PutGet(ctx context.Context, m matrix.Matrix) (*report.Report, error) {
	rep := s.newReport(ModePutGet)
	s.start(ModePutGet, count(m.Singles()))
	err := s.run(ctx, rep, s.putGetJobs(m))
	s.finish(rep)
	return rep, err
}

// Multipart runs the multipart matrix of m.
func (s *Sweeper) Multipart(ctx context.Context, m matrix.Matrix) (*report.Report, error) {
	rep := s.newReport(ModeMultipart)
	s.start(ModeMultipart, count(m.Multiparts()))
	err := s.run(ctx, rep, s.multipartJobs(m))
	s.finish(rep)
	return rep, err
}

// All runs both matrices once per corruption category, generating payloads
// regardless of Options.CreateObjects.
func (s *Sweeper) All(ctx context.Context, m matrix.Matrix) (*report.Report, error) {
	cp := *s
	cp.opts.CreateObjects = true

	rep := s.newReport(ModeAll)
	total := 0
	for range corruption.All() {
		total += count(m.Singles()) + count(m.Multiparts())
	}
	s.start(ModeAll, total)

	for _, cat := range corruption.All() {
		spec, _, err := corruption.Parse(string(cat))
		if err != nil {
			return rep, err
		}
		cm := m
		cm.Spec = spec
		s.log.Info("testing category", "category", cat)
		if err := cp.run(ctx, rep, cp.putGetJobs(cm)); err != nil {
			s.finish(rep)
			return rep, err
		}
		if err := cp.run(ctx, rep, cp.multipartJobs(cm)); err != nil {
			s.finish(rep)
			return rep, err
		}
	}
	s.finish(rep)
	return rep, nil
}

// job is one scenario ready to execute against its scratch paths.
type job struct {
	name string
	exec func(ctx context.Context, p paths) report.Result
}

type paths struct {
	body     string
	download string
	manifest string
}

// paths returns the scratch paths of the n-th scenario.
func (s *Sweeper) paths(n int) paths {
	if s.opts.Workers == 1 {
		return paths{body: s.opts.Body, download: s.opts.Download, manifest: s.opts.Manifest}
	}
	return paths{
		body:     fmt.Sprintf("%s.%d", s.opts.Body, n),
		download: fmt.Sprintf("%s.%d", s.opts.Download, n),
		manifest: fmt.Sprintf("%s.%d", s.opts.Manifest, n),
	}
}

// run executes jobs with at most Options.Workers in flight. Jobs are drawn
// from the sequence on the calling goroutine, so plans made while building
// them stay in sequence order.
func (s *Sweeper) run(ctx context.Context, rep *report.Report, jobs iter.Seq[job]) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	n := 0
	for j := range jobs {
		if err := gctx.Err(); err != nil {
			break
		}
		n++
		p := s.paths(n)
		g.Go(func() error {
			if s.progress != nil {
				s.progress.SetCurrent(j.name)
			}
			res := j.exec(gctx, p)
			if s.opts.DryRun {
				return nil
			}
			s.record(gctx, rep, res)
			if s.opts.Workers > 1 {
				s.cleanup(p)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Sweeper) putGetJobs(m matrix.Matrix) iter.Seq[job] {
	return func(yield func(job) bool) {
		for sc := range m.Singles() {
			spec := m.Spec
			j := job{name: sc.Key, exec: func(ctx context.Context, p paths) report.Result {
				return s.putGet(ctx, sc, spec, p)
			}}
			if !yield(j) {
				return
			}
		}
	}
}

func (s *Sweeper) multipartJobs(m matrix.Matrix) iter.Seq[job] {
	return func(yield func(job) bool) {
		for mp := range m.Multiparts() {
			plan := mp.Plan(s.planner, m.Spec)
			j := job{name: mp.Key, exec: func(ctx context.Context, p paths) report.Result {
				return s.multipart(ctx, mp, plan, p)
			}}
			if !yield(j) {
				return
			}
		}
	}
}

func (s *Sweeper) putGet(ctx context.Context, sc matrix.Single, spec corruption.Spec, p paths) report.Result {
	obj := sc.Object(spec)
	if s.opts.DryRun {
		s.describePutGet(sc, spec, obj, p)
		return report.Result{}
	}

	if s.opts.CreateObjects {
		if err := s.gen.WriteFile(p.body, obj, !spec.IsNoop() || s.opts.StampKeepMarker); err != nil {
			return s.failed(ModePutGet, spec, sc.Key, sc.Size, sc.ExpectFailure, err)
		}
	}
	r, err := s.drv.PutAndGet(ctx, s.opts.Bucket, sc.Key, p.body, p.download, sc.ExpectFailure)
	return s.result(ModePutGet, spec, sc.Size, r, err)
}

func (s *Sweeper) multipart(ctx context.Context, mp matrix.Multipart, plan matrix.PartPlan, p paths) report.Result {
	parts := partPaths(p.body, mp)
	if s.opts.DryRun {
		s.describeMultipart(mp, plan, parts, p)
		return report.Result{}
	}

	if s.opts.CreateObjects {
		for i, spec := range plan.Parts {
			if err := s.gen.WriteFile(parts[i], spec, plan.Stamp(i, s.opts.StampKeepMarker)); err != nil {
				return s.failed(ModeMultipart, plan.Spec, mp.Key, mp.TotalSize(), mp.ExpectFailure, err)
			}
		}
	}
	r, err := s.drv.WithManifest(p.manifest).MultipartUpload(ctx, s.opts.Bucket, mp.Key, parts, p.download, mp.ExpectFailure)
	return s.result(ModeMultipart, plan.Spec, mp.TotalSize(), r, err)
}

// partPaths names the payload files of a multipart scenario.
func partPaths(body string, mp matrix.Multipart) []string {
	out := make([]string, 0, mp.Len())
	for i := 0; i < mp.PartCount; i++ {
		out = append(out, fmt.Sprintf("%s.part%d", body, i+1))
	}
	if mp.LastPartSize > 0 {
		out = append(out, body+".last_part")
	}
	return out
}

func (s *Sweeper) result(mode string, spec corruption.Spec, size int64, r driver.Result, err error) report.Result {
	res := report.Result{
		Name:          r.Key,
		Mode:          mode,
		Category:      string(spec.Category()),
		Key:           r.Key,
		Size:          size,
		ExpectFailure: r.ExpectFailure,
		Passed:        err == nil && r.Verdict.Pass,
		Reason:        string(r.Verdict.Reason),
		Duration:      r.Duration,
	}
	if err != nil {
		res.Error = err.Error()
		var he *herr.Error
		if res.Reason == "" && errors.As(err, &he) {
			res.Reason = he.Code
		}
	}
	if res.Passed && !r.ExpectFailure {
		metrics.BytesVerifiedTotal.Add(float64(r.Verdict.Compared))
		metrics.ObjectSize.Observe(float64(size))
	}
	return res
}

func (s *Sweeper) failed(mode string, spec corruption.Spec, key string, size int64, expectFailure bool, err error) report.Result {
	return report.Result{
		Name:          key,
		Mode:          mode,
		Category:      string(spec.Category()),
		Key:           key,
		Size:          size,
		ExpectFailure: expectFailure,
		Error:         err.Error(),
	}
}

// record fans a result out to the report, metrics, ledger and progress.
func (s *Sweeper) record(ctx context.Context, rep *report.Report, res report.Result) {
	rep.Add(res)
	metrics.ScenariosTotal.WithLabelValues(res.Mode, res.Category, metrics.Status(res.Passed)).Inc()
	if s.progress != nil {
		s.progress.Record(res.Passed)
	}
	report.PrintResult(s.out, res)

	if res.Passed {
		s.log.Info("scenario passed", "mode", res.Mode, "category", res.Category, "key", res.Key,
			"size", res.Size, "expect_failure", res.ExpectFailure, "duration", res.Duration)
	} else {
		s.log.Error("scenario failed", "mode", res.Mode, "category", res.Category, "key", res.Key,
			"size", res.Size, "reason", res.Reason, "error", res.Error)
	}

	if s.ledger == nil {
		return
	}
	err := s.ledger.Record(context.WithoutCancel(ctx), ledger.Entry{
		RunID:    s.opts.RunID,
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
		s.log.Warn("recording result in ledger", "key", res.Key, "error", err)
	}
}

// cleanup removes per-scenario scratch files.
func (s *Sweeper) cleanup(p paths) {
	for _, path := range []string{p.body, p.download, p.manifest, p.body + ".last_part"} {
		os.Remove(path)
	}
	for i := 1; ; i++ {
		if err := os.Remove(fmt.Sprintf("%s.part%d", p.body, i)); err != nil {
			break
		}
	}
}

func (s *Sweeper) newReport(mode string) *report.Report {
	return report.New(s.opts.RunID, mode, s.opts.Endpoint, s.opts.Bucket)
}

func (s *Sweeper) start(mode string, total int) {
	if s.progress != nil {
		s.progress.Start(mode, s.opts.RunID, total)
	}
}

func (s *Sweeper) finish(rep *report.Report) {
	rep.Finish()
	if s.progress != nil {
		s.progress.Finish()
	}
	if !s.opts.DryRun && rep.OK() {
		fmt.Fprintf(s.out, "auto-test-%s: Successful.\n", rep.Mode)
	}
}

func count[T any](seq iter.Seq[T]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
