package plan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/faultinject"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/metrics"
	"github.com/bleepstore/integrity/internal/verify"
)

// Options configure a Runner.
type Options struct {
	// Manifest is the scratch path complete-multipart writes the part list to.
	Manifest string
	// DropCompletedSessions removes a session once complete-multipart
	// succeeds. By default completed sessions stay in the context.
	DropCompletedSessions bool
	// OnStep, when set, is called after every executed or skipped step.
	OnStep func(StepResult)
}

// StepResult records the outcome of one executed or skipped step.
type StepResult struct {
	Index       int
	Op          string
	Description string
	Expect      bool
	OK          bool
	Skipped     bool
	// Error is set when the step's assertion failed.
	Error string
}

// Passed reports whether the step ran and met its expectation.
func (s StepResult) Passed() bool {
	return !s.Skipped && s.Error == ""
}

// Summary describes a plan run.
type Summary struct {
	Desc     string
	Executed int
	Skipped  int
	Passed   int
	Steps    []StepResult
}

// StepError is the fatal error that stopped a run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes plans one step at a time.
type Runner struct {
	inv    invoker.Invoker
	faults *faultinject.Controller
	opts   Options
	log    *slog.Logger
}

// NewRunner returns a Runner issuing operations through inv.
func NewRunner(inv invoker.Invoker, opts Options, log *slog.Logger) *Runner {
	if opts.Manifest == "" {
		opts.Manifest = "./parts.json"
	}
	return &Runner{
		inv:    inv,
		faults: faultinject.New(inv),
		opts:   opts,
		log:    logging.With(log, "plan"),
	}
}

// Run executes every step of p in order against tc. Unrecognized operations
// are logged and skipped. The first failed assertion stops the run and is
// returned as a *StepError alongside the summary so far.
func (r *Runner) Run(ctx context.Context, p *Plan, tc *Context) (Summary, error) {
	sum := Summary{Desc: p.Desc}
	r.log.Info("testing", "desc", p.Desc, "steps", len(p.Steps), "bucket", tc.Bucket, "key", tc.Key)

	for _, step := range p.Steps {
		tc.Apply(step.Overrides)
		sr := StepResult{Index: step.Index, Op: step.Op.Verb(), Description: step.Description, Expect: step.ExpectSuccess}

		if u, ok := step.Op.(Unrecognized); ok {
			r.log.Warn("operation is not supported", "step", step.Index, "op", u.Name)
			sr.Skipped = true
			sum.Skipped++
			sum.Steps = append(sum.Steps, sr)
			metrics.PlanStepsTotal.WithLabelValues("unrecognized", "skipped").Inc()
			r.notify(sr)
			continue
		}

		ok, err := r.exec(ctx, step, tc)
		sum.Executed++
		sr.OK = ok
		if err != nil {
			sr.Error = err.Error()
		}
		sum.Steps = append(sum.Steps, sr)
		r.notify(sr)
		if err != nil {
			metrics.PlanStepsTotal.WithLabelValues(step.Op.Verb(), "fail").Inc()
			r.log.Error("step failed", "step", step.Index, "op", step.Op.Verb(), "desc", step.Description, "error", err)
			return sum, &StepError{Step: step, Err: err}
		}
		metrics.PlanStepsTotal.WithLabelValues(step.Op.Verb(), "pass").Inc()
		sum.Passed++
		r.log.Info("step passed", "step", step.Index, "op", step.Op.Verb(), "desc", step.Description, "success", ok)
	}

	r.log.Info("done", "desc", p.Desc, "executed", sum.Executed, "skipped", sum.Skipped)
	return sum, nil
}

func (r *Runner) notify(sr StepResult) {
	if r.opts.OnStep != nil {
		r.opts.OnStep(sr)
	}
}

// exec dispatches one step and reports whether the operation succeeded.
func (r *Runner) exec(ctx context.Context, step Step, tc *Context) (bool, error) {
	p := tc.params()

	switch op := step.Op.(type) {
	case CreateBucket:
		return r.simple(ctx, step, invoker.OpCreateBucket, p)
	case DeleteBucket:
		return r.simple(ctx, step, invoker.OpDeleteBucket, p)
	case PutObject:
		return r.simple(ctx, step, invoker.OpPutObject, p)
	case HeadObject:
		return r.simple(ctx, step, invoker.OpHeadObject, p)
	case DeleteObject:
		return r.simple(ctx, step, invoker.OpDeleteObject, p)

	case GetObject:
		if p.Download != "" {
			if err := os.Remove(p.Download); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return false, err
			}
		}
		res, err := r.inv.Invoke(ctx, invoker.OpGetObject, p)
		if err != nil {
			return false, err
		}
		if err := checkStatus(step, res); err != nil {
			return res.OK(), err
		}
		if res.OK() && len(op.Match) > 0 {
			v, err := verify.VerifyFiles(true, p.Download, op.Match, verify.Success)
			if err != nil {
				return true, err
			}
			if err := v.Err(); err != nil {
				return true, err
			}
			metrics.BytesVerifiedTotal.Add(float64(v.Compared))
		}
		return res.OK(), nil

	case EnableFault:
		res, err := r.faults.Enable(ctx, op.Name, op.Frequency)
		if err != nil {
			return false, err
		}
		return res.OK(), checkStatus(step, res)

	case DisableFault:
		res, err := r.faults.Disable(ctx, op.Name)
		if err != nil {
			return false, err
		}
		return res.OK(), checkStatus(step, res)

	case CreateMultipart:
		res, err := r.inv.Invoke(ctx, invoker.OpCreateMultipartUpload, p)
		if err != nil {
			return false, err
		}
		if err := checkStatus(step, res); err != nil {
			return res.OK(), err
		}
		if res.OK() {
			out, err := invoker.Decode[invoker.CreateMultipartUploadOutput](invoker.OpCreateMultipartUpload, res)
			if err != nil {
				return true, err
			}
			tc.Sessions[tc.Key] = &Session{UploadID: out.UploadID, Key: tc.Key}
			r.log.Debug("multipart session created", "key", tc.Key, "upload_id", out.UploadID)
		}
		return res.OK(), nil

	case UploadPart:
		s, err := session(tc)
		if err != nil {
			return false, err
		}
		p.UploadID = s.UploadID
		p.PartNumber = len(s.Parts) + 1
		res, err := r.inv.Invoke(ctx, invoker.OpUploadPart, p)
		if err != nil {
			return false, err
		}
		if err := checkStatus(step, res); err != nil {
			return res.OK(), err
		}
		if res.OK() {
			out, err := invoker.Decode[invoker.UploadPartOutput](invoker.OpUploadPart, res)
			if err != nil {
				return true, err
			}
			s.Parts = append(s.Parts, invoker.CompletedPart{PartNumber: p.PartNumber, ETag: out.ETag})
		}
		return res.OK(), nil

	case ListParts:
		s, err := session(tc)
		if err != nil {
			return false, err
		}
		p.UploadID = s.UploadID
		res, err := r.inv.Invoke(ctx, invoker.OpListParts, p)
		if err != nil {
			return false, err
		}
		if res.OK() {
			r.log.Debug("list-parts", "key", tc.Key, "output", string(res.Stdout))
		}
		return res.OK(), checkStatus(step, res)

	case CompleteMultipart:
		s, err := session(tc)
		if err != nil {
			return false, err
		}
		if err := invoker.WriteManifest(r.opts.Manifest, invoker.Manifest{Parts: s.Parts}); err != nil {
			return false, err
		}
		p.UploadID = s.UploadID
		p.Manifest = r.opts.Manifest
		res, err := r.inv.Invoke(ctx, invoker.OpCompleteMultipartUpload, p)
		if err != nil {
			return false, err
		}
		if res.OK() && r.opts.DropCompletedSessions {
			delete(tc.Sessions, tc.Key)
		}
		return res.OK(), checkStatus(step, res)

	case AbortMultipart:
		s, err := session(tc)
		if err != nil {
			return false, err
		}
		p.UploadID = s.UploadID
		res, err := r.inv.Invoke(ctx, invoker.OpAbortMultipartUpload, p)
		if err != nil {
			return false, err
		}
		if res.OK() {
			delete(tc.Sessions, tc.Key)
		}
		return res.OK(), checkStatus(step, res)
	}
	return false, fmt.Errorf("unhandled operation %T", step.Op)
}

func (r *Runner) simple(ctx context.Context, step Step, op invoker.Op, p invoker.Params) (bool, error) {
	res, err := r.inv.Invoke(ctx, op, p)
	if err != nil {
		return false, err
	}
	if res.OK() && len(res.Stdout) > 0 {
		r.log.Debug(string(op), "output", strings.TrimSpace(string(res.Stdout)))
	}
	return res.OK(), checkStatus(step, res)
}

func session(tc *Context) (*Session, error) {
	s, ok := tc.Sessions[tc.Key]
	if !ok {
		return nil, herr.ErrNoSuchSession.WithDetail("%q", tc.Key)
	}
	return s, nil
}

// checkStatus compares the invocation status with the step's expectation.
func checkStatus(step Step, res invoker.Result) error {
	switch {
	case step.ExpectSuccess && !res.OK():
		return herr.ErrInvocationFailure.WithDetail("exit status %d: %s", res.ExitStatus, strings.TrimSpace(string(res.Stderr)))
	case !step.ExpectSuccess && res.OK():
		return herr.ErrUnexpectedSuccess.WithDetail("%s succeeded", step.Op.Verb())
	}
	return nil
}
