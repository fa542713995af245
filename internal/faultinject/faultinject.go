// Package faultinject toggles named server-side fault points through the
// storage invoker. It keeps no state; the service is the source of truth for
// which faults are active.
package faultinject

import (
	"context"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/invoker"
)

// Always is the only supported trigger frequency.
const Always = "always"

// Controller forwards fault toggles to an invoker.
type Controller struct {
	inv invoker.Invoker
}

// New returns a Controller using inv.
func New(inv invoker.Invoker) *Controller {
	return &Controller{inv: inv}
}

// Enable activates fault point name with the given frequency. Frequencies
// other than "always" fail with ErrUnsupportedFrequency before anything is
// sent.
func (c *Controller) Enable(ctx context.Context, name, freq string) (invoker.Result, error) {
	if freq == "" {
		freq = Always
	}
	if freq != Always {
		return invoker.Result{}, herr.ErrUnsupportedFrequency.WithDetail("%q for fault %q", freq, name)
	}
	return c.inv.Invoke(ctx, invoker.OpEnableFault, invoker.Params{Fault: name, Frequency: freq})
}

// Disable deactivates fault point name.
func (c *Controller) Disable(ctx context.Context, name string) (invoker.Result, error) {
	return c.inv.Invoke(ctx, invoker.OpDisableFault, invoker.Params{Fault: name})
}
