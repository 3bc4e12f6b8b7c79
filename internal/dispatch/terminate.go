package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gmab/internal/errdefs"
	"gmab/internal/logging"
)

// Special terminate targets
const (
	TargetAll     = "all"
	TargetExpired = "expired"
)

// MaxExplicitTargets bounds how many IDs or labels one terminate may name
const MaxExplicitTargets = 5

// maxLoggedInstances bounds the instance IDs listed in one log entry
const maxLoggedInstances = 10

// TerminateOptions are the arguments of terminate
type TerminateOptions struct {
	// Targets are instance IDs or labels, or a single "all" / "expired"
	Targets  []string
	Provider string
	// Yes skips the confirmation prompt
	Yes bool
}

// TerminateResult summarises a terminate run
type TerminateResult struct {
	Terminated []Listing
	Failed     []TerminateFailure
	Cancelled  bool
}

// TerminateFailure is one target that was not terminated
type TerminateFailure struct {
	Target string
	Err    error
}

// Terminate deletes the selected instances after confirmation. Failures are
// reported per item; the returned error is non-nil if any item failed.
func (d *Dispatcher) Terminate(ctx context.Context, opts TerminateOptions) (*TerminateResult, error) {
	if len(opts.Targets) == 0 {
		return nil, errdefs.Validation("no instance IDs or labels provided (use 'all' or 'expired' to sweep)")
	}

	mode := ""
	if len(opts.Targets) == 1 && (opts.Targets[0] == TargetAll || opts.Targets[0] == TargetExpired) {
		mode = opts.Targets[0]
	} else if len(opts.Targets) > MaxExplicitTargets {
		return nil, errdefs.Validation("cannot terminate more than %d instances at once", MaxExplicitTargets)
	}

	logging.Logger().Debug("resolving terminate targets",
		zap.Strings("targets", opts.Targets),
		zap.String("provider", opts.Provider))

	c, err := d.collect(ctx, opts.Provider)
	if err != nil {
		return nil, err
	}

	result := &TerminateResult{}
	var planned []Listing

	switch mode {
	case TargetAll, TargetExpired:
		if len(c.listings) == 0 {
			d.printf("No active instances found.\n")
			return result, d.partialListError(c)
		}
		for _, l := range c.listings {
			if mode == TargetAll || l.Expired {
				planned = append(planned, l)
			}
		}
		if len(planned) == 0 {
			d.printf("No expired instances found.\n")
			return result, d.partialListError(c)
		}
	default:
		planned, result.Failed = d.match(c, opts.Targets, opts.Provider)
	}

	if len(planned) > 0 {
		if mode == TargetExpired {
			d.printf("The following expired instances will be terminated:\n")
		} else {
			d.printf("The following instances will be terminated:\n")
		}
		for _, l := range planned {
			d.printf("- %s (%s: %s)\n", l.ID, l.Provider, l.Label)
		}

		if !opts.Yes {
			ok, err := d.confirm.Confirm("Do you want to proceed?", false)
			if err != nil {
				return nil, fmt.Errorf("failed to read confirmation: %w", err)
			}
			if !ok {
				d.printf("Operation cancelled.\n")
				result.Cancelled = true
				return result, nil
			}
		}
	}

	if len(planned) > 0 {
		ids := make([]string, 0, len(planned))
		for _, l := range planned {
			ids = append(ids, l.Provider+":"+l.ID)
		}
		logging.Logger().Debug("terminating instances",
			zap.Int("count", len(ids)),
			zap.Strings("instances", logging.TruncateSlice(ids, maxLoggedInstances)))
	}

	for _, l := range planned {
		p := c.adapters[l.Provider]
		delCtx, cancel := context.WithTimeout(ctx, DeleteTimeout)
		err := p.Delete(delCtx, l.ID)
		cancel()
		if err != nil {
			logging.Logger().Warn("failed to terminate instance",
				zap.String("provider", l.Provider),
				zap.String("instance_id", l.ID),
				zap.Error(err))
			result.Failed = append(result.Failed, TerminateFailure{Target: l.ID, Err: err})
			continue
		}
		logging.Logger().Info("terminated instance",
			zap.String("provider", l.Provider),
			zap.String("instance_id", l.ID))
		result.Terminated = append(result.Terminated, l)
	}

	if n := len(result.Terminated); n > 0 {
		if mode == TargetExpired {
			d.printf("Successfully terminated %d expired instance(s).\n", n)
		} else {
			d.printf("Successfully terminated %d instance(s).\n", n)
		}
	}
	if len(result.Failed) > 0 {
		d.printf("\nFailed to terminate the following instances:\n")
		errs := make([]error, 0, len(result.Failed))
		for _, f := range result.Failed {
			d.printf("- %s: %v\n", f.Target, f.Err)
			errs = append(errs, f.Err)
		}
		return result, fmt.Errorf("failed to terminate %d instance(s): %w", len(result.Failed), errors.Join(errs...))
	}
	return result, d.partialListError(c)
}

// match resolves explicit targets against the collected instances. A target
// matching nothing, or matching more than one instance, is a failure.
func (d *Dispatcher) match(c *collection, targets []string, provider string) ([]Listing, []TerminateFailure) {
	var (
		planned  []Listing
		failures []TerminateFailure
	)
	seen := make(map[string]bool)

	for _, target := range targets {
		var matches []Listing
		for _, l := range c.listings {
			if l.Matches(target) {
				matches = append(matches, l)
			}
		}

		switch len(matches) {
		case 0:
			scope := "any configured provider"
			if provider != "" {
				scope = fmt.Sprintf("provider '%s'", provider)
			}
			failures = append(failures, TerminateFailure{
				Target: target,
				Err:    errdefs.NotFound("no instance with ID or label '%s' on %s", target, scope),
			})
		case 1:
			key := matches[0].Provider + "/" + matches[0].ID
			if !seen[key] {
				seen[key] = true
				planned = append(planned, matches[0])
			}
		default:
			where := make([]string, 0, len(matches))
			for _, m := range matches {
				where = append(where, m.Provider+":"+m.ID)
			}
			failures = append(failures, TerminateFailure{
				Target: target,
				Err: errdefs.Validation("'%s' matches %d instances (%s); use --provider to choose one",
					target, len(matches), strings.Join(where, ", ")),
			})
		}
	}
	return planned, failures
}

func (d *Dispatcher) partialListError(c *collection) error {
	if c.failed > 0 {
		return fmt.Errorf("failed to list instances from %d provider(s)", c.failed)
	}
	return nil
}
