// Package dispatch implements the user-facing operations: spawn, list and
// terminate. It resolves adapters through a Registry, annotates instances
// with their remaining lifetime and formats the results.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
	"gmab/internal/logging"
	"gmab/internal/provisioning"
	"gmab/internal/sshkey"
)

// Per-provider call timeouts
const (
	SpawnTimeout  = 15 * time.Minute
	ListTimeout   = 2 * time.Minute
	DeleteTimeout = 5 * time.Minute
)

// Registry resolves provider adapters
type Registry interface {
	Resolve(ctx context.Context, name string) (provisioning.Provisioner, error)
	All(ctx context.Context) ([]provisioning.Provisioner, error)
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(question string, defaultYes bool) (bool, error)
}

// Dispatcher runs one command against the configured providers
type Dispatcher struct {
	cfg      *config.Config
	registry Registry
	confirm  Confirmer
	out      io.Writer
	errOut   io.Writer

	now     func() time.Time
	readKey func(path string) (*sshkey.PublicKey, error)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithKeyReader replaces sshkey.Load
func WithKeyReader(read func(path string) (*sshkey.PublicKey, error)) Option {
	return func(d *Dispatcher) { d.readKey = read }
}

// New creates a Dispatcher. Command output goes to out, warnings to errOut.
func New(cfg *config.Config, registry Registry, confirm Confirmer, out, errOut io.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		registry: registry,
		confirm:  confirm,
		out:      out,
		errOut:   errOut,
		now:      time.Now,
		readKey:  sshkey.Load,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Listing is an instance annotated with its remaining lifetime
type Listing struct {
	provisioning.Instance `yaml:",inline"`

	MinutesLeft int    `json:"minutes_left" yaml:"minutes_left"`
	Expired     bool   `json:"expired" yaml:"expired"`
	TimeLeft    string `json:"time_left" yaml:"time_left"`
	StatusLabel string `json:"status_label" yaml:"status_label"`
}

func (d *Dispatcher) annotate(inst provisioning.Instance) Listing {
	r := lifecycle.Compute(inst.CreatedAt, inst.LifetimeMinutes, d.now())
	return Listing{
		Instance:    inst,
		MinutesLeft: r.MinutesLeft,
		Expired:     r.Expired,
		TimeLeft:    r.String(),
		StatusLabel: lifecycle.StatusLabel(inst.State, r.Expired),
	}
}

// collection is the result of listing one or every configured provider
type collection struct {
	listings []Listing
	adapters map[string]provisioning.Provisioner
	failed   int
}

// collect lists instances sequentially. A provider that cannot be built or
// listed is reported on errOut and counted; the others are still returned.
func (d *Dispatcher) collect(ctx context.Context, provider string) (*collection, error) {
	var adapters []provisioning.Provisioner
	c := &collection{adapters: make(map[string]provisioning.Provisioner)}

	if provider != "" {
		p, err := d.registry.Resolve(ctx, provider)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, p)
	} else {
		all, err := d.registry.All(ctx)
		for _, e := range unjoin(err) {
			d.warnf("Warning: %v", e)
			c.failed++
		}
		adapters = all
	}

	for _, p := range adapters {
		c.adapters[p.Name()] = p

		listCtx, cancel := context.WithTimeout(ctx, ListTimeout)
		instances, err := p.List(listCtx)
		cancel()
		if err != nil {
			logging.Logger().Warn("failed to list instances",
				zap.String("provider", p.Name()),
				zap.Error(err))
			d.warnf("Warning: failed to list instances from provider '%s': %v", p.Name(), err)
			c.failed++
			continue
		}
		for _, inst := range instances {
			if inst.Provider == "" {
				inst.Provider = p.Name()
			}
			c.listings = append(c.listings, d.annotate(inst))
		}
	}
	return c, nil
}

func (d *Dispatcher) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *Dispatcher) warnf(format string, args ...any) {
	fmt.Fprintf(d.errOut, format+"\n", args...)
}

// unjoin flattens an errors.Join result
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
