package provisioning

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/errdefs"
	"gmab/internal/logging"
)

// Registry resolves provider names to adapters. Adapters are built on first
// use and cached for the rest of the invocation.
type Registry struct {
	cfg       *config.Config
	factories map[string]Factory
	built     map[string]Provisioner
}

// NewRegistry creates a registry over the loaded configuration
func NewRegistry(cfg *config.Config, factories map[string]Factory) *Registry {
	return &Registry{
		cfg:       cfg,
		factories: factories,
		built:     make(map[string]Provisioner),
	}
}

// Resolve returns the adapter for name, or for the default provider when name is empty
func (r *Registry) Resolve(ctx context.Context, name string) (Provisioner, error) {
	if name == "" {
		name = r.cfg.General.DefaultProvider
		if name == "" {
			return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(""), "no default provider configured")
		}
	}

	if p, ok := r.built[name]; ok {
		return p, nil
	}

	factory, ok := r.factories[name]
	if !ok || !config.IsKnownProvider(name) {
		return nil, errdefs.Validation("unknown provider '%s' (supported: %v)", name, config.ProviderNames)
	}

	pc, ok := r.cfg.Provider(name)
	if !ok {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(name), "provider '%s' is not configured", name)
	}
	pc = pc.ExpandEnv()
	if !HasCredentials(name, pc) {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(name), "provider '%s' has no credentials", name)
	}

	logging.Logger().Debug("building provider adapter",
		zap.String("provider", name),
		zap.Any("config", pc.Masked()))
	inner, err := factory(ctx, pc)
	if err != nil {
		return nil, &errdefs.ProviderError{Provider: name, Op: "init", Err: err}
	}

	p := &attributed{inner: inner, name: name}
	r.built[name] = p
	return p, nil
}

// All returns the adapters of every configured provider in name order.
// Providers that fail to build are reported in the joined error while the
// others are still returned.
func (r *Registry) All(ctx context.Context) ([]Provisioner, error) {
	var (
		adapters []Provisioner
		errs     []error
	)
	for _, name := range r.cfg.ProviderNames() {
		p, err := r.Resolve(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		adapters = append(adapters, p)
	}
	return adapters, errors.Join(errs...)
}

// attributed tags every error with the provider and operation that produced it
type attributed struct {
	inner Provisioner
	name  string
}

func (a *attributed) Name() string {
	return a.name
}

func (a *attributed) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	logging.Logger().Debug("provider call",
		zap.String("provider", a.name),
		zap.String("op", "create"),
		zap.String("label", spec.Label),
		zap.String("region", spec.Region))
	inst, err := a.inner.Create(ctx, spec)
	if err != nil {
		return nil, a.wrap("create", err)
	}
	return inst, nil
}

func (a *attributed) List(ctx context.Context) ([]Instance, error) {
	logging.Logger().Debug("provider call", zap.String("provider", a.name), zap.String("op", "list"))
	instances, err := a.inner.List(ctx)
	if err != nil {
		return nil, a.wrap("list", err)
	}
	logging.Logger().Debug("provider listed instances",
		zap.String("provider", a.name),
		zap.Int("count", len(instances)))
	return instances, nil
}

func (a *attributed) Delete(ctx context.Context, idOrLabel string) error {
	logging.Logger().Debug("provider call",
		zap.String("provider", a.name),
		zap.String("op", "delete"),
		zap.String("target", idOrLabel))
	if err := a.inner.Delete(ctx, idOrLabel); err != nil {
		return a.wrap("delete", err)
	}
	return nil
}

func (a *attributed) wrap(op string, err error) error {
	logging.Logger().Debug("provider call failed",
		zap.String("provider", a.name),
		zap.String("op", op),
		zap.String("error", logging.Truncate(err.Error())))
	var pe *errdefs.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &errdefs.ProviderError{Provider: a.name, Op: op, Err: err}
}
