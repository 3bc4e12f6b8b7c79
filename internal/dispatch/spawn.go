package dispatch

import (
	"context"

	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/errdefs"
	"gmab/internal/logging"
	"gmab/internal/provisioning"
)

// SpawnOptions are the CLI overrides for spawn. Empty values fall back to the
// provider's configured defaults; a nil lifetime falls back to the general default.
type SpawnOptions struct {
	Provider        string
	Region          string
	Image           string
	Type            string
	LifetimeMinutes *int
}

// providers that pick an image themselves when none is configured
var imageOptional = map[string]bool{
	config.ProviderYandexCloud: true,
}

// Spawn creates one instance and prints how to reach it
func (d *Dispatcher) Spawn(ctx context.Context, opts SpawnOptions) (*provisioning.Instance, error) {
	p, err := d.registry.Resolve(ctx, opts.Provider)
	if err != nil {
		return nil, err
	}
	name := p.Name()
	pc, _ := d.cfg.Provider(name)

	spec := provisioning.InstanceSpec{
		Label:           provisioning.NewLabel(),
		Region:          firstNonEmpty(opts.Region, pc.DefaultRegion),
		Image:           firstNonEmpty(opts.Image, pc.DefaultImage),
		Type:            firstNonEmpty(opts.Type, pc.DefaultType),
		LifetimeMinutes: d.cfg.LifetimeMinutes(),
		CreatedAt:       d.now(),
		SSHUser:         pc.User(name),
	}
	if opts.LifetimeMinutes != nil {
		spec.LifetimeMinutes = *opts.LifetimeMinutes
	}

	if err := validateSpawn(name, spec); err != nil {
		return nil, err
	}

	if d.cfg.General.SSHKeyPath == "" {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(""), "no SSH public key configured")
	}
	key, err := d.readKey(d.cfg.General.SSHKeyPath)
	if err != nil {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(""), "%v", err)
	}
	spec.SSHPublicKey = key.Authorized

	logging.Logger().Info("spawning instance",
		zap.String("provider", name),
		zap.String("label", spec.Label),
		zap.String("region", spec.Region),
		zap.String("image", spec.Image),
		zap.String("type", spec.Type),
		zap.Int("lifetime_minutes", spec.LifetimeMinutes),
		zap.String("key_fingerprint", key.FingerprintSHA256))

	spawnCtx, cancel := context.WithTimeout(ctx, SpawnTimeout)
	defer cancel()

	inst, err := p.Create(spawnCtx, spec)
	if err != nil {
		return nil, err
	}
	if inst.Label == "" {
		inst.Label = spec.Label
	}

	ip := inst.IP
	if ip == "" {
		ip = "(pending)"
	}
	d.printf("Spawned '%s' instance:\n", name)
	d.printf("  ID: %s\n", inst.ID)
	d.printf("  Label: %s\n", inst.Label)
	d.printf("  IP: %s\n", ip)
	d.printf("  Lifetime: %d minutes\n", spec.LifetimeMinutes)
	if inst.IP != "" {
		d.printf("  Connect via: ssh %s@%s\n", spec.SSHUser, inst.IP)
	}
	return inst, nil
}

func validateSpawn(provider string, spec provisioning.InstanceSpec) error {
	if spec.Region == "" {
		return errdefs.Validation("no region given and provider '%s' has no default_region", provider)
	}
	if spec.Type == "" {
		return errdefs.Validation("no instance type given and provider '%s' has no default_type", provider)
	}
	if spec.Image == "" && !imageOptional[provider] {
		return errdefs.Validation("no image given and provider '%s' has no default_image", provider)
	}
	if spec.LifetimeMinutes <= 0 {
		return errdefs.Validation("lifetime must be a positive number of minutes, got %d", spec.LifetimeMinutes)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
