package provisioning

import (
	"context"

	"gmab/internal/config"
)

// Factory builds the adapter for one provider from its stored configuration
type Factory func(ctx context.Context, pc config.ProviderConfig) (Provisioner, error)

// DefaultFactories maps every supported provider to its constructor
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		config.ProviderAWS: func(ctx context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewAWSProvisioner(ctx, pc)
		},
		config.ProviderDigitalOcean: func(_ context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewDOProvisioner(pc)
		},
		config.ProviderGCP: func(ctx context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewGCPProvisioner(ctx, pc)
		},
		config.ProviderHetzner: func(_ context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewHetznerProvisioner(pc)
		},
		config.ProviderLinode: func(_ context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewLinodeProvisioner(pc)
		},
		config.ProviderYandexCloud: func(ctx context.Context, pc config.ProviderConfig) (Provisioner, error) {
			return NewYcProvisioner(ctx, pc)
		},
	}
}

// HasCredentials reports whether pc carries the credentials the named provider needs
func HasCredentials(provider string, pc config.ProviderConfig) bool {
	switch provider {
	case config.ProviderAWS:
		return pc.AccessKey != "" && pc.SecretKey != ""
	case config.ProviderGCP:
		return pc.ProjectID != ""
	case config.ProviderYandexCloud:
		return pc.APIKey != "" && pc.FolderID != ""
	default:
		return pc.APIKey != ""
	}
}
