package provisioning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gmab/internal/config"
	"gmab/internal/errdefs"
)

type stubProvisioner struct {
	name      string
	listErr   error
	deleteErr error
}

func (s *stubProvisioner) Name() string { return s.name }

func (s *stubProvisioner) Create(_ context.Context, spec InstanceSpec) (*Instance, error) {
	return &Instance{Provider: s.name, Label: spec.Label}, nil
}

func (s *stubProvisioner) List(context.Context) ([]Instance, error) {
	return nil, s.listErr
}

func (s *stubProvisioner) Delete(context.Context, string) error {
	return s.deleteErr
}

func stubFactories(builds map[string]int, seen map[string]config.ProviderConfig) map[string]Factory {
	factories := make(map[string]Factory)
	for _, name := range config.ProviderNames {
		name := name
		factories[name] = func(_ context.Context, pc config.ProviderConfig) (Provisioner, error) {
			builds[name]++
			seen[name] = pc
			if pc.DefaultRegion == "broken" {
				return nil, errors.New("bad region")
			}
			return &stubProvisioner{name: name, listErr: errors.New("boom")}, nil
		}
	}
	return factories
}

func testConfig() *config.Config {
	return &config.Config{
		General: config.General{DefaultProvider: config.ProviderHetzner},
		Providers: map[string]config.ProviderConfig{
			config.ProviderHetzner: {APIKey: "${GMAB_REGISTRY_TOKEN}"},
			config.ProviderLinode:  {DefaultRegion: "nl-ams"},
			config.ProviderAWS:     {AccessKey: "AKIA", SecretKey: "secret"},
		},
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Setenv("GMAB_REGISTRY_TOKEN", "from-env")
	builds := map[string]int{}
	seen := map[string]config.ProviderConfig{}
	reg := NewRegistry(testConfig(), stubFactories(builds, seen))
	ctx := context.Background()

	t.Run("default provider", func(t *testing.T) {
		p, err := reg.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.Name() != config.ProviderHetzner {
			t.Errorf("Name() = %q", p.Name())
		}
		if seen[config.ProviderHetzner].APIKey != "from-env" {
			t.Errorf("api_key not expanded: %q", seen[config.ProviderHetzner].APIKey)
		}
	})

	t.Run("adapters are built once", func(t *testing.T) {
		if _, err := reg.Resolve(ctx, config.ProviderHetzner); err != nil {
			t.Fatal(err)
		}
		if builds[config.ProviderHetzner] != 1 {
			t.Errorf("hetzner built %d times", builds[config.ProviderHetzner])
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := reg.Resolve(ctx, "vultr")
		if !errors.Is(err, errdefs.ErrValidation) {
			t.Errorf("Resolve(vultr) error = %v, want ErrValidation", err)
		}
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		_, err := reg.Resolve(ctx, config.ProviderGCP)
		if !errors.Is(err, errdefs.ErrConfigMissing) {
			t.Fatalf("Resolve(gcp) error = %v, want ErrConfigMissing", err)
		}
		if hint := errdefs.Hint(err); !strings.Contains(hint, "gmab configure -p gcp") {
			t.Errorf("hint = %q", hint)
		}
		if builds[config.ProviderGCP] != 0 {
			t.Error("factory must not run for an unconfigured provider")
		}
	})

	t.Run("configured without credentials", func(t *testing.T) {
		_, err := reg.Resolve(ctx, config.ProviderLinode)
		if !errors.Is(err, errdefs.ErrConfigMissing) {
			t.Errorf("Resolve(linode) error = %v, want ErrConfigMissing", err)
		}
		if builds[config.ProviderLinode] != 0 {
			t.Error("factory must not run with empty credentials")
		}
	})
}

func TestRegistryNoDefaultProvider(t *testing.T) {
	cfg := testConfig()
	cfg.General.DefaultProvider = ""
	reg := NewRegistry(cfg, stubFactories(map[string]int{}, map[string]config.ProviderConfig{}))

	_, err := reg.Resolve(context.Background(), "")
	if !errors.Is(err, errdefs.ErrConfigMissing) {
		t.Errorf("Resolve(\"\") error = %v, want ErrConfigMissing", err)
	}
}

func TestRegistryAll(t *testing.T) {
	t.Setenv("GMAB_REGISTRY_TOKEN", "tok")
	reg := NewRegistry(testConfig(), stubFactories(map[string]int{}, map[string]config.ProviderConfig{}))

	adapters, err := reg.All(context.Background())
	if len(adapters) != 2 || adapters[0].Name() != config.ProviderAWS || adapters[1].Name() != config.ProviderHetzner {
		names := make([]string, 0, len(adapters))
		for _, a := range adapters {
			names = append(names, a.Name())
		}
		t.Fatalf("All() adapters = %v, want [aws hetzner]", names)
	}
	if !errors.Is(err, errdefs.ErrConfigMissing) {
		t.Errorf("All() error = %v, want linode ConfigMissing joined", err)
	}
}

func TestRegistryAttributesErrors(t *testing.T) {
	t.Setenv("GMAB_REGISTRY_TOKEN", "tok")
	reg := NewRegistry(testConfig(), stubFactories(map[string]int{}, map[string]config.ProviderConfig{}))

	p, err := reg.Resolve(context.Background(), config.ProviderAWS)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.List(context.Background())

	var pe *errdefs.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("List() error = %v, want ProviderError", err)
	}
	if pe.Provider != "aws" || pe.Op != "list" {
		t.Errorf("ProviderError = %+v", pe)
	}
	if err.Error() != "aws: list: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRegistryFactoryFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Providers[config.ProviderAWS] = config.ProviderConfig{AccessKey: "a", SecretKey: "b", DefaultRegion: "broken"}
	reg := NewRegistry(cfg, stubFactories(map[string]int{}, map[string]config.ProviderConfig{}))

	_, err := reg.Resolve(context.Background(), config.ProviderAWS)
	var pe *errdefs.ProviderError
	if !errors.As(err, &pe) || pe.Op != "init" {
		t.Errorf("Resolve() error = %v, want init ProviderError", err)
	}
}

func TestHasCredentials(t *testing.T) {
	tests := []struct {
		provider string
		pc       config.ProviderConfig
		want     bool
	}{
		{config.ProviderAWS, config.ProviderConfig{AccessKey: "a"}, false},
		{config.ProviderAWS, config.ProviderConfig{AccessKey: "a", SecretKey: "b"}, true},
		{config.ProviderGCP, config.ProviderConfig{CredentialsFile: "/x.json"}, false},
		{config.ProviderGCP, config.ProviderConfig{ProjectID: "p"}, true},
		{config.ProviderYandexCloud, config.ProviderConfig{APIKey: "t"}, false},
		{config.ProviderYandexCloud, config.ProviderConfig{APIKey: "t", FolderID: "f"}, true},
		{config.ProviderHetzner, config.ProviderConfig{}, false},
		{config.ProviderLinode, config.ProviderConfig{APIKey: "t"}, true},
	}
	for _, tt := range tests {
		if got := HasCredentials(tt.provider, tt.pc); got != tt.want {
			t.Errorf("HasCredentials(%s, %+v) = %v, want %v", tt.provider, tt.pc, got, tt.want)
		}
	}
}

func TestDefaultFactoriesCoverKnownProviders(t *testing.T) {
	factories := DefaultFactories()
	for _, name := range config.ProviderNames {
		if _, ok := factories[name]; !ok {
			t.Errorf("no factory for %s", name)
		}
	}
}
