package dispatch_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gmab/internal/errdefs"
	"gmab/internal/provisioning"
)

// FakeProvisioner is an in-memory provider
type FakeProvisioner struct {
	mu sync.Mutex

	name      string
	instances []provisioning.Instance
	listErr   error
	deleteErr map[string]error

	created []provisioning.InstanceSpec
	deleted []string
	listed  int
}

func NewFakeProvisioner(name string, instances ...provisioning.Instance) *FakeProvisioner {
	for i := range instances {
		instances[i].Provider = name
	}
	return &FakeProvisioner{name: name, instances: instances, deleteErr: map[string]error{}}
}

func (f *FakeProvisioner) Name() string { return f.name }

func (f *FakeProvisioner) Create(_ context.Context, spec provisioning.InstanceSpec) (*provisioning.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	inst := provisioning.Instance{
		Provider:        f.name,
		ID:              "new-1",
		Label:           spec.Label,
		IP:              "203.0.113.1",
		Status:          "provisioning",
		State:           "pending",
		Region:          spec.Region,
		Image:           spec.Image,
		CreatedAt:       spec.CreatedAt,
		LifetimeMinutes: spec.LifetimeMinutes,
	}
	f.instances = append(f.instances, inst)
	return &inst, nil
}

func (f *FakeProvisioner) List(context.Context) ([]provisioning.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]provisioning.Instance, len(f.instances))
	copy(out, f.instances)
	return out, nil
}

func (f *FakeProvisioner) Delete(_ context.Context, idOrLabel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[idOrLabel]; err != nil {
		return err
	}
	for i, inst := range f.instances {
		if inst.Matches(idOrLabel) {
			f.instances = append(f.instances[:i], f.instances[i+1:]...)
			f.deleted = append(f.deleted, idOrLabel)
			return nil
		}
	}
	return errdefs.NotFound("no %s instance '%s'", f.name, idOrLabel)
}

func (f *FakeProvisioner) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// FakeRegistry resolves to FakeProvisioners by name
type FakeRegistry struct {
	adapters        map[string]*FakeProvisioner
	defaultProvider string
	allErr          error
}

func NewFakeRegistry(defaultProvider string, adapters ...*FakeProvisioner) *FakeRegistry {
	r := &FakeRegistry{adapters: map[string]*FakeProvisioner{}, defaultProvider: defaultProvider}
	for _, a := range adapters {
		r.adapters[a.name] = a
	}
	return r
}

func (r *FakeRegistry) Resolve(_ context.Context, name string) (provisioning.Provisioner, error) {
	if name == "" {
		name = r.defaultProvider
	}
	if name == "" {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(""), "no default provider configured")
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, errdefs.ConfigMissing(errdefs.ConfigureHint(name), "provider '%s' is not configured", name)
	}
	return a, nil
}

func (r *FakeRegistry) All(context.Context) ([]provisioning.Provisioner, error) {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]provisioning.Provisioner, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out, r.allErr
}

// FakeConfirmer answers every question the same way
type FakeConfirmer struct {
	Answer    bool
	Err       error
	Questions []string
}

func (c *FakeConfirmer) Confirm(question string, _ bool) (bool, error) {
	c.Questions = append(c.Questions, question)
	return c.Answer, c.Err
}

var errBoom = errors.New("boom")
