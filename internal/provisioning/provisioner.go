package provisioning

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InstanceSpec represents the specification for creating a VM
type InstanceSpec struct {
	Label           string
	Region          string
	Image           string
	Type            string
	LifetimeMinutes int
	// CreatedAt is stamped onto the instance; it is the caller's clock, not the provider's
	CreatedAt    time.Time
	SSHPublicKey string
	SSHUser      string
}

// Instance is a snapshot of one provider-reported instance at query time
type Instance struct {
	Provider        string    `json:"provider" yaml:"provider"`
	ID              string    `json:"id" yaml:"id"`
	Label           string    `json:"label" yaml:"label"`
	IP              string    `json:"ip" yaml:"ip"`
	Status          string    `json:"status" yaml:"status"`
	State           string    `json:"state" yaml:"state"`
	Region          string    `json:"region" yaml:"region"`
	Image           string    `json:"image" yaml:"image"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	LifetimeMinutes int       `json:"lifetime_minutes" yaml:"lifetime_minutes"`
}

// Matches reports whether id names this instance by ID or label (case-sensitive).
func (i Instance) Matches(id string) bool {
	return id != "" && (i.ID == id || i.Label == id)
}

// Provisioner defines the interface for managing virtual machines
type Provisioner interface {
	Name() string
	Create(ctx context.Context, spec InstanceSpec) (*Instance, error)
	// List returns only instances created by gmab
	List(ctx context.Context) ([]Instance, error)
	// Delete accepts an instance ID or label
	Delete(ctx context.Context, idOrLabel string) error
}

// NewLabel returns a fresh instance label: "gmab-" and 12 hex characters.
func NewLabel() string {
	return "gmab-" + randomHex(12)
}

// keyName names SSH keys gmab registers with a provider.
func keyName() string {
	return "gmab-key-" + randomHex(8)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// findInstance resolves idOrLabel against a provider's listing.
func findInstance(ctx context.Context, p Provisioner, idOrLabel string) (*Instance, error) {
	instances, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range instances {
		if instances[i].Matches(idOrLabel) {
			return &instances[i], nil
		}
	}
	return nil, notFound(p.Name(), idOrLabel)
}
