package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/linode/linodego"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
)

// linodeAPI is the subset of *linodego.Client used by LinodeProvisioner
type linodeAPI interface {
	CreateInstance(ctx context.Context, opts linodego.InstanceCreateOptions) (*linodego.Instance, error)
	ListInstances(ctx context.Context, opts *linodego.ListOptions) ([]linodego.Instance, error)
	DeleteInstance(ctx context.Context, linodeID int) error
}

// LinodeProvisioner implements the Provisioner interface for Linode
type LinodeProvisioner struct {
	client   linodeAPI
	rootPass string
}

// NewLinodeProvisioner creates a new instance of LinodeProvisioner
func NewLinodeProvisioner(pc config.ProviderConfig) (*LinodeProvisioner, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("linode api_key is required")
	}

	client := linodego.NewClient(newHTTPClient())
	client.SetToken(pc.APIKey)

	return &LinodeProvisioner{
		client:   &client,
		rootPass: pc.DefaultRootPass,
	}, nil
}

// Name returns the provider name
func (p *LinodeProvisioner) Name() string {
	return config.ProviderLinode
}

// Create creates a new Linode
func (p *LinodeProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	rootPass := p.rootPass
	if rootPass == "" {
		// Linode requires a root password even when login is key-only
		rootPass = uuid.NewString() + "-Gm!"
	}

	stamp := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}
	booted := true

	inst, err := p.client.CreateInstance(ctx, linodego.InstanceCreateOptions{
		Region:         spec.Region,
		Type:           spec.Type,
		Label:          spec.Label,
		Image:          spec.Image,
		RootPass:       rootPass,
		AuthorizedKeys: []string{spec.SSHPublicKey},
		Tags:           stamp.Tags(),
		Booted:         &booted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create linode: %w", err)
	}

	mapped := linodeInstance(*inst)
	return &mapped, nil
}

// List returns Linodes carrying the gmab tag
func (p *LinodeProvisioner) List(ctx context.Context) ([]Instance, error) {
	filter := fmt.Sprintf(`{"tags": %q}`, lifecycle.MarkerKey)
	found, err := p.client.ListInstances(ctx, linodego.NewListOptions(0, filter))
	if err != nil {
		return nil, fmt.Errorf("failed to list linodes: %w", err)
	}

	instances := make([]Instance, 0, len(found))
	for _, inst := range found {
		if !lifecycle.HasMarkerTag(inst.Tags) {
			continue
		}
		instances = append(instances, linodeInstance(inst))
	}
	return instances, nil
}

// Delete deletes a Linode by ID or label
func (p *LinodeProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, err := findInstance(ctx, p, idOrLabel)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(target.ID)
	if err != nil {
		return fmt.Errorf("invalid linode ID %q: %w", target.ID, err)
	}

	if err := p.client.DeleteInstance(ctx, id); err != nil {
		var apiErr *linodego.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to delete linode: %w", err)
	}
	return nil
}

func linodeInstance(inst linodego.Instance) Instance {
	var created time.Time
	if inst.Created != nil {
		created = *inst.Created
	}
	stamp := lifecycle.FromTags(inst.Tags, created)

	ip := ""
	if len(inst.IPv4) > 0 && inst.IPv4[0] != nil {
		ip = inst.IPv4[0].String()
	}

	return Instance{
		Provider:        config.ProviderLinode,
		ID:              strconv.Itoa(inst.ID),
		Label:           inst.Label,
		IP:              ip,
		Status:          string(inst.Status),
		State:           lifecycle.NormalizeState(string(inst.Status)),
		Region:          inst.Region,
		Image:           inst.Image,
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}
