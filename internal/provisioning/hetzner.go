package provisioning

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
)

// hcloudServerAPI is the subset of hcloud.ServerClient used by HetznerProvisioner
type hcloudServerAPI interface {
	Create(ctx context.Context, opts hcloud.ServerCreateOpts) (hcloud.ServerCreateResult, *hcloud.Response, error)
	AllWithOpts(ctx context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error)
	DeleteWithResult(ctx context.Context, server *hcloud.Server) (*hcloud.ServerDeleteResult, *hcloud.Response, error)
}

// hcloudSSHKeyAPI is the subset of hcloud.SSHKeyClient used by HetznerProvisioner
type hcloudSSHKeyAPI interface {
	All(ctx context.Context) ([]*hcloud.SSHKey, error)
	Create(ctx context.Context, opts hcloud.SSHKeyCreateOpts) (*hcloud.SSHKey, *hcloud.Response, error)
}

// HetznerProvisioner implements the Provisioner interface for Hetzner Cloud
type HetznerProvisioner struct {
	servers hcloudServerAPI
	sshKeys hcloudSSHKeyAPI
}

// NewHetznerProvisioner creates a new instance of HetznerProvisioner
func NewHetznerProvisioner(pc config.ProviderConfig) (*HetznerProvisioner, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("hetzner api_key is required")
	}

	client := hcloud.NewClient(
		hcloud.WithToken(pc.APIKey),
		hcloud.WithHTTPClient(newHTTPClient()),
		hcloud.WithApplication("gmab", Version),
	)

	return &HetznerProvisioner{
		servers: &client.Server,
		sshKeys: &client.SSHKey,
	}, nil
}

// Name returns the provider name
func (p *HetznerProvisioner) Name() string {
	return config.ProviderHetzner
}

// Create creates a new server
func (p *HetznerProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	key, err := p.ensureSSHKey(ctx, spec.SSHPublicKey)
	if err != nil {
		return nil, err
	}

	stamp := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}

	result, _, err := p.servers.Create(ctx, hcloud.ServerCreateOpts{
		Name:       spec.Label,
		ServerType: &hcloud.ServerType{Name: spec.Type},
		Image:      &hcloud.Image{Name: spec.Image},
		Location:   &hcloud.Location{Name: spec.Region},
		SSHKeys:    []*hcloud.SSHKey{key},
		Labels:     stamp.Labels(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	if result.Server == nil {
		return nil, fmt.Errorf("failed to create server: empty response")
	}

	mapped := hetznerInstance(result.Server)
	if mapped.Image == "" {
		mapped.Image = spec.Image
	}
	if mapped.Region == "" {
		mapped.Region = spec.Region
	}
	return &mapped, nil
}

// ensureSSHKey returns the project key with the given content, uploading it if needed
func (p *HetznerProvisioner) ensureSSHKey(ctx context.Context, publicKey string) (*hcloud.SSHKey, error) {
	keys, err := p.sshKeys.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list SSH keys: %w", err)
	}

	want := keyMaterial(publicKey)
	for _, k := range keys {
		if keyMaterial(k.PublicKey) == want {
			return k, nil
		}
	}

	key, _, err := p.sshKeys.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      keyName(),
		PublicKey: publicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH key: %w", err)
	}
	return key, nil
}

// List returns servers labelled by gmab
func (p *HetznerProvisioner) List(ctx context.Context) ([]Instance, error) {
	servers, err := p.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: lifecycle.MarkerKey},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	instances := make([]Instance, 0, len(servers))
	for _, s := range servers {
		instances = append(instances, hetznerInstance(s))
	}
	return instances, nil
}

// Delete deletes a server by ID or name
func (p *HetznerProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, err := findInstance(ctx, p, idOrLabel)
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(target.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid server ID %q: %w", target.ID, err)
	}

	if _, _, err := p.servers.DeleteWithResult(ctx, &hcloud.Server{ID: id}); err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return nil
}

func hetznerInstance(s *hcloud.Server) Instance {
	stamp := lifecycle.FromLabels(s.Labels, s.Created)

	region := ""
	if s.Datacenter != nil && s.Datacenter.Location != nil {
		region = s.Datacenter.Location.Name
	}
	image := ""
	if s.Image != nil {
		image = s.Image.Name
		if image == "" {
			image = s.Image.Description
		}
	}
	ip := ""
	if v4 := s.PublicNet.IPv4.IP; v4 != nil && !v4.IsUnspecified() {
		ip = v4.String()
	}

	return Instance{
		Provider:        config.ProviderHetzner,
		ID:              strconv.FormatInt(s.ID, 10),
		Label:           s.Name,
		IP:              ip,
		Status:          string(s.Status),
		State:           lifecycle.NormalizeState(string(s.Status)),
		Region:          region,
		Image:           image,
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}

// keyMaterial strips the comment from an authorized_keys line
func keyMaterial(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return strings.TrimSpace(line)
	}
	return fields[0] + " " + fields[1]
}
