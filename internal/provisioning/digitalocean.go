package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/digitalocean/godo"
	"golang.org/x/crypto/ssh"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
)

const doPollInterval = 5 * time.Second

// DOProvisioner implements the Provisioner interface for DigitalOcean
type DOProvisioner struct {
	droplets godo.DropletsService
	keys     godo.KeysService

	pollInterval time.Duration
}

// NewDOProvisioner creates a new instance of DOProvisioner
func NewDOProvisioner(pc config.ProviderConfig) (*DOProvisioner, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("digitalocean api_key is required")
	}

	client := godo.NewFromToken(pc.APIKey)
	return &DOProvisioner{
		droplets:     client.Droplets,
		keys:         client.Keys,
		pollInterval: doPollInterval,
	}, nil
}

// Name returns the provider name
func (p *DOProvisioner) Name() string {
	return config.ProviderDigitalOcean
}

// Create creates a new droplet and waits for it to become active
func (p *DOProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	fingerprint, err := p.ensureSSHKey(ctx, spec.SSHPublicKey)
	if err != nil {
		return nil, err
	}

	stamp := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}

	droplet, _, err := p.droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:    spec.Label,
		Region:  spec.Region,
		Size:    spec.Type,
		Image:   godo.DropletCreateImage{Slug: spec.Image},
		SSHKeys: []godo.DropletCreateSSHKey{{Fingerprint: fingerprint}},
		Tags:    stamp.Tags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create droplet: %w", err)
	}

	// Wait for droplet to be active; the public IP is assigned on boot
	for {
		d, _, err := p.droplets.Get(ctx, droplet.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get droplet: %w", err)
		}
		if d.Status == "active" {
			mapped := doInstance(*d)
			return &mapped, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for droplet to be active: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

// ensureSSHKey registers the key with the account unless it already exists
func (p *DOProvisioner) ensureSSHKey(ctx context.Context, publicKey string) (string, error) {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(publicKey))
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	fingerprint := ssh.FingerprintLegacyMD5(parsed)

	if _, _, err := p.keys.GetByFingerprint(ctx, fingerprint); err == nil {
		return fingerprint, nil
	} else if !isDONotFound(err) {
		return "", fmt.Errorf("failed to look up SSH key: %w", err)
	}

	if _, _, err := p.keys.Create(ctx, &godo.KeyCreateRequest{
		Name:      keyName(),
		PublicKey: publicKey,
	}); err != nil {
		return "", fmt.Errorf("failed to create SSH key: %w", err)
	}
	return fingerprint, nil
}

// List returns droplets tagged by gmab
func (p *DOProvisioner) List(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	opt := &godo.ListOptions{PerPage: 200}
	for {
		droplets, resp, err := p.droplets.ListByTag(ctx, lifecycle.MarkerKey, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list droplets: %w", err)
		}
		for _, d := range droplets {
			instances = append(instances, doInstance(d))
		}

		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, fmt.Errorf("failed to read droplet page: %w", err)
		}
		opt.Page = page + 1
	}
	return instances, nil
}

// Delete deletes a droplet by ID or name
func (p *DOProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, err := findInstance(ctx, p, idOrLabel)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(target.ID)
	if err != nil {
		return fmt.Errorf("invalid droplet ID %q: %w", target.ID, err)
	}

	if _, err := p.droplets.Delete(ctx, id); err != nil {
		if isDONotFound(err) {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to delete droplet: %w", err)
	}
	return nil
}

func doInstance(d godo.Droplet) Instance {
	created, _ := time.Parse(time.RFC3339, d.Created)
	stamp := lifecycle.FromTags(d.Tags, created)

	ip, _ := d.PublicIPv4()
	region := ""
	if d.Region != nil {
		region = d.Region.Slug
	}
	image := ""
	if d.Image != nil {
		image = d.Image.Slug
		if image == "" {
			image = d.Image.Name
		}
	}

	return Instance{
		Provider:        config.ProviderDigitalOcean,
		ID:              strconv.Itoa(d.ID),
		Label:           d.Name,
		IP:              ip,
		Status:          d.Status,
		State:           lifecycle.NormalizeState(d.Status),
		Region:          region,
		Image:           image,
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}

func isDONotFound(err error) bool {
	var errResp *godo.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}
