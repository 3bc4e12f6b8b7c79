package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
)

const (
	gcpImageMetadataKey = "gmab-image"
	gcpPollInterval     = 5 * time.Second
)

// GCPProvisioner implements the Provisioner interface for Google Cloud
type GCPProvisioner struct {
	service     *compute.Service
	projectID   string
	defaultZone string

	pollInterval time.Duration
}

// NewGCPProvisioner creates a new instance of GCPProvisioner. Without a
// credentials file, application default credentials are used.
func NewGCPProvisioner(ctx context.Context, pc config.ProviderConfig, opts ...option.ClientOption) (*GCPProvisioner, error) {
	if pc.ProjectID == "" {
		return nil, fmt.Errorf("gcp project_id is required")
	}
	if pc.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, pc.CredentialsFile))
	}

	service, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}

	return &GCPProvisioner{
		service:      service,
		projectID:    pc.ProjectID,
		defaultZone:  pc.DefaultRegion,
		pollInterval: gcpPollInterval,
	}, nil
}

// Name returns the provider name
func (p *GCPProvisioner) Name() string {
	return config.ProviderGCP
}

// Create creates a new VM in GCP
func (p *GCPProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	zone := spec.Region
	if zone == "" {
		zone = p.defaultZone
	}

	stamp := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}
	sshKeys := fmt.Sprintf("%s:%s", spec.SSHUser, keyMaterial(spec.SSHPublicKey))
	image := spec.Image

	rb := &compute.Instance{
		Name:        spec.Label,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", zone, spec.Type),
		Labels:      stamp.Labels(),
		Disks: []*compute.AttachedDisk{
			{
				AutoDelete: true,
				Boot:       true,
				Type:       "PERSISTENT",
				InitializeParams: &compute.AttachedDiskInitializeParams{
					SourceImage: spec.Image,
				},
			},
		},
		NetworkInterfaces: []*compute.NetworkInterface{
			{
				AccessConfigs: []*compute.AccessConfig{
					{
						Type: "ONE_TO_ONE_NAT",
						Name: "External NAT",
					},
				},
				Network: "global/networks/default",
			},
		},
		Metadata: &compute.Metadata{
			Items: []*compute.MetadataItems{
				{Key: "ssh-keys", Value: &sshKeys},
				{Key: gcpImageMetadataKey, Value: &image},
			},
		},
	}

	op, err := p.service.Instances.Insert(p.projectID, zone, rb).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to insert instance: %w", err)
	}

	if err := p.waitForOperation(ctx, op.Name, zone); err != nil {
		return nil, fmt.Errorf("operation failed: %w", err)
	}

	instance, err := p.service.Instances.Get(p.projectID, zone, spec.Label).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	mapped := gcpInstance(instance)
	return &mapped, nil
}

// List returns labelled instances across all zones of the project
func (p *GCPProvisioner) List(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	call := p.service.Instances.AggregatedList(p.projectID).Filter(fmt.Sprintf("labels.%s = true", lifecycle.MarkerKey))
	err := call.Pages(ctx, func(page *compute.InstanceAggregatedList) error {
		for _, scoped := range page.Items {
			for _, inst := range scoped.Instances {
				if !lifecycle.HasMarkerLabel(inst.Labels) {
					continue
				}
				instances = append(instances, gcpInstance(inst))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// Delete deletes a VM by ID or name in whichever zone it lives
func (p *GCPProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, err := findInstance(ctx, p, idOrLabel)
	if err != nil {
		return err
	}

	op, err := p.service.Instances.Delete(p.projectID, target.Region, target.Label).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	if err := p.waitForOperation(ctx, op.Name, target.Region); err != nil {
		return fmt.Errorf("operation failed: %w", err)
	}
	return nil
}

func (p *GCPProvisioner) waitForOperation(ctx context.Context, opName, zone string) error {
	for {
		op, err := p.service.ZoneOperations.Get(p.projectID, zone, opName).Context(ctx).Do()
		if err != nil {
			return err
		}
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				return fmt.Errorf("operation error: %s", op.Error.Errors[0].Message)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for operation: %w", ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

func gcpInstance(inst *compute.Instance) Instance {
	created, _ := time.Parse(time.RFC3339, inst.CreationTimestamp)
	stamp := lifecycle.FromLabels(inst.Labels, created)

	ip := ""
	if len(inst.NetworkInterfaces) > 0 && len(inst.NetworkInterfaces[0].AccessConfigs) > 0 {
		ip = inst.NetworkInterfaces[0].AccessConfigs[0].NatIP
	}

	image := ""
	if inst.Metadata != nil {
		for _, item := range inst.Metadata.Items {
			if item.Key == gcpImageMetadataKey && item.Value != nil {
				image = *item.Value
			}
		}
	}

	return Instance{
		Provider:        config.ProviderGCP,
		ID:              strconv.FormatUint(inst.Id, 10),
		Label:           inst.Name,
		IP:              ip,
		Status:          inst.Status,
		State:           gcpState(inst.Status),
		Region:          path.Base(inst.Zone),
		Image:           image,
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}

// gcpState translates GCP statuses; TERMINATED there means powered off, not deleted.
func gcpState(status string) string {
	if status == "TERMINATED" {
		return lifecycle.StateStopped
	}
	return lifecycle.NormalizeState(status)
}
