package provisioning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yandex-cloud/go-genproto/yandex/cloud/compute/v1"
	"github.com/yandex-cloud/go-genproto/yandex/cloud/operation"
	"github.com/yandex-cloud/go-genproto/yandex/cloud/vpc/v1"
	ycsdk "github.com/yandex-cloud/go-sdk"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
	"gmab/internal/logging"
)

const (
	yandexImageLabel    = "gmab-image"
	yandexDiskSizeGB    = 20
	yandexImageFamily   = "ubuntu-24-04-lts"
	yandexImageFolder   = "standard-images"
	yandexFallbackImage = "fd82odtq5h79jo7ffss3"
)

// yandexType is a parsed default_type: "<platform>:<cores>:<memoryGB>"
type yandexType struct {
	Platform string
	Cores    int64
	MemoryGB int64
}

func parseYandexType(s string) (yandexType, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" {
		return yandexType{}, fmt.Errorf("invalid yandex instance type %q, want <platform>:<cores>:<memoryGB>", s)
	}
	cores, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || cores <= 0 {
		return yandexType{}, fmt.Errorf("invalid core count in yandex instance type %q", s)
	}
	memory, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || memory <= 0 {
		return yandexType{}, fmt.Errorf("invalid memory size in yandex instance type %q", s)
	}
	return yandexType{Platform: parts[0], Cores: cores, MemoryGB: memory}, nil
}

// ycInstanceAPI is the subset of the SDK's compute instance client used by YcProvisioner
type ycInstanceAPI interface {
	Create(ctx context.Context, in *compute.CreateInstanceRequest, opts ...grpc.CallOption) (*operation.Operation, error)
	List(ctx context.Context, in *compute.ListInstancesRequest, opts ...grpc.CallOption) (*compute.ListInstancesResponse, error)
	Delete(ctx context.Context, in *compute.DeleteInstanceRequest, opts ...grpc.CallOption) (*operation.Operation, error)
}

type ycSubnetAPI interface {
	List(ctx context.Context, in *vpc.ListSubnetsRequest, opts ...grpc.CallOption) (*vpc.ListSubnetsResponse, error)
}

type ycImageAPI interface {
	GetLatestByFamily(ctx context.Context, in *compute.GetImageLatestByFamilyRequest, opts ...grpc.CallOption) (*compute.Image, error)
}

// ycOperationAPI waits for long-running operations
type ycOperationAPI interface {
	Wait(ctx context.Context, op *operation.Operation) error
	// WaitResponse waits and returns the operation's response message
	WaitResponse(ctx context.Context, op *operation.Operation) (any, error)
}

// sdkOperations implements ycOperationAPI on top of the SDK's operation poller
type sdkOperations struct {
	sdk *ycsdk.SDK
}

func (o sdkOperations) Wait(ctx context.Context, pop *operation.Operation) error {
	op, err := o.sdk.WrapOperation(pop, nil)
	if err != nil {
		return fmt.Errorf("failed to wrap operation: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for operation: %w", err)
	}
	return nil
}

func (o sdkOperations) WaitResponse(ctx context.Context, pop *operation.Operation) (any, error) {
	op, err := o.sdk.WrapOperation(pop, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap operation: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for operation: %w", err)
	}
	resp, err := op.Response()
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return resp, nil
}

// YcProvisioner implements the Provisioner interface for Yandex Cloud
type YcProvisioner struct {
	instances  ycInstanceAPI
	subnets    ycSubnetAPI
	images     ycImageAPI
	operations ycOperationAPI
	folderID   string
}

// NewYcProvisioner creates a new instance of YcProvisioner
func NewYcProvisioner(ctx context.Context, pc config.ProviderConfig) (*YcProvisioner, error) {
	if pc.APIKey == "" || pc.FolderID == "" {
		return nil, fmt.Errorf("yandex api_key and folder_id are required")
	}

	sdk, err := ycsdk.Build(ctx, ycsdk.Config{
		Credentials: ycsdk.NewIAMTokenCredentials(pc.APIKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SDK: %w", err)
	}

	return &YcProvisioner{
		instances:  sdk.Compute().Instance(),
		subnets:    sdk.VPC().Subnet(),
		images:     sdk.Compute().Image(),
		operations: sdkOperations{sdk: sdk},
		folderID:   pc.FolderID,
	}, nil
}

// Name returns the provider name
func (p *YcProvisioner) Name() string {
	return config.ProviderYandexCloud
}

// Create creates a new VM in Yandex Cloud
func (p *YcProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	vmType, err := parseYandexType(spec.Type)
	if err != nil {
		return nil, err
	}

	subnetID, err := p.findSubnet(ctx, spec.Region)
	if err != nil {
		return nil, err
	}

	imageID := spec.Image
	if imageID == "" {
		imageID = p.getDefaultImage(ctx)
	}

	userData, err := GenerateCloudConfig(spec.SSHUser, keyMaterial(spec.SSHPublicKey))
	if err != nil {
		return nil, err
	}

	labels := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}.Labels()
	labels[yandexImageLabel] = imageID

	request := &compute.CreateInstanceRequest{
		FolderId:   p.folderID,
		Name:       spec.Label,
		ZoneId:     spec.Region,
		PlatformId: vmType.Platform,
		Labels:     labels,
		ResourcesSpec: &compute.ResourcesSpec{
			Cores:  vmType.Cores,
			Memory: vmType.MemoryGB * 1024 * 1024 * 1024,
		},
		BootDiskSpec: &compute.AttachedDiskSpec{
			AutoDelete: true,
			Disk: &compute.AttachedDiskSpec_DiskSpec_{
				DiskSpec: &compute.AttachedDiskSpec_DiskSpec{
					TypeId: "network-hdd",
					Size:   yandexDiskSizeGB * 1024 * 1024 * 1024,
					Source: &compute.AttachedDiskSpec_DiskSpec_ImageId{
						ImageId: imageID,
					},
				},
			},
		},
		NetworkInterfaceSpecs: []*compute.NetworkInterfaceSpec{
			{
				SubnetId: subnetID,
				PrimaryV4AddressSpec: &compute.PrimaryAddressSpec{
					OneToOneNatSpec: &compute.OneToOneNatSpec{
						IpVersion: compute.IpVersion_IPV4,
					},
				},
			},
		},
		Metadata: map[string]string{
			"user-data": userData,
		},
	}

	pop, err := p.instances.Create(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}

	resp, err := p.operations.WaitResponse(ctx, pop)
	if err != nil {
		return nil, err
	}
	instance, ok := resp.(*compute.Instance)
	if !ok {
		return nil, fmt.Errorf("unexpected operation response %T", resp)
	}

	mapped := yandexInstance(instance)
	return &mapped, nil
}

// List returns folder instances carrying the gmab label
func (p *YcProvisioner) List(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	req := &compute.ListInstancesRequest{FolderId: p.folderID, PageSize: 1000}
	for {
		resp, err := p.instances.List(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to list VMs: %w", err)
		}
		for _, inst := range resp.Instances {
			if !lifecycle.HasMarkerLabel(inst.Labels) {
				continue
			}
			instances = append(instances, yandexInstance(inst))
		}

		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	return instances, nil
}

// Delete deletes a VM by ID or name
func (p *YcProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, err := findInstance(ctx, p, idOrLabel)
	if err != nil {
		return err
	}

	pop, err := p.instances.Delete(ctx, &compute.DeleteInstanceRequest{
		InstanceId: target.ID,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to delete VM: %w", err)
	}

	return p.operations.Wait(ctx, pop)
}

// findSubnet finds a subnet in the specified zone
func (p *YcProvisioner) findSubnet(ctx context.Context, zone string) (string, error) {
	resp, err := p.subnets.List(ctx, &vpc.ListSubnetsRequest{
		FolderId: p.folderID,
		PageSize: 100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list subnets: %w", err)
	}

	for _, subnet := range resp.Subnets {
		if subnet.ZoneId == zone {
			return subnet.Id, nil
		}
	}
	return "", fmt.Errorf("no subnet found in zone %s", zone)
}

// getDefaultImage gets the latest Ubuntu LTS image ID
func (p *YcProvisioner) getDefaultImage(ctx context.Context) string {
	image, err := p.images.GetLatestByFamily(ctx, &compute.GetImageLatestByFamilyRequest{
		FolderId: yandexImageFolder,
		Family:   yandexImageFamily,
	})
	if err != nil {
		logging.Logger().Warn("failed to resolve default image, using fallback",
			zap.String("family", yandexImageFamily),
			zap.Error(err))
		return yandexFallbackImage
	}
	return image.Id
}

func yandexInstance(inst *compute.Instance) Instance {
	var created time.Time
	if inst.CreatedAt != nil {
		created = inst.CreatedAt.AsTime()
	}
	stamp := lifecycle.FromLabels(inst.Labels, created)

	ip := ""
	if len(inst.NetworkInterfaces) > 0 {
		if addr := inst.NetworkInterfaces[0].PrimaryV4Address; addr != nil && addr.OneToOneNat != nil {
			ip = addr.OneToOneNat.Address
		}
	}

	raw := inst.Status.String()
	return Instance{
		Provider:        config.ProviderYandexCloud,
		ID:              inst.Id,
		Label:           inst.Name,
		IP:              ip,
		Status:          raw,
		State:           lifecycle.NormalizeState(raw),
		Region:          inst.ZoneId,
		Image:           inst.Labels[yandexImageLabel],
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}
