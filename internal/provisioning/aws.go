package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"gmab/internal/config"
	"gmab/internal/lifecycle"
	"gmab/internal/logging"
)

const awsRunningTimeout = 5 * time.Minute

// ec2API is the subset of *ec2.Client used by AWSProvisioner
type ec2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttribute(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	ModifySubnetAttribute(ctx context.Context, params *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error)
	CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	AssociateRouteTable(ctx context.Context, params *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
	DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// AWSProvisioner implements the Provisioner interface for AWS EC2
type AWSProvisioner struct {
	defaultRegion string
	listRegions   []string
	clientFor     func(region string) ec2API
}

// NewAWSProvisioner creates a new instance of AWSProvisioner
func NewAWSProvisioner(ctx context.Context, pc config.ProviderConfig) (*AWSProvisioner, error) {
	if pc.AccessKey == "" || pc.SecretKey == "" {
		return nil, fmt.Errorf("aws access_key and secret_key are required")
	}
	region := pc.DefaultRegion
	if region == "" {
		region = config.ProviderDefaults[config.ProviderAWS].DefaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(pc.AccessKey, pc.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSProvisioner{
		defaultRegion: region,
		listRegions:   pc.ListRegions,
		clientFor: func(r string) ec2API {
			return ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.Region = r })
		},
	}, nil
}

// Name returns the provider name
func (p *AWSProvisioner) Name() string {
	return config.ProviderAWS
}

// Create creates a new EC2 instance inside the gmab VPC
func (p *AWSProvisioner) Create(ctx context.Context, spec InstanceSpec) (*Instance, error) {
	region := spec.Region
	if region == "" {
		region = p.defaultRegion
	}
	client := p.clientFor(region)

	network, err := ensureNetwork(ctx, client)
	if err != nil {
		return nil, err
	}

	keyPair := keyName()
	if _, err := client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(keyPair),
		PublicKeyMaterial: []byte(spec.SSHPublicKey),
	}); err != nil {
		return nil, fmt.Errorf("failed to import key pair: %w", err)
	}

	stamp := lifecycle.Stamp{CreatedAt: spec.CreatedAt, LifetimeMinutes: spec.LifetimeMinutes}
	tags := []types.Tag{{Key: aws.String("Name"), Value: aws.String(spec.Label)}}
	for k, v := range stamp.Labels() {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	out, err := client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.Image),
		InstanceType: types.InstanceType(spec.Type),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		KeyName:      aws.String(keyPair),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{
			{
				DeviceIndex:              aws.Int32(0),
				SubnetId:                 aws.String(network.SubnetID),
				Groups:                   []string{network.SecurityGroupID},
				AssociatePublicIpAddress: aws.Bool(true),
			},
		},
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeInstance, Tags: tags},
		},
	})
	if err != nil {
		p.deleteKeyPair(ctx, client, keyPair)
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		p.deleteKeyPair(ctx, client, keyPair)
		return nil, fmt.Errorf("failed to run instance: empty response")
	}
	instanceID := aws.ToString(out.Instances[0].InstanceId)

	describe := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}
	if err := ec2.NewInstanceRunningWaiter(client).Wait(ctx, describe, awsRunningTimeout); err != nil {
		p.cleanupFailedLaunch(ctx, client, instanceID, keyPair)
		return nil, fmt.Errorf("failed waiting for instance %s to run: %w", instanceID, err)
	}

	desc, err := client.DescribeInstances(ctx, describe)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}
	for _, r := range desc.Reservations {
		for _, inst := range r.Instances {
			mapped := awsInstance(inst, region)
			return &mapped, nil
		}
	}
	return nil, fmt.Errorf("instance %s not found after launch", instanceID)
}

// List returns gmab instances in the default region and every list_regions entry
func (p *AWSProvisioner) List(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	for _, region := range p.regions() {
		found, err := p.listRegion(ctx, region)
		if err != nil {
			return nil, err
		}
		instances = append(instances, found...)
	}
	return instances, nil
}

func (p *AWSProvisioner) listRegion(ctx context.Context, region string) ([]Instance, error) {
	var instances []Instance
	paginator := ec2.NewDescribeInstancesPaginator(p.clientFor(region), awsListInput())
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances in %s: %w", region, err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				instances = append(instances, awsInstance(inst, region))
			}
		}
	}
	return instances, nil
}

// Delete terminates an instance and removes the key pair gmab imported for it
func (p *AWSProvisioner) Delete(ctx context.Context, idOrLabel string) error {
	target, keyPair, err := p.resolve(ctx, idOrLabel)
	if err != nil {
		return err
	}
	client := p.clientFor(target.Region)

	if _, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{target.ID},
	}); err != nil {
		if isAWSNotFound(err) {
			return notFound(p.Name(), idOrLabel)
		}
		return fmt.Errorf("failed to terminate instance: %w", err)
	}

	// The key pair goes only once the instance is gone
	if strings.HasPrefix(keyPair, "gmab-key-") {
		p.deleteKeyPair(ctx, client, keyPair)
	}
	return nil
}

// resolve finds the instance and its key pair name across the listed regions
func (p *AWSProvisioner) resolve(ctx context.Context, idOrLabel string) (*Instance, string, error) {
	for _, region := range p.regions() {
		paginator := ec2.NewDescribeInstancesPaginator(p.clientFor(region), awsListInput())
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, "", fmt.Errorf("failed to describe instances in %s: %w", region, err)
			}
			for _, r := range page.Reservations {
				for _, inst := range r.Instances {
					mapped := awsInstance(inst, region)
					if mapped.Matches(idOrLabel) {
						return &mapped, aws.ToString(inst.KeyName), nil
					}
				}
			}
		}
	}
	return nil, "", notFound(p.Name(), idOrLabel)
}

func (p *AWSProvisioner) regions() []string {
	regions := []string{p.defaultRegion}
	for _, r := range p.listRegions {
		if r != "" && r != p.defaultRegion {
			regions = append(regions, r)
		}
	}
	return regions
}

func (p *AWSProvisioner) deleteKeyPair(ctx context.Context, client ec2API, name string) {
	if _, err := client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: aws.String(name)}); err != nil {
		logging.Logger().Warn("failed to delete key pair",
			zap.String("key_name", name),
			zap.Error(err))
	}
}

func (p *AWSProvisioner) cleanupFailedLaunch(ctx context.Context, client ec2API, instanceID, keyPair string) {
	if _, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		logging.Logger().Warn("failed to terminate instance after failed launch",
			zap.String("instance_id", instanceID),
			zap.Error(err))
	}
	p.deleteKeyPair(ctx, client, keyPair)
}

// awsListInput selects gmab instances that still exist
func awsListInput() *ec2.DescribeInstancesInput {
	return &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + lifecycle.MarkerKey), Values: []string{"true"}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	}
}

func awsInstance(inst types.Instance, region string) Instance {
	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}

	var launched time.Time
	if inst.LaunchTime != nil {
		launched = *inst.LaunchTime
	}
	stamp := lifecycle.FromLabels(tags, launched)

	var status string
	if inst.State != nil {
		status = string(inst.State.Name)
	}

	return Instance{
		Provider:        config.ProviderAWS,
		ID:              aws.ToString(inst.InstanceId),
		Label:           tags["Name"],
		IP:              aws.ToString(inst.PublicIpAddress),
		Status:          status,
		State:           lifecycle.NormalizeState(status),
		Region:          region,
		Image:           aws.ToString(inst.ImageId),
		CreatedAt:       stamp.CreatedAt,
		LifetimeMinutes: stamp.LifetimeMinutes,
	}
}

func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed":
			return true
		}
	}
	return false
}
