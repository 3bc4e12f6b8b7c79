package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"gmab/internal/logging"
)

// Names of the network resources gmab creates once per region and reuses.
const (
	awsVPCName           = "gmab-vpc"
	awsGatewayName       = "gmab-igw"
	awsSubnetName        = "gmab-subnet"
	awsRouteTableName    = "gmab-rt"
	awsSecurityGroupName = "gmab-sg"

	awsVPCCIDR    = "10.0.0.0/16"
	awsSubnetCIDR = "10.0.1.0/24"
)

// awsNetwork is where instances are launched
type awsNetwork struct {
	VPCID           string
	SubnetID        string
	SecurityGroupID string
}

// ensureNetwork returns the gmab VPC, subnet and security group, creating
// whatever is missing.
func ensureNetwork(ctx context.Context, client ec2API) (*awsNetwork, error) {
	vpcID, err := ensureVPC(ctx, client)
	if err != nil {
		return nil, err
	}

	subnetID, err := ensureSubnet(ctx, client, vpcID)
	if err != nil {
		return nil, err
	}

	sgID, err := ensureSecurityGroup(ctx, client, vpcID)
	if err != nil {
		return nil, err
	}

	return &awsNetwork{VPCID: vpcID, SubnetID: subnetID, SecurityGroupID: sgID}, nil
}

func ensureVPC(ctx context.Context, client ec2API) (string, error) {
	out, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{nameFilter(awsVPCName)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe VPCs: %w", err)
	}
	if len(out.Vpcs) > 0 {
		return aws.ToString(out.Vpcs[0].VpcId), nil
	}

	logging.Logger().Info("creating VPC", zap.String("name", awsVPCName))
	created, err := client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(awsVPCCIDR),
		TagSpecifications: nameTags(types.ResourceTypeVpc, awsVPCName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create VPC: %w", err)
	}
	vpcID := aws.ToString(created.Vpc.VpcId)

	waiter := ec2.NewVpcAvailableWaiter(client)
	if err := waiter.Wait(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}}, 2*time.Minute); err != nil {
		return "", fmt.Errorf("failed waiting for VPC %s: %w", vpcID, err)
	}

	if _, err := client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              aws.String(vpcID),
		EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(true)},
	}); err != nil {
		return "", fmt.Errorf("failed to enable DNS hostnames: %w", err)
	}

	igw, err := client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: nameTags(types.ResourceTypeInternetGateway, awsGatewayName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create internet gateway: %w", err)
	}
	igwID := aws.ToString(igw.InternetGateway.InternetGatewayId)

	if _, err := client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	}); err != nil {
		return "", fmt.Errorf("failed to attach internet gateway: %w", err)
	}

	subnetID, err := createSubnet(ctx, client, vpcID)
	if err != nil {
		return "", err
	}

	rt, err := client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(vpcID),
		TagSpecifications: nameTags(types.ResourceTypeRouteTable, awsRouteTableName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create route table: %w", err)
	}
	rtID := aws.ToString(rt.RouteTable.RouteTableId)

	if _, err := client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(rtID),
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(igwID),
	}); err != nil {
		return "", fmt.Errorf("failed to create default route: %w", err)
	}

	if _, err := client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(rtID),
		SubnetId:     aws.String(subnetID),
	}); err != nil {
		return "", fmt.Errorf("failed to associate route table: %w", err)
	}

	return vpcID, nil
}

func ensureSubnet(ctx context.Context, client ec2API, vpcID string) (string, error) {
	out, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			nameFilter(awsSubnetName),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe subnets: %w", err)
	}
	if len(out.Subnets) > 0 {
		return aws.ToString(out.Subnets[0].SubnetId), nil
	}
	return createSubnet(ctx, client, vpcID)
}

func createSubnet(ctx context.Context, client ec2API, vpcID string) (string, error) {
	subnet, err := client.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(awsSubnetCIDR),
		TagSpecifications: nameTags(types.ResourceTypeSubnet, awsSubnetName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create subnet: %w", err)
	}
	subnetID := aws.ToString(subnet.Subnet.SubnetId)

	if _, err := client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(subnetID),
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
	}); err != nil {
		return "", fmt.Errorf("failed to enable public IPs on subnet: %w", err)
	}
	return subnetID, nil
}

func ensureSecurityGroup(ctx context.Context, client ec2API, vpcID string) (string, error) {
	out, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: aws.String("group-name"), Values: []string{awsSecurityGroupName}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe security groups: %w", err)
	}
	if len(out.SecurityGroups) > 0 {
		return aws.ToString(out.SecurityGroups[0].GroupId), nil
	}

	sg, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(awsSecurityGroupName),
		Description: aws.String("Security group for gmab instances"),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create security group: %w", err)
	}
	sgID := aws.ToString(sg.GroupId)

	if _, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(sgID),
		IpPermissions: []types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(22),
				ToPort:     aws.Int32(22),
				IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			},
		},
	}); err != nil {
		return "", fmt.Errorf("failed to allow SSH ingress: %w", err)
	}
	return sgID, nil
}

func nameFilter(name string) types.Filter {
	return types.Filter{Name: aws.String("tag:Name"), Values: []string{name}}
}

func nameTags(rt types.ResourceType, name string) []types.TagSpecification {
	return []types.TagSpecification{
		{
			ResourceType: rt,
			Tags:         []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
		},
	}
}
