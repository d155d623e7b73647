package export

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/picklr-io/deployr/internal/ir"
)

// ParameterStore publishes deployment addresses to a key-value store.
type ParameterStore interface {
	PutAddress(ctx context.Context, prefix string, rec *ir.DeploymentRecord) error
}

type ssmAPI interface {
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSM writes addresses to AWS Systems Manager Parameter Store.
type SSM struct {
	client ssmAPI
}

// NewSSM loads the default AWS configuration for region.
func NewSSM(ctx context.Context, region string) (*SSM, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &SSM{client: ssm.NewFromConfig(cfg)}, nil
}

// ParameterName returns /<prefix>/<networkId>/<name>/address.
func ParameterName(prefix string, rec *ir.DeploymentRecord) string {
	return path.Join("/", prefix, strconv.FormatUint(rec.NetworkID, 10), rec.Name, "address")
}

func (s *SSM) PutAddress(ctx context.Context, prefix string, rec *ir.DeploymentRecord) error {
	name := ParameterName(prefix, rec)
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(rec.Address),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter %s: %w", name, err)
	}
	return nil
}
