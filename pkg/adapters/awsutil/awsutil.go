// Package awsutil loads aws.Config for the Bedrock, S3 and OpenSearch adapters.
package awsutil

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

// LoadConfig resolves region and credentials from the Bedrock settings. Explicit
// keys win over a named profile; with neither the default chain applies.
// region overrides b.Region when non-empty. Retries are disabled.
func LoadConfig(ctx context.Context, b config.BedrockConfig, region string) (aws.Config, error) {
	if region == "" {
		region = b.Region
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
		awsconfig.WithHTTPClient(aotel.HTTPClient(2 * time.Minute)),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	switch {
	case b.AccessKeyID != "" && b.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.AccessKeyID, b.SecretAccessKey, b.SessionToken)))
	case b.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errmodel.Configuration("aws_config", "cannot load AWS configuration: "+err.Error(),
			map[string]any{"region": region, "profile": b.Profile})
	}
	return cfg, nil
}

// CredentialsConfigured reports whether an access key or a profile is set.
func CredentialsConfigured(b config.BedrockConfig) bool {
	return b.AccessKeyID != "" || b.Profile != ""
}
