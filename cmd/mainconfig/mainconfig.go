// Package mainconfig holds start-up wiring shared by the binaries.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
)

// NeedsAWS reports whether Bedrock extraction, SES email or the S3
// transcript archive is selected. Auto email only reaches SES when SendGrid
// is not configured.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg.LLMProvider == "bedrock" || cfg.EmailProvider == "ses" || cfg.TranscriptArchiveBucket != "" {
		return true
	}
	return cfg.EmailProvider == "auto" &&
		strings.TrimSpace(cfg.SESFromEmail) != "" &&
		strings.TrimSpace(cfg.SendGridAPIKey) == ""
}

// LoadAWSConfig builds the SDK config for cfg.AWSRegion. Static keys win over
// the default chain, and AWS_ENDPOINT_OVERRIDE (LocalStack) becomes the base
// endpoint of every client.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	id, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}
