package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/vmfstools/govmfs/internal/logger"
	"github.com/vmfstools/govmfs/pkg/vmfs"
	"github.com/vmfstools/govmfs/pkg/volume"
)

// CreateAccessor builds a volume accessor from configuration. The Type
// field selects the implementation; only the matching section is decoded.
//
// extraPaths are extent paths given on the command line; for the file
// accessor they take precedence over the configured ones.
func CreateAccessor(ctx context.Context, cfg *VolumeConfig, extraPaths []string) (vmfs.VolumeAccessor, error) {
	switch cfg.Type {
	case "file":
		return createFileAccessor(cfg.File, extraPaths)
	case "s3":
		return createS3Accessor(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown volume type: %q", cfg.Type)
	}
}

func debugLevel() int {
	if logger.DebugEnabled() {
		return 1
	}
	return 0
}

func createFileAccessor(options map[string]any, extraPaths []string) (vmfs.VolumeAccessor, error) {
	type FileVolumeConfig struct {
		Extents []string `mapstructure:"extents"`
	}

	var volCfg FileVolumeConfig
	if err := mapstructure.Decode(options, &volCfg); err != nil {
		return nil, fmt.Errorf("failed to decode file volume config: %w", err)
	}

	paths := volCfg.Extents
	if len(extraPaths) > 0 {
		paths = extraPaths
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("file volume: no extents given")
	}

	return volume.NewFile(paths, debugLevel()), nil
}

func createS3Accessor(ctx context.Context, options map[string]any) (vmfs.VolumeAccessor, error) {
	type S3VolumeConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Key             string `mapstructure:"key"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var volCfg S3VolumeConfig
	if err := mapstructure.Decode(options, &volCfg); err != nil {
		return nil, fmt.Errorf("failed to decode s3 volume config: %w", err)
	}

	if volCfg.Bucket == "" {
		return nil, fmt.Errorf("s3 volume: bucket is required")
	}
	if volCfg.Key == "" {
		return nil, fmt.Errorf("s3 volume: key is required")
	}
	if volCfg.Region == "" {
		return nil, fmt.Errorf("s3 volume: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(volCfg.Region))

	// Custom endpoint support for MinIO and friends.
	if volCfg.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               volCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if volCfg.AccessKeyID != "" && volCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			volCfg.AccessKeyID, volCfg.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	if volCfg.MaxRetries > 0 {
		maxRetries := volCfg.MaxRetries
		configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxRetries
			})
		}))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if volCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	logger.Info("s3 volume: bucket=%s key=%s region=%s", volCfg.Bucket, volCfg.Key, volCfg.Region)

	return volume.NewS3(ctx, client, volCfg.Bucket, volCfg.Key, debugLevel()), nil
}
