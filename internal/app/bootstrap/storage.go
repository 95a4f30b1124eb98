package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
)

// BuildS3Client returns the client for the case asset bucket. LocalStack
// needs path-style addressing.
func BuildS3Client(awsCfg aws.Config, cfg *appconfig.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg != nil && strings.TrimSpace(cfg.AWSEndpointOverride) != "" {
			o.UsePathStyle = true
		}
	})
}
