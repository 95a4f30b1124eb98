package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultSignedURLTTL = 10 * time.Minute

type presignGetAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Presigner issues time-limited GET URLs for mirrored case media.
type S3Presigner struct {
	api presignGetAPI
}

// NewS3Presigner wraps an S3 client in a presign client.
func NewS3Presigner(client *s3.Client) *S3Presigner {
	return &S3Presigner{api: s3.NewPresignClient(client)}
}

// PresignGet returns a URL for bucket/key valid for ttl.
func (p *S3Presigner) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	req, err := p.api.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("resources: presign %s: %w", key, err)
	}
	return req.URL, nil
}
