package archiver

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of the S3 client the mirror uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads archived files to s3://bucket/prefix/<name>.
type S3Mirror struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Mirror loads the default AWS credential chain for region.
func NewS3Mirror(ctx context.Context, bucket, prefix, region string) (*S3Mirror, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Mirror{client: s3.NewFromConfig(awsCfg), bucket: bucket, prefix: prefix}, nil
}

// Key returns the object key for an archived file name.
func (m *S3Mirror) Key(name string) string {
	p := strings.Trim(m.prefix, "/")
	if p == "" {
		return name
	}
	return path.Join(p, name)
}

// Upload puts the file at localPath under Key(name).
func (m *S3Mirror) Upload(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := m.Key(name)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}
