package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/desertthunder/listsync/internal/shared"
)

// GetObjectAPI is the part of the S3 client used to read a CSV object.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// OpenS3CSV streams s3://bucket/key as CSV. The object body is closed with the reader.
func OpenS3CSV(ctx context.Context, client GetObjectAPI, bucket, key, delimiter string) (*CSVReader, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 source needs bucket and key", shared.ErrInvalidConfig)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s does not exist", shared.ErrInvalidInput, bucket, key)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}

	r, err := NewCSVReader(out.Body, delimiter, out.Body)
	if err != nil {
		out.Body.Close()
		return nil, err
	}
	return r, nil
}
