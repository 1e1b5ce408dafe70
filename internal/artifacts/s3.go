package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Store is an S3-backed artifact store.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Store creates an artifact store on the given bucket. Objects are
// keyed as <prefix><agencyID>/<clientID>/<filename>.
func NewS3Store(cfg aws.Config, bucket, prefix string, logger zerolog.Logger) *S3Store {
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "artifacts").Logger(),
	}
}

func (s *S3Store) key(path string) string {
	return s.prefix + path
}

// Put stores an artifact at path.
func (s *S3Store) Put(ctx context.Context, path, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put artifact to S3: %w", err)
	}
	return nil
}

// Get fetches the artifact at path.
func (s *S3Store) Get(ctx context.Context, path string) (*Artifact, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact from S3: %w", err)
	}
	defer func() {
		if cerr := out.Body.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Str("path", path).Msg("failed to close S3 object body")
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil {
		contentType = *out.ContentType
	}

	return &Artifact{
		Path:        path,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// Delete removes the artifact at path.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact from S3: %w", err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to head artifact bucket: %w", err)
	}
	return nil
}
