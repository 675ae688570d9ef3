package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// S3Store is the S3-compatible backend: path-style addressing, SigV4
// presigning, conditional PUT tolerant of the "already exists" race
// (content-addressed keys are byte-identical across writers, so a
// conflict there is benign — spec.md §5).
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

// NewS3Store builds an S3-compatible client. endpoint may be empty to use
// AWS's own endpoints; accessKey/secretKey may be empty to fall back to the
// SDK's default credential chain.
func NewS3Store(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, forcePathStyle bool) (*S3Store, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(region))
	if accessKey != "" && secretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = forcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string, contentLength int64) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		IfNoneMatch: aws.String("*"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if contentLength > 0 {
		input.ContentLength = aws.Int64(contentLength)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isConditionalPutConflict(err) {
			slog.Debug("object already present, skipping duplicate write", "key", key)
			return nil
		}
		return errs.Wrap(errs.KindStorage, "s3 put object", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errs.Newf(errs.KindNotFound, "object %q not found", key)
		}
		return nil, errs.Wrap(errs.KindStorage, "s3 get object", err)
	}
	return out.Body, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errs.Wrap(errs.KindStorage, "s3 head object", err)
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return errs.Wrap(errs.KindStorage, "s3 delete object", err)
	}
	return nil
}

func (s *S3Store) Presign(ctx context.Context, op Operation, key string, ttl time.Duration) (string, error) {
	switch op {
	case OperationGet:
		presigned, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", errs.Wrap(errs.KindStorage, "presign get", err)
		}
		return presigned.URL, nil
	case OperationPut:
		presigned, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", errs.Wrap(errs.KindStorage, "presign put", err)
		}
		return presigned.URL, nil
	default:
		return "", errs.Newf(errs.KindInternal, "unsupported presign operation %q", op)
	}
}

// isConditionalPutConflict reports whether err is the S3 response to an
// IfNoneMatch: "*" PUT that lost the race to an existing object.
func isConditionalPutConflict(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusPreconditionFailed ||
			re.HTTPStatusCode() == http.StatusConflict
	}
	return false
}

func isNotFound(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
