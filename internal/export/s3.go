package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nvandessel/colonysim/internal/config"
)

// S3Sink stores archives in a single S3 (or S3-compatible) bucket.
// Keys are placed under the configured prefix.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates an S3 sink from cfg. Empty credentials fall back to the
// AWS default chain.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	return newS3Sink(ctx, cfg, nil)
}

// newS3Sink lets tests substitute the HTTP client.
func newS3Sink(ctx context.Context, cfg config.S3Config, httpClient *http.Client) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *S3Sink) objectKey(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + k, nil
}

// Put uploads the object. The body is buffered so the SDK can sign it.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader, contentType string) (ObjectInfo, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("reading %s: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return ObjectInfo{}, fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, objKey, err)
	}
	return ObjectInfo{Key: key, Size: int64(len(body))}, nil
}

// Get downloads the object.
func (s *S3Sink) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey)})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", s.bucket, objKey, err)
	}
	return out.Body, nil
}

// List pages through ListObjectsV2 under the sink prefix.
func (s *S3Sink) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	full := s.prefix + prefix
	var out []ObjectInfo
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, full, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), s.prefix),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(page.IsTruncated) && page.NextContinuationToken != nil {
			token = page.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object. S3 deletes are idempotent, so a missing key
// is not reported.
func (s *S3Sink) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey)}); err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", s.bucket, objKey, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
