package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/edvin/hostbackup/internal/model"
)

// S3 stores artifacts in an S3-compatible bucket (AWS, Ceph RGW, MinIO).
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 storage for the destination described by desc.
func NewS3(desc model.StorageDescriptor) *S3 {
	region := desc.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:                     region,
		Credentials:                credentials.NewStaticCredentialsProvider(desc.AccessKey, desc.SecretKey, ""),
		UsePathStyle:               true,
		RetryMaxAttempts:           1,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if desc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(desc.Endpoint)
	}
	return &S3{
		client: s3.New(opts),
		bucket: desc.Bucket,
		prefix: strings.Trim(desc.Path, "/"),
	}
}

func (s *S3) objectKey(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return k, nil
	}
	return path.Join(s.prefix, k), nil
}

// Write uploads data to key.
func (s *S3) Write(ctx context.Context, key string, data []byte) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", s.Location(key), err)
	}
	return nil
}

// Read downloads key.
func (s *S3) Read(ctx context.Context, key string) ([]byte, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", s.Location(key), ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", s.Location(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.Location(key), err)
	}
	return data, nil
}

// Delete removes key. S3 treats deleting a missing object as success.
func (s *S3) Delete(ctx context.Context, key string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", s.Location(key), err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", s.Location(key), err)
}

// Location returns an s3://bucket/key URL.
func (s *S3) Location(key string) string {
	k, err := s.objectKey(key)
	if err != nil {
		return ""
	}
	return "s3://" + s.bucket + "/" + k
}

// Close is a no-op; the SDK client holds no long-lived connections of its own.
func (s *S3) Close() error { return nil }

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	// Some S3-compatible servers answer HEAD with a bare 404.
	return strings.Contains(err.Error(), "StatusCode: 404")
}
