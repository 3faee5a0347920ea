package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Config locates a tile store in a bucket.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional, for S3 compatible services
	Profile  string // shared credentials profile; empty uses the default chain
}

// S3 keeps the disk layout as objects under a key prefix.
type S3 struct {
	blobStore
	bucket string
	prefix string
}

// NewS3Session creates an AWS session for cfg.
func NewS3Session(cfg S3Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.Profile != "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		awsCfg.Credentials = credentials.NewSharedCredentials(path.Join(home, ".aws", "credentials"), cfg.Profile)
	}
	return session.NewSession(awsCfg)
}

// NewS3 opens the store in bucket under prefix.
func NewS3(svc s3iface.S3API, bucket, prefix string) *S3 {
	s := &S3{bucket: bucket, prefix: prefix}
	s.b = &s3Blobs{svc: svc, bucket: bucket, prefix: prefix}
	return s
}

// OpenS3 creates a session from cfg and opens the store.
func OpenS3(cfg S3Config) (*S3, error) {
	sess, err := NewS3Session(cfg)
	if err != nil {
		return nil, err
	}
	return NewS3(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

// Location returns the store's s3:// URL.
func (s *S3) Location() string {
	return "s3://" + path.Join(s.bucket, s.prefix)
}

type s3Blobs struct {
	svc    s3iface.S3API
	bucket string
	prefix string
}

func (b *s3Blobs) key(k string) string {
	if b.prefix == "" {
		return k
	}
	return path.Join(b.prefix, k)
}

func (b *s3Blobs) get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, errNoBlob
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Blobs) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}
