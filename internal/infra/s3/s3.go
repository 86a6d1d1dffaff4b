package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultRegion = "us-east-1"
	defaultURLTTL = 15 * time.Minute
)

var ErrEmptyKey = errors.New("object key is empty")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	URLTTL    time.Duration
}

// NewClient pins the region so presigning never has to ask the server for the bucket location.
func NewClient(cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}

// URLSigner turns stored object keys (profile photos, message media) into time-limited GET URLs.
type URLSigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewURLSigner(client *minio.Client, bucket string, ttl time.Duration) *URLSigner {
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	return &URLSigner{client: client, bucket: strings.TrimSpace(bucket), ttl: ttl}
}

// Sign returns absolute http(s) references unchanged.
func (s *URLSigner) Sign(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if strings.HasPrefix(key, "https://") || strings.HasPrefix(key, "http://") {
		return key, nil
	}
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return "", fmt.Errorf("s3 bucket is empty")
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return presigned.String(), nil
}
