package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultBlobPrefix = "smartlicensing"

// BlobConfig configures the S3 compatible artifact mirror.
type BlobConfig struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	Region        string
	AccessKeyFile string
	SecretKeyFile string
}

func (c BlobConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// S3Store mirrors artifacts to object storage under prefix/serial/name.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Store(cfg BlobConfig, serial string) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	prefix := strings.TrimSpace(cfg.Prefix)
	accessKeyFile := strings.TrimSpace(cfg.AccessKeyFile)
	secretKeyFile := strings.TrimSpace(cfg.SecretKeyFile)

	if endpoint == "" || bucket == "" || accessKeyFile == "" || secretKeyFile == "" {
		return nil, fmt.Errorf("missing blob configuration")
	}

	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	if prefix == "" {
		prefix = DefaultBlobPrefix
	}
	return &S3Store{client: client, bucket: bucket, prefix: path.Join(prefix, serial)}, nil
}

func (s *S3Store) Save(ctx context.Context, name string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.key(name), err)
	}
	return nil
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
