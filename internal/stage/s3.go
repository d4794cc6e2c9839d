package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object-store connection settings. The bucket is fixed per
// stage session; blob names carry the dataset/table hierarchy.
type Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	UseSSL          bool
}

// S3Stage implements Stage against MinIO or any S3-compatible endpoint.
type S3Stage struct {
	client *minio.Client
	cfg    *Config
}

// NewS3Stage creates a stage session from config.
func NewS3Stage(cfg *Config) (*S3Stage, error) {
	if cfg == nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("config is required"))
	}
	if cfg.EndpointURL == "" {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("endpointUrl is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("credentials are required"))
	}
	if cfg.Bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket is required"))
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL
	if u.Scheme == "https" {
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("failed to create minio client: %w", err))
	}
	return &S3Stage{client: client, cfg: cfg}, nil
}

func (s *S3Stage) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Stage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
	if err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Stage) Upload(ctx context.Context, blob string, data []byte) error {
	return s.UploadStream(ctx, blob, bytes.NewReader(data), int64(len(data)))
}

func (s *S3Stage) UploadStream(ctx context.Context, blob string, r io.Reader, size int64) error {
	if blob == "" {
		return wrapError(CodeStageWriteFailed, false, fmt.Errorf("blob name is required"))
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, blob, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Stage) Download(ctx context.Context, blob string) ([]byte, error) {
	rc, err := s.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, classifyMinioError(err)
	}
	return data, nil
}

func (s *S3Stage) Open(ctx context.Context, blob string) (io.ReadCloser, error) {
	if blob == "" {
		return nil, wrapError(CodeObjectNotFound, false, fmt.Errorf("blob name is required"))
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, blob, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err)
	}
	// GetObject is lazy; a missing key only surfaces on first read. Stat now
	// so callers get E_OBJECT_NOT_FOUND instead of a mid-stream failure.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, classifyMinioError(err)
	}
	return obj, nil
}

func (s *S3Stage) Delete(ctx context.Context, blob string) (bool, error) {
	if blob == "" {
		return false, nil
	}
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, blob, minio.StatObjectOptions{})
	if err != nil {
		coded := classifyMinioError(err)
		if coded.Code == CodeObjectNotFound {
			return false, nil
		}
		return false, coded
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, blob, minio.RemoveObjectOptions{}); err != nil {
		return false, classifyMinioError(err)
	}
	return true, nil
}

func (s *S3Stage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	objectCh := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objectCh {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3Stage) SignedURL(ctx context.Context, blob, method string, ttl time.Duration) (string, error) {
	if blob == "" {
		return "", wrapError(CodeObjectNotFound, false, fmt.Errorf("blob name is required"))
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	var u *url.URL
	var err error
	switch strings.ToUpper(method) {
	case "GET", "":
		u, err = s.client.PresignedGetObject(ctx, s.cfg.Bucket, blob, ttl, url.Values{})
	case "PUT":
		u, err = s.client.PresignedPutObject(ctx, s.cfg.Bucket, blob, ttl)
	default:
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("unsupported method %q", method))
	}
	if err != nil {
		return "", classifyMinioError(err)
	}
	return u.String(), nil
}

// classifyMinioError converts minio-go errors to our structured Error type.
func classifyMinioError(err error) *Error {
	if err == nil {
		return nil
	}

	if minioErr, ok := err.(minio.ErrorResponse); ok {
		switch minioErr.Code {
		case "NoSuchBucket":
			return wrapError(CodeBucketNotFound, false, err)
		case "NoSuchKey":
			return wrapError(CodeObjectNotFound, false, err)
		case "AccessDenied":
			return wrapError(CodePermissionDenied, false, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return wrapError(CodeAuthInvalid, false, err)
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such bucket"):
		return wrapError(CodeBucketNotFound, false, err)
	case strings.Contains(errStr, "no such key"),
		strings.Contains(errStr, "not found"),
		strings.Contains(errStr, "does not exist"):
		return wrapError(CodeObjectNotFound, false, err)
	case strings.Contains(errStr, "access denied"), strings.Contains(errStr, "permission"):
		return wrapError(CodePermissionDenied, false, err)
	case strings.Contains(errStr, "invalid access key"),
		strings.Contains(errStr, "signature"),
		strings.Contains(errStr, "authentication"):
		return wrapError(CodeAuthInvalid, false, err)
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "unreachable"),
		strings.Contains(errStr, "no such host"):
		return wrapError(CodeEndpointUnreachable, true, err)
	}
	return wrapError(CodeStageWriteFailed, true, err)
}
