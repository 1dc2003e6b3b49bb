package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/ports"
)

// S3Config holds construction parameters for S3Store.
type S3Config struct {
	Region       string
	UploadBucket string
	InputBucket  string
	Endpoint     string // optional; MinIO or localstack
	PathStyle    bool
	CacheDir     string
}

// S3Store downloads submission uploads and round datasets from S3 into a
// local cache directory. Cached files are reused until Cleanup removes them.
type S3Store struct {
	client   *s3.Client
	uploads  string
	inputs   string
	cacheDir string
}

// NewS3Store builds a store from cfg. Extra client options are applied after
// the endpoint settings, which lets tests swap the HTTP transport.
func NewS3Store(ctx context.Context, cfg S3Config, loadOpts []func(*config.LoadOptions) error, clientOpts ...func(*s3.Options)) (*S3Store, error) {
	if cfg.UploadBucket == "" || cfg.InputBucket == "" {
		return nil, fmt.Errorf("s3 upload and input buckets required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("s3 cache dir required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts = append([]func(*config.LoadOptions) error{config.WithRegion(region)}, loadOpts...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	opts := append([]func(*s3.Options){func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}, clientOpts...)

	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &S3Store{
		client:   s3.NewFromConfig(awsCfg, opts...),
		uploads:  cfg.UploadBucket,
		inputs:   cfg.InputBucket,
		cacheDir: cfg.CacheDir,
	}, nil
}

var _ ports.FileStore = (*S3Store)(nil)

func (s *S3Store) DownloadSubmission(ctx context.Context, loc submission.FileLocation) (string, error) {
	dst := UploadPath(s.cacheDir, loc)
	if err := s.fetch(ctx, s.uploads, loc.Key(), dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *S3Store) DownloadRoundDataset(ctx context.Context, round submission.Round) (string, error) {
	dir := DatasetDir(s.cacheDir, round)
	prefix := DatasetPrefix(round)
	for _, name := range DatasetFiles {
		if err := s.fetch(ctx, s.inputs, path.Join(prefix, name), filepath.Join(dir, name)); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// fetch copies bucket/key to dst unless dst is already cached. The body is
// written to a temp file in the same directory and renamed into place so
// concurrent readers never observe a partial file.
func (s *S3Store) fetch(ctx context.Context, bucket, key, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return core.NewNotFoundError("object", bucket+"/"+key)
		}
		return core.NewTransientIOError("get s3://"+bucket+"/"+key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		return core.NewTransientIOError("read s3://"+bucket+"/"+key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move download into cache: %w", err)
	}
	return nil
}

// Cleanup removes cached files older than maxAge and returns how many were
// removed.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	return cleanupDir(ctx, s.cacheDir, maxAge)
}

func cleanupDir(ctx context.Context, root string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to clean cache dir: %w", err)
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
