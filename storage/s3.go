package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/CefBoud/monsink/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const s3OpTimeout = 60 * time.Second

type awsS3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage maps paths to object keys in one bucket. Objects are uploaded
// whole when their writer is closed, so Append is unsupported.
type S3Storage struct {
	bucket string
	api    awsS3API
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage returns an AWS-backed Storage.
func NewS3Storage(ctx context.Context, cfg types.StorageConfig) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3 region required")
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3StorageWithAPI(cfg.Bucket, client), nil
}

func newS3StorageWithAPI(bucket string, api awsS3API) *S3Storage {
	return &S3Storage{bucket: bucket, api: api}
}

func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "/")
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s3OpTimeout)
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// Exists reports whether an object exists at path, or any object below it.
func (s *S3Storage) Exists(p string) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objectKey(p))})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("head object %s: %w", objectKey(p), err)
	}
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(objectKey(p) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list objects %s: %w", objectKey(p), err)
	}
	return len(out.Contents) > 0, nil
}

// Mkdirs is a no-op: object stores have no directories.
func (s *S3Storage) Mkdirs(string) error {
	return nil
}

// Open downloads the object at path.
func (s *S3Storage) Open(p string) (io.ReadCloser, error) {
	ctx, cancel := opContext()
	defer cancel()
	key := objectKey(p)
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create returns a writer that uploads the object on Close.
func (s *S3Storage) Create(p string) (io.WriteCloser, error) {
	return &s3Object{storage: s, key: objectKey(p)}, nil
}

// Append is not supported by object stores.
func (s *S3Storage) Append(p string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("append %v: %w", p, ErrUnsupported)
}

// Delete removes the object at path.
func (s *S3Storage) Delete(p string) error {
	ctx, cancel := opContext()
	defer cancel()
	key := objectKey(p)
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Move copies src to dst then deletes src.
func (s *S3Storage) Move(src, dst string) error {
	ctx, cancel := opContext()
	defer cancel()
	srcKey, dstKey := objectKey(src), objectKey(dst)
	_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy object %s: %w", srcKey, ErrNotFound)
		}
		return fmt.Errorf("copy object %s: %w", srcKey, err)
	}
	return s.Delete(src)
}

// List returns objects and common prefixes directly under dir.
func (s *S3Storage) List(dir string) ([]string, error) {
	ctx, cancel := opContext()
	defer cancel()
	prefix := objectKey(dir) + "/"
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	var paths []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			paths = append(paths, filepath.Join(dir, strings.TrimPrefix(aws.ToString(obj.Key), prefix)))
		}
		for _, cp := range page.CommonPrefixes {
			child := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			paths = append(paths, filepath.Join(dir, child))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Close is a no-op.
func (s *S3Storage) Close() error {
	return nil
}

type s3Object struct {
	storage *S3Storage
	key     string
	buf     bytes.Buffer
	closed  bool
}

func (o *s3Object) Write(p []byte) (int, error) {
	if o.closed {
		return 0, fmt.Errorf("write %s: object already uploaded", o.key)
	}
	return o.buf.Write(p)
}

func (o *s3Object) Close() error {
	if o.closed {
		return nil
	}
	ctx, cancel := opContext()
	defer cancel()
	_, err := o.storage.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.storage.bucket),
		Key:    aws.String(o.key),
		Body:   bytes.NewReader(o.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", o.key, err)
	}
	o.closed = true
	return nil
}

// Abort drops the buffered object without uploading it.
func (o *s3Object) Abort() error {
	o.closed = true
	o.buf.Reset()
	return nil
}
