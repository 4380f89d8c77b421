package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// PartSize is the chunk size used for multipart uploads, the S3-mandated
// minimum part size (spec.md §4.B).
const PartSize = 5 * 1024 * 1024

// S3Backend implements the Backend interface for AWS S3 and S3-compatible
// services (MinIO, LocalStack, R2, GCS-interop), with manual control over
// multipart upload so short parts and failed parts are handled exactly per
// spec.md §4.B rather than through the high-level transfer manager.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
	config *Config
}

// NewS3Backend creates a new S3 backend.
func NewS3Backend(cfg *Config) (*S3Backend, error) {
	resolveProvider(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()

	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		credsProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credsProvider),
			config.WithRegion(cfg.Region),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		config: cfg,
	}, nil
}

// Name returns the backend name.
func (s *S3Backend) Name() string { return "s3" }

func (s *S3Backend) buildKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return filepath.Join(s.prefix, name)
}

// classifyError maps an SDK error onto the taxonomy in spec.md §4.B: 404 /
// NoSuchKey is NotFound, 403 is Auth, everything else is Transport.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var nf *types.NoSuchKey
	var nb *types.NoSuchBucket
	if errors.As(err, &nf) || errors.As(err, &nb) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 404:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case 403:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Upload uploads a file, issuing a single PUT for files at or below
// PartSize and a manually-driven multipart upload otherwise.
func (s *S3Backend) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	fileSize := stat.Size()
	key := s.buildKey(remotePath)

	if fileSize <= PartSize {
		return s.uploadSimple(ctx, file, key, fileSize, progress)
	}
	return s.uploadMultipart(ctx, file, key, fileSize, "", progress)
}

// UploadWithContentType is Upload plus an explicit content type, used by
// BackupStore.UploadBackup for the extension-derived content-type mapping.
func (s *S3Backend) UploadWithContentType(ctx context.Context, localPath, remotePath, contentType string, progress ProgressCallback) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	fileSize := stat.Size()
	key := s.buildKey(remotePath)

	if fileSize <= PartSize {
		return s.uploadSimpleTyped(ctx, file, key, fileSize, contentType, progress)
	}
	return s.uploadMultipart(ctx, file, key, fileSize, contentType, progress)
}

func (s *S3Backend) uploadSimple(ctx context.Context, file *os.File, key string, fileSize int64, progress ProgressCallback) error {
	return s.uploadSimpleTyped(ctx, file, key, fileSize, "", progress)
}

func (s *S3Backend) uploadSimpleTyped(ctx context.Context, file *os.File, key string, fileSize int64, contentType string, progress ProgressCallback) error {
	var reader io.Reader = file
	if progress != nil {
		reader = NewProgressReader(file, fileSize, progress)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", classifyError(err))
	}
	return nil
}

// uploadMultipart drives CreateMultipartUpload/UploadPart/CompleteMultipartUpload
// by hand, reading the source file in PartSize chunks, numbering parts from
// 1, and validating that every part but the last meets the minimum size
// (spec.md §4.B). Any failure aborts the upload explicitly before returning.
func (s *S3Backend) uploadMultipart(ctx context.Context, file *os.File, key string, fileSize int64, contentType string, progress ProgressCallback) error {
	createInput := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		createInput.ContentType = aws.String(contentType)
	}
	created, err := s.client.CreateMultipartUpload(ctx, createInput)
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", classifyError(err))
	}
	uploadID := aws.ToString(created.UploadId)

	var completed []types.CompletedPart
	var uploaded int64
	buf := make([]byte, PartSize)
	partNumber := int32(0)

	abort := func(cause error) error {
		_, abortErr := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		if abortErr != nil {
			var noSuch *types.NoSuchUpload
			if !errors.As(abortErr, &noSuch) {
				return fmt.Errorf("%v (also failed to abort multipart upload: %v)", cause, abortErr)
			}
		}
		return cause
	}

	for {
		n, readErr := io.ReadFull(file, buf)
		if n == 0 && readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return abort(fmt.Errorf("failed to read part: %w", readErr))
		}

		isLast := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
		if !isLast && int64(n) < PartSize {
			return abort(fmt.Errorf("%w: part %d has %d bytes, want >= %d", ErrShortPart, partNumber+1, n, PartSize))
		}

		partNumber++
		partData := make([]byte, n)
		copy(partData, buf[:n])

		result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(partData),
		})
		if err != nil {
			return abort(fmt.Errorf("failed to upload part %d: %w", partNumber, classifyError(err)))
		}

		completed = append(completed, types.CompletedPart{
			ETag:       result.ETag,
			PartNumber: aws.Int32(partNumber),
		})

		uploaded += int64(n)
		if progress != nil {
			progress(uploaded, fileSize)
		}

		if isLast {
			break
		}
	}

	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return abort(fmt.Errorf("failed to complete multipart upload: %w", classifyError(err)))
	}

	return nil
}

// Download downloads a file from S3.
func (s *S3Backend) Download(ctx context.Context, remotePath, localPath string, progress ProgressCallback) error {
	key := s.buildKey(remotePath)

	size, err := s.GetSize(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("failed to get object size: %w", err)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download from S3: %w", classifyError(err))
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	outFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer outFile.Close()

	var reader io.Reader = result.Body
	if progress != nil {
		reader = NewProgressReader(result.Body, size, progress)
	}

	if _, err := io.Copy(outFile, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// List lists all objects under prefix.
func (s *S3Backend) List(ctx context.Context, prefix string) ([]BackupInfo, error) {
	fullPrefix := s.buildKey(prefix)

	result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", classifyError(err))
	}

	var backups []BackupInfo
	for _, obj := range result.Contents {
		if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
			continue
		}

		info := BackupInfo{
			Key:          *obj.Key,
			Name:         filepath.Base(*obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			StorageClass: "STANDARD",
		}
		if obj.ETag != nil {
			info.ETag = *obj.ETag
		}
		if obj.StorageClass != "" {
			info.StorageClass = string(obj.StorageClass)
		}
		backups = append(backups, info)
	}

	return backups, nil
}

// Delete deletes an object from S3.
func (s *S3Backend) Delete(ctx context.Context, remotePath string) error {
	key := s.buildKey(remotePath)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object: %w", classifyError(err))
	}
	return nil
}

// Exists checks whether an object exists in S3.
func (s *S3Backend) Exists(ctx context.Context, remotePath string) (bool, error) {
	key := s.buildKey(remotePath)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errors.Is(classifyError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", classifyError(err))
	}
	return true, nil
}

// GetSize returns the size of a remote object.
func (s *S3Backend) GetSize(ctx context.Context, remotePath string) (int64, error) {
	key := s.buildKey(remotePath)
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get object metadata: %w", classifyError(err))
	}
	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available")
	}
	return *result.ContentLength, nil
}

// BucketExists checks if the bucket exists and is accessible. Per spec.md
// §4.B, a 403 on HEAD-bucket is treated as "exists" since the caller may
// simply lack list permission on an otherwise-usable bucket.
func (s *S3Backend) BucketExists(ctx context.Context) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		classified := classifyError(err)
		if errors.Is(classified, ErrNotFound) {
			return false, nil
		}
		if errors.Is(classified, ErrAuth) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check bucket: %w", classified)
	}
	return true, nil
}

// CreateBucket creates the bucket if it doesn't exist.
func (s *S3Backend) CreateBucket(ctx context.Context) error {
	exists, err := s.BucketExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", classifyError(err))
	}
	return nil
}

// PresignedURL generates a presigned GET URL for remotePath, valid for the
// given duration (spec.md §4.B "generate-presigned-URL").
func (s *S3Backend) PresignedURL(ctx context.Context, remotePath string, expireSeconds int64) (string, error) {
	key := s.buildKey(remotePath)
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(time.Duration(expireSeconds)*time.Second))
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", classifyError(err))
	}
	return req.URL, nil
}
