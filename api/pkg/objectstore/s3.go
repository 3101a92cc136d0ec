package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// RemoteBackend uploads video payloads to an S3-compatible bucket,
// single-PUT below the multipart threshold and multipart above it, per
// spec.md §4.3.
type RemoteBackend struct {
	client             *s3.Client
	bucket             string
	multipartThreshold int64
	multipartChunkSize int64
}

var (
	_ Adapter    = (*RemoteBackend)(nil)
	_ Downloader = (*RemoteBackend)(nil)
)

// RemoteConfig mirrors config.ObjectStore's fields that pertain to the
// remote backend.
type RemoteConfig struct {
	Bucket             string
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	EndpointURL        string
	MultipartThreshold int64
	MultipartChunkSize int64
}

// NewRemoteBackend constructs the S3 client and verifies basic
// connectivity with a HeadBucket call - the "initial handshake" named
// in spec.md §4.3's backend selection rule. A failing handshake
// returns an error so the caller can permanently demote to local.
func NewRemoteBackend(ctx context.Context, cfg RemoteConfig) (*RemoteBackend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: remote bucket not configured")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	b := &RemoteBackend{
		client:             client,
		bucket:             cfg.Bucket,
		multipartThreshold: cfg.MultipartThreshold,
		multipartChunkSize: cfg.MultipartChunkSize,
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(handshakeCtx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("objectstore: remote handshake failed: %w", err)
	}

	return b, nil
}

func (b *RemoteBackend) key(sessionID uint, cameraKey string, timestamp float64) string {
	return fmt.Sprintf("sessions/%d/%s.mp4", sessionID, objectKey(cameraKey, timestamp))
}

// URI returns the s3:// URI form recorded in video_chunks.storage_path.
func (b *RemoteBackend) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, key)
}

// Download fetches the object named by uri (an "s3://bucket/key" URI
// produced by URI) into destDir, returning the local path. Used by
// the merge engine to pull a remote video chunk before seeking into
// it, per spec.md §4.6 step 4.
func (b *RemoteBackend) Download(ctx context.Context, uri, destDir string) (string, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return "", err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", fmt.Errorf("merge: download %s: %w", uri, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("merge: read downloaded object %s: %w", uri, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("merge: create download directory: %w", err)
	}

	localPath := filepath.Join(destDir, filepath.Base(key))
	if err := os.WriteFile(localPath, body, 0o644); err != nil {
		return "", fmt.Errorf("merge: write downloaded object: %w", err)
	}
	return localPath, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	const prefix = "s3://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", fmt.Errorf("merge: not an s3 uri: %s", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("merge: malformed s3 uri: %s", uri)
	}
	return parts[0], parts[1], nil
}

func (b *RemoteBackend) Upload(ctx context.Context, payload []byte, sessionID uint, cameraKey string, timestamp float64, progress ProgressFunc) (*UploadResult, error) {
	start := time.Now()
	key := b.key(sessionID, cameraKey, timestamp)

	var err error
	if int64(len(payload)) < b.multipartThreshold {
		err = b.putSingle(ctx, key, payload, progress)
	} else {
		err = b.putMultipart(ctx, key, payload, progress)
	}

	if err != nil {
		reportProgress(progress, ProgressEvent{Status: UploadStatusFailed, Error: err})
		result := &UploadResult{Success: false, StorageKind: StorageKindRemote, Error: err}
		return result, err
	}

	return &UploadResult{
		Success:     true,
		StorageKind: StorageKindRemote,
		URI:         b.URI(key),
		Size:        int64(len(payload)),
		ElapsedMS:   time.Since(start).Milliseconds(),
	}, nil
}

func (b *RemoteBackend) putSingle(ctx context.Context, key string, payload []byte, progress ProgressFunc) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put object: %w", err)
	}

	reportProgress(progress, ProgressEvent{
		TotalBytes:     int64(len(payload)),
		UploadedBytes:  int64(len(payload)),
		PartsCompleted: 1,
		TotalParts:     1,
		Status:         UploadStatusCompleted,
	})
	return nil
}

// putMultipart slices payload into chunkSize parts numbered from 1,
// uploads each in order, and completes with the collected ETag/part
// number list. Any part failure aborts the multipart upload (best
// effort) before surfacing the error, per spec.md §4.3.
func (b *RemoteBackend) putMultipart(ctx context.Context, key string, payload []byte, progress ProgressFunc) error {
	created, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return fmt.Errorf("objectstore: create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	total := int64(len(payload))
	totalParts := partCount(total, b.multipartChunkSize)

	reportProgress(progress, ProgressEvent{TotalBytes: total, TotalParts: totalParts, Status: UploadStatusUploading})

	var completed []s3types.CompletedPart
	var uploaded int64

	for partNumber := int32(1); int(partNumber) <= totalParts; partNumber++ {
		offset := int64(partNumber-1) * b.multipartChunkSize
		end := offset + b.multipartChunkSize
		if end > total {
			end = total
		}
		part := payload[offset:end]

		uploadOut, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(key),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(part),
		})
		if err != nil {
			b.abort(ctx, key, uploadID)
			return fmt.Errorf("objectstore: upload part %d: %w", partNumber, err)
		}

		completed = append(completed, s3types.CompletedPart{
			ETag:       uploadOut.ETag,
			PartNumber: aws.Int32(partNumber),
		})

		uploaded += int64(len(part))
		reportProgress(progress, ProgressEvent{
			TotalBytes:     total,
			UploadedBytes:  uploaded,
			PartsCompleted: int(partNumber),
			TotalParts:     totalParts,
			Status:         UploadStatusUploading,
		})
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		b.abort(ctx, key, uploadID)
		return fmt.Errorf("objectstore: complete multipart upload: %w", err)
	}

	reportProgress(progress, ProgressEvent{
		TotalBytes:     total,
		UploadedBytes:  total,
		PartsCompleted: totalParts,
		TotalParts:     totalParts,
		Status:         UploadStatusCompleted,
	})
	return nil
}

// partCount returns the number of multipart parts needed to cover
// total bytes at chunkSize bytes per part.
func partCount(total, chunkSize int64) int {
	n := int(total / chunkSize)
	if total%chunkSize != 0 {
		n++
	}
	return n
}

func (b *RemoteBackend) abort(ctx context.Context, key string, uploadID *string) {
	_, _ = b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}
