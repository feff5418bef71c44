package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/cloud"
	"github.com/coldline/tarvault/manifest"
)

const (
	// DefaultPartSize is the default multipart part size, per section 4.4.
	DefaultPartSize int64 = 16 << 20
	// DefaultMaxPartsInFlight is the default per-upload part concurrency.
	DefaultMaxPartsInFlight = 10
	// DefaultMaxRetries is the default retry ceiling per upload attempt.
	DefaultMaxRetries = 5
	// DefaultBaseBackoff is the starting delay for the doubling backoff.
	DefaultBaseBackoff = 1 * time.Second
)

// ObjectStoreSink uploads archives via multipart (bounded concurrency,
// retried parts) and manifests via a single PUT: a create/upload-parts/
// complete sequence with bounded-concurrency part uploads and
// exponential-backoff retries on transient part failures.
type ObjectStoreSink struct {
	Client           cloud.S3Client
	Bucket           string
	Prefix           string
	PartSize         int64
	MaxPartsInFlight int
	MaxRetries       int
	BaseBackoff      time.Duration
}

// NewObjectStoreSink creates an ObjectStoreSink with the section 4.4
// defaults (16 MiB parts, 10 in flight, 5 retries, 1s doubling backoff).
func NewObjectStoreSink(client cloud.S3Client, bucket, prefix string) *ObjectStoreSink {
	return &ObjectStoreSink{
		Client:           client,
		Bucket:           bucket,
		Prefix:           prefix,
		PartSize:         DefaultPartSize,
		MaxPartsInFlight: DefaultMaxPartsInFlight,
		MaxRetries:       DefaultMaxRetries,
		BaseBackoff:      DefaultBaseBackoff,
	}
}

func (s *ObjectStoreSink) archiveKey(name string) string {
	return strings.TrimSuffix(s.Prefix, "/") + "/archives/" + name
}

func (s *ObjectStoreSink) manifestKey(name string) string {
	return strings.TrimSuffix(s.Prefix, "/") + "/manifests/" + name
}

// Put implements Sink.
func (s *ObjectStoreSink) Put(ctx context.Context, artifact *archiveworker.Artifact) error {
	if err := s.putArchive(ctx, artifact); err != nil {
		return fmt.Errorf("put archive: %w", err)
	}
	if err := s.putManifest(ctx, artifact); err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return nil
}

func (s *ObjectStoreSink) putManifest(ctx context.Context, artifact *archiveworker.Artifact) error {
	var buf bytes.Buffer
	if err := manifest.Write(&buf, artifact.ManifestRows); err != nil {
		return fmt.Errorf("render manifest: %w", err)
	}

	key := s.manifestKey(artifact.ManifestName)
	return s.retry(ctx, func() error {
		_, err := s.Client.PutObject(ctx, &s3v2.PutObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		return err
	})
}

// putArchive uploads the archive's staged temp file via multipart upload
// with bounded concurrency, per section 4.4.
func (s *ObjectStoreSink) putArchive(ctx context.Context, artifact *archiveworker.Artifact) error {
	key := s.archiveKey(artifact.ArchiveName)

	f, err := os.Open(artifact.TarPath)
	if err != nil {
		return fmt.Errorf("open staged archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staged archive: %w", err)
	}
	size := info.Size()

	createOut, err := s.Client.CreateMultipartUpload(ctx, &s3v2.CreateMultipartUploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := createOut.UploadId

	completed, uploadErr := s.uploadParts(ctx, f, size, key, uploadID)
	if uploadErr != nil {
		s.abort(key, uploadID)
		return uploadErr
	}

	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	_, err = s.Client.CompleteMultipartUpload(ctx, &s3v2.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.Bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		s.abort(key, uploadID)
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

// abort cancels a multipart upload on terminal failure, per section 4.4:
// "no partial multipart upload is left behind." It uses a background
// context deliberately: the caller's ctx may already be canceled, and the
// cleanup call must still reach S3.
func (s *ObjectStoreSink) abort(key string, uploadID *string) {
	_, _ = s.Client.AbortMultipartUpload(context.Background(), &s3v2.AbortMultipartUploadInput{
		Bucket:   aws.String(s.Bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}

// uploadParts splits the file into PartSize-sized ranges and uploads them
// with MaxPartsInFlight concurrency (a counting semaphore), each part
// individually retried. Grounded on restic's archiver.fileSaver, which
// pairs an errgroup with bounded concurrency for concurrent chunk uploads
// in the same shape.
func (s *ObjectStoreSink) uploadParts(ctx context.Context, f *os.File, size int64, key string, uploadID *string) ([]types.CompletedPart, error) {
	partSize := s.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	numParts := int((size + partSize - 1) / partSize)
	if numParts == 0 {
		numParts = 1 // an empty archive still uploads one empty part
	}

	results := make([]types.CompletedPart, numParts)
	sem := semaphore.NewWeighted(int64(maxInt(s.MaxPartsInFlight, 1)))
	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < numParts; i++ {
		if err := sem.Acquire(groupCtx, 1); err != nil {
			break
		}

		partNum := int32(i + 1)
		offset := int64(i) * partSize
		length := partSize
		if offset+length > size {
			length = size - offset
		}

		group.Go(func() error {
			defer sem.Release(1)

			section := io.NewSectionReader(f, offset, length)
			return s.retry(groupCtx, func() error {
				if _, serr := section.Seek(0, io.SeekStart); serr != nil {
					return serr
				}
				out, uerr := s.Client.UploadPart(groupCtx, &s3v2.UploadPartInput{
					Bucket:     aws.String(s.Bucket),
					Key:        aws.String(key),
					UploadId:   uploadID,
					PartNumber: aws.Int32(partNum),
					Body:       section,
				})
				if uerr != nil {
					return uerr
				}
				results[partNum-1] = types.CompletedPart{
					ETag:       out.ETag,
					PartNumber: aws.Int32(partNum),
				}
				return nil
			})
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// retry runs op up to MaxRetries+1 times, retrying only retryable errors
// with doubling backoff, per section 4.4's retry policy.
func (s *ObjectStoreSink) retry(ctx context.Context, op func() error) error {
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	base := s.BaseBackoff
	if base <= 0 {
		base = DefaultBaseBackoff
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		if !backoffWait(ctx, attempt, base) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
