package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/manifest"
	"github.com/stretchr/testify/require"
)

// fakeAPIError implements smithy.APIError so isRetryableError can classify it.
type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string                { return e.code }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

// fakeS3Client records multipart/put calls in memory and can be told to
// fail a given number of times before succeeding, to exercise the retry
// path without a real S3 endpoint.
type fakeS3Client struct {
	mu sync.Mutex

	putObjects []s3v2.PutObjectInput

	failUploadPartsRemaining int
	failWithErr              error

	parts     map[int32][]byte
	completed bool
	aborted   bool
}

func newFakeS3Client() *fakeS3Client {
	return &fakeS3Client{parts: map[int32][]byte{}}
}

func (f *fakeS3Client) ListObjectsV2(context.Context, *s3v2.ListObjectsV2Input, ...func(*s3v2.Options)) (*s3v2.ListObjectsV2Output, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeS3Client) GetObject(context.Context, *s3v2.GetObjectInput, ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeS3Client) HeadObject(context.Context, *s3v2.HeadObjectInput, ...func(*s3v2.Options)) (*s3v2.HeadObjectOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeS3Client) PutObject(_ context.Context, in *s3v2.PutObjectInput, _ ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(in.Body)
	f.putObjects = append(f.putObjects, s3v2.PutObjectInput{Bucket: in.Bucket, Key: in.Key, Body: bytes.NewReader(body)})
	return &s3v2.PutObjectOutput{}, nil
}

func (f *fakeS3Client) CreateMultipartUpload(context.Context, *s3v2.CreateMultipartUploadInput, ...func(*s3v2.Options)) (*s3v2.CreateMultipartUploadOutput, error) {
	return &s3v2.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3Client) UploadPart(_ context.Context, in *s3v2.UploadPartInput, _ ...func(*s3v2.Options)) (*s3v2.UploadPartOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUploadPartsRemaining > 0 {
		f.failUploadPartsRemaining--
		return nil, f.failWithErr
	}

	body, _ := io.ReadAll(in.Body)
	f.parts[aws.ToInt32(in.PartNumber)] = body
	return &s3v2.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", aws.ToInt32(in.PartNumber)))}, nil
}

func (f *fakeS3Client) CompleteMultipartUpload(context.Context, *s3v2.CompleteMultipartUploadInput, ...func(*s3v2.Options)) (*s3v2.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return &s3v2.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3Client) AbortMultipartUpload(context.Context, *s3v2.AbortMultipartUploadInput, ...func(*s3v2.Options)) (*s3v2.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return &s3v2.AbortMultipartUploadOutput{}, nil
}

func TestObjectStoreSink_Put_UploadsArchiveAndManifest(t *testing.T) {
	client := newFakeS3Client()
	s := NewObjectStoreSink(client, "bucket", "prefix")
	s.PartSize = 4 // force multiple parts for a small payload
	s.BaseBackoff = time.Millisecond

	content := []byte("0123456789")
	artifact := &archiveworker.Artifact{
		ArchiveName:  "archive.tar",
		ManifestName: "manifest.csv",
		TarPath:      writeStagedArchive(t, content),
		ManifestRows: []manifest.Entry{
			manifest.NewEntry("archive.tar", "a.txt", 11, 0, 1023, "d41d8cd98f00b204e9800998ecf8427e", time.Now()),
		},
	}

	require.NoError(t, s.Put(context.Background(), artifact))

	require.True(t, client.completed)
	require.False(t, client.aborted)

	var reassembled []byte
	for i := int32(1); i <= int32(len(client.parts)); i++ {
		reassembled = append(reassembled, client.parts[i]...)
	}
	require.Equal(t, content, reassembled)

	require.Len(t, client.putObjects, 1)
	require.Equal(t, "prefix/manifests/manifest.csv", aws.ToString(client.putObjects[0].Key))
}

func TestObjectStoreSink_Put_RetriesThrottledPart(t *testing.T) {
	client := newFakeS3Client()
	client.failUploadPartsRemaining = 2
	client.failWithErr = fakeAPIError{code: "SlowDown"}

	s := NewObjectStoreSink(client, "bucket", "prefix")
	s.PartSize = DefaultPartSize
	s.BaseBackoff = time.Millisecond

	artifact := &archiveworker.Artifact{
		ArchiveName:  "archive.tar",
		ManifestName: "manifest.csv",
		TarPath:      writeStagedArchive(t, []byte("small payload")),
	}

	require.NoError(t, s.Put(context.Background(), artifact))
	require.True(t, client.completed)
}

func TestObjectStoreSink_Put_AbortsOnPermanentFailure(t *testing.T) {
	client := newFakeS3Client()
	client.failUploadPartsRemaining = 1
	client.failWithErr = fakeAPIError{code: "AccessDenied"}

	s := NewObjectStoreSink(client, "bucket", "prefix")
	s.BaseBackoff = time.Millisecond

	artifact := &archiveworker.Artifact{
		ArchiveName:  "archive.tar",
		ManifestName: "manifest.csv",
		TarPath:      writeStagedArchive(t, []byte("payload")),
	}

	err := s.Put(context.Background(), artifact)
	require.Error(t, err)
	require.True(t, client.aborted)
	require.False(t, client.completed)
}
