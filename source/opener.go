package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coldline/tarvault/cloud"
)

// FilesystemOpener opens member content from local disk.
type FilesystemOpener struct{}

// Open implements Opener for filesystem locators.
func (FilesystemOpener) Open(_ context.Context, loc Locator) (ReadSizer, error) {
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", loc.Path, err)
	}
	return &fileReadSizer{File: f, size: info.Size()}, nil
}

type fileReadSizer struct {
	*os.File
	size int64
}

func (f *fileReadSizer) Size() int64 { return f.size }

// ObjectStoreOpener fetches member content with a single S3 GetObject, per
// section 4.3 step 3b: "the member is fetched via a single GET, streamed
// through the TAR writer, and also hashed."
type ObjectStoreOpener struct {
	Client cloud.S3Client
}

// Open implements Opener for object-store locators.
func (o ObjectStoreOpener) Open(ctx context.Context, loc Locator) (ReadSizer, error) {
	resp, err := o.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return &objectReadSizer{ReadCloser: resp.Body, size: aws.ToInt64(resp.ContentLength)}, nil
}

type objectReadSizer struct {
	io.ReadCloser
	size int64
}

func (o *objectReadSizer) Size() int64 { return o.size }
