package restore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coldline/tarvault/cloud"
	"github.com/coldline/tarvault/source"
)

// FilesystemRangeOpener opens a byte range of a local archive file via
// io.NewSectionReader.
type FilesystemRangeOpener struct{}

// OpenRange implements RangeOpener.
func (FilesystemRangeOpener) OpenRange(_ context.Context, loc source.Locator, start, end int64) (io.ReadCloser, error) {
	if loc.Kind != source.LocatorFilesystem {
		return nil, fmt.Errorf("filesystem range opener given non-filesystem locator %v", loc)
	}
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	section := io.NewSectionReader(f, start, end-start+1)
	return sectionReadCloser{SectionReader: section, file: f}, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	file *os.File
}

func (s sectionReadCloser) Close() error { return s.file.Close() }

// ObjectStoreRangeOpener opens a byte range of an object-store archive via
// a ranged GET, per section 4.4/6: a single HTTP Range request over the
// uncompressed object.
type ObjectStoreRangeOpener struct {
	Client cloud.S3Client
}

// OpenRange implements RangeOpener.
func (o ObjectStoreRangeOpener) OpenRange(ctx context.Context, loc source.Locator, start, end int64) (io.ReadCloser, error) {
	if loc.Kind != source.LocatorObjectKey {
		return nil, fmt.Errorf("object-store range opener given non-object locator %v", loc)
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, end)
	out, err := o.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, fmt.Errorf("ranged get: %w", err)
	}
	return out.Body, nil
}
