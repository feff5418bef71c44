package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coldline/tarvault/cloud"
)

// ObjectStoreReader enumerates objects under a bucket/prefix using a paged
// ListObjectsV2 listing, per section 4.1's "Object-store listing" mode.
type ObjectStoreReader struct {
	Client cloud.S3Client
	Bucket string
	Prefix string
}

// NewObjectStoreReader creates an ObjectStoreReader for bucket/prefix.
func NewObjectStoreReader(client cloud.S3Client, bucket, prefix string) *ObjectStoreReader {
	return &ObjectStoreReader{Client: client, Bucket: bucket, Prefix: prefix}
}

// Read implements Reader using github.com/aws/aws-sdk-go-v2/service/s3's
// ListObjectsV2Paginator, the same SDK family the rest of the pipeline
// already depends on for GetObject/PutObject.
func (r *ObjectStoreReader) Read(ctx context.Context) (<-chan FileRef, <-chan error) {
	out := make(chan FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		paginator := s3.NewListObjectsV2Paginator(r.Client, &s3.ListObjectsV2Input{
			Bucket: aws.String(r.Bucket),
			Prefix: aws.String(r.Prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				errc <- fmt.Errorf("list s3://%s/%s: %w", r.Bucket, r.Prefix, err)
				return
			}

			for _, obj := range page.Contents {
				if obj.Key == nil {
					continue
				}
				key := *obj.Key
				if strings.HasSuffix(key, "/") {
					// Listings can include a zero-byte "directory marker"
					// object; it has no content to archive.
					continue
				}

				ref := FileRef{
					Source:     Locator{Kind: LocatorObjectKey, Bucket: r.Bucket, Key: key},
					MemberName: strings.TrimPrefix(key, r.Prefix),
					SizeBytes:  aws.ToInt64(obj.Size),
				}

				select {
				case out <- ref:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errc
}
