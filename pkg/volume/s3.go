package volume

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vmfstools/govmfs/internal/logger"
	"github.com/vmfstools/govmfs/pkg/vmfs"
)

// S3Volume reads a VMFS volume from a flat disk image stored as a single S3
// object, using ranged GetObject calls. Useful for inspecting datastore
// images that were evacuated to object storage without downloading them.
type S3Volume struct {
	client *s3.Client
	bucket string
	key    string
	debug  int

	// ctx is captured at construction because the accessor interface is
	// context-free; per-call deadlines belong to the client configuration.
	ctx context.Context

	size int64
	info *Info
	open bool
}

// NewS3 creates an accessor over s3://bucket/key using an already
// configured client.
func NewS3(ctx context.Context, client *s3.Client, bucket, key string, debug int) *S3Volume {
	return &S3Volume{ctx: ctx, client: client, bucket: bucket, key: key, debug: debug}
}

// Open sizes the object and decodes the volume header.
func (v *S3Volume) Open() error {
	if v.open {
		return nil
	}

	head, err := v.client.HeadObject(v.ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key),
	})
	if err != nil {
		return fmt.Errorf("sizing s3://%s/%s: %w", v.bucket, v.key, err)
	}
	if head.ContentLength != nil {
		v.size = *head.ContentLength
	}
	v.open = true

	info, err := readInfo(v)
	if err != nil {
		v.open = false
		return fmt.Errorf("s3://%s/%s: %w", v.bucket, v.key, err)
	}
	v.info = info

	if v.debug > 0 {
		logger.Debug("volume: %q via s3://%s/%s (%d bytes)", info.Name, v.bucket, v.key, v.size)
	}
	return nil
}

// ReadAt fetches a byte range from the object.
func (v *S3Volume) ReadAt(p []byte, off int64) (int, error) {
	if !v.open {
		return 0, fmt.Errorf("volume is not open")
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= v.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= v.size {
		end = v.size - 1
	}

	out, err := v.client.GetObject(v.ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key),
		Range:  aws.String(rangeHeader(off, end)),
	})
	if err != nil {
		return 0, fmt.Errorf("reading s3://%s/%s: %w", v.bucket, v.key, err)
	}
	defer out.Body.Close()

	total := 0
	want := int(end - off + 1)
	for total < want {
		n, err := out.Body.Read(p[total:want])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// rangeHeader renders an inclusive HTTP byte range.
func rangeHeader(start, end int64) string {
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// GroupUUID returns the volume group identifier from the volume header. It
// is the zero UUID before Open.
func (v *S3Volume) GroupUUID() vmfs.UUID {
	if v.info == nil {
		return vmfs.UUID{}
	}
	return v.info.GroupUUID
}

// Info returns the decoded volume header, nil before Open.
func (v *S3Volume) Info() *Info { return v.info }

// DebugLevel reports the debug verbosity this accessor was created with.
func (v *S3Volume) DebugLevel() int { return v.debug }

// Close marks the accessor closed. There is no connection state to release.
func (v *S3Volume) Close() error {
	v.open = false
	return nil
}
