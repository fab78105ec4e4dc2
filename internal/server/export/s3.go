// Package export dumps a resource's current entries to object storage as a
// JSON-lines object, one entry body per line.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Exporter writes a snapshot of entries somewhere durable and returns the
// location key of the written object.
type Exporter interface {
	Export(ctx context.Context, resourceID string, entries []*domain.Entry) (string, error)
}

// Options carries the object storage connection settings. BaseEndpoint is
// set when talking to an S3-compatible store such as MinIO.
type Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// seams for testing the AWS SDK calls
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// S3Exporter implements Exporter against S3 or an S3-compatible store.
type S3Exporter struct {
	opts Options
	now  func() time.Time
}

func NewS3Exporter(opts Options) *S3Exporter {
	return &S3Exporter{opts: opts, now: time.Now}
}

func (e *S3Exporter) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(e.opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.opts.AccessKey,
			e.opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if e.opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(e.opts.BaseEndpoint)
		}
	}), nil
}

// Export serializes the entries as JSON lines and uploads them under
// exports/<resourceID>/<timestamp>.jsonl. Returns the object key.
func (e *S3Exporter) Export(ctx context.Context, resourceID string, entries []*domain.Entry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		line := map[string]any{
			"id":            entry.ID,
			"entry_id":      entry.EntryID,
			"version":       entry.Version,
			"last_modified": entry.LastModified,
			"entry":         entry.Body,
		}
		if err := enc.Encode(line); err != nil {
			return "", fmt.Errorf("encoding entry %q: %w", entry.EntryID, err)
		}
	}

	client, err := e.client(ctx)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/%s/%s.jsonl", resourceID, e.now().UTC().Format("20060102T150405Z"))
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading export for %q: %w", resourceID, err)
	}
	return key, nil
}
