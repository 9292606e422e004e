package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-jobboard-trust/internal/config"
	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/pkg/id"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes the report log of a removed job to S3 as one JSON object.
type Archiver struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

func NewArchiver(client objectPutter, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: func() time.Time { return time.Now().UTC() }}
}

type archiveDoc struct {
	JobID      string              `json:"job_id"`
	ArchivedAt time.Time           `json:"archived_at"`
	Reports    []domain.FlagReport `json:"reports"`
}

// Key returns the object key for an archive written at t.
func Key(jobID string, t time.Time) string {
	return fmt.Sprintf("moderation/%s/%s.json", jobID, id.NewAt(t))
}

func (a *Archiver) Archive(ctx context.Context, jobID string, reports []domain.FlagReport) error {
	now := a.now()
	body, err := json.Marshal(archiveDoc{JobID: jobID, ArchivedAt: now, Reports: reports})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(jobID, now)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
