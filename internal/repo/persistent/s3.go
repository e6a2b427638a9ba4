package persistent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/s3client"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const _archiveContentType = "application/x-ndjson"

// OutboxArchive keeps published outbox rows in S3 as JSON lines before the
// retention sweep deletes them.
type OutboxArchive struct {
	*s3client.S3Client
	bucket string
}

func NewOutboxArchive(s3c *s3client.S3Client, bucket string) *OutboxArchive {
	return &OutboxArchive{s3c, bucket}
}

func (r *OutboxArchive) Store(ctx context.Context, key string, events []*entity.OutboxEvent) error {
	body, err := EncodeArchive(events)
	if err != nil {
		return fmt.Errorf("OutboxArchive - Store - EncodeArchive: %w", err)
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(_archiveContentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("OutboxArchive - Store - r.Client.PutObject: %w", err)
	}

	return nil
}

type archivedEvent struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retryCount"`
	CreatedAt     string          `json:"createdAt"`
	PublishedAt   string          `json:"publishedAt,omitempty"`
}

// EncodeArchive renders one JSON object per line.
func EncodeArchive(events []*entity.OutboxEvent) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)

	for _, e := range events {
		a := archivedEvent{
			ID:            e.ID,
			EventID:       e.EventID.String(),
			EventType:     string(e.EventType),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			Payload:       json.RawMessage(e.Payload),
			RetryCount:    e.RetryCount,
			CreatedAt:     e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}

		if e.PublishedAt != nil {
			a.PublishedAt = e.PublishedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}

		if !json.Valid(e.Payload) {
			a.Payload = nil
		}

		if err := enc.Encode(a); err != nil {
			return nil, fmt.Errorf("encode outbox row %d: %w", e.ID, err)
		}
	}

	return buf.Bytes(), nil
}
