package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/pkg/id"
)

const (
	batchWriteLimit   = 25
	batchWriteRetries = 5
)

// ReportRepo is the append-only flag report log.
// PK: job_id, SK: report_id (ULID, so the log sorts by creation time).
type ReportRepo struct {
	client    API
	tableName string
}

func NewReportRepo(client API, tableName string) *ReportRepo {
	return &ReportRepo{client: client, tableName: tableName}
}

func (r *ReportRepo) Append(ctx context.Context, rep *domain.FlagReport) error {
	item, err := attributevalue.MarshalMap(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ReportRepo) List(ctx context.Context, jobID string) ([]domain.FlagReport, error) {
	return r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("job_id = :j"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":j": &types.AttributeValueMemberS{Value: jobID},
		},
		ConsistentRead: aws.Bool(true),
	})
}

// DeleteBefore removes the job's reports created strictly before cutoff.
func (r *ReportRepo) DeleteBefore(ctx context.Context, jobID string, cutoff time.Time) (int, error) {
	// Every report created before cutoff has an ID below the floor of the
	// following millisecond; CreatedAt settles the rest.
	reports, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("job_id = :j AND report_id < :upper"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":j":     &types.AttributeValueMemberS{Value: jobID},
			":upper": &types.AttributeValueMemberS{Value: id.Floor(cutoff.Add(time.Millisecond))},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, err
	}

	var reqs []types.WriteRequest
	for _, rep := range reports {
		if !rep.CreatedAt.Before(cutoff) {
			continue
		}
		reqs = append(reqs, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: compositeKey("job_id", rep.JobID, "report_id", rep.ReportID)},
		})
	}
	for start := 0; start < len(reqs); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(reqs))
		if err := r.batchWrite(ctx, reqs[start:end]); err != nil {
			return start, err
		}
	}
	return len(reqs), nil
}

func (r *ReportRepo) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.tableName: reqs}
	for attempt := 0; attempt < batchWriteRetries; attempt++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[r.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		slog.Debug("retrying unprocessed report deletes", "count", len(pending[r.tableName]), "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%d report deletes left unprocessed: %w", len(pending[r.tableName]), domain.ErrUnavailable)
}

func (r *ReportRepo) query(ctx context.Context, in *dynamodb.QueryInput) ([]domain.FlagReport, error) {
	p := dynamodb.NewQueryPaginator(r.client, in)
	var out []domain.FlagReport
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.FlagReport
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal reports: %w", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}
