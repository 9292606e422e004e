package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-jobboard-trust/internal/domain"
)

const employerStatusIndex = "employer_id-status-index"

// JobRepo provides typed DynamoDB operations for the jobs table.
// PK: job_id. GSI employer_id-status-index drives the approval cascade.
type JobRepo struct {
	client    API
	tableName string
}

func NewJobRepo(client API, tableName string) *JobRepo {
	return &JobRepo{client: client, tableName: tableName}
}

func (r *JobRepo) Create(ctx context.Context, j *domain.Job) error {
	item, err := attributevalue.MarshalMap(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(job_id)"),
	})
	if _, ok := conditionFailed(err); ok {
		return fmt.Errorf("job %s already exists: %w", j.JobID, domain.ErrConflict)
	}
	return err
}

func (r *JobRepo) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("job_id", jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrJobNotFound
	}
	var j domain.Job
	if err := attributevalue.UnmarshalMap(out.Item, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

// CompareAndSetStatus writes status=to only while the stored status is from.
// On a failed condition the old item tells a missing job apart from one in
// another status.
func (r *JobRepo) CompareAndSetStatus(ctx context.Context, jobID string, from, to domain.JobStatus, resetFlags bool, now time.Time) error {
	updatedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	expr := "SET #status = :to, updated_at = :now"
	values := map[string]types.AttributeValue{
		":from": &types.AttributeValueMemberS{Value: string(from)},
		":to":   &types.AttributeValueMemberS{Value: string(to)},
		":now":  updatedAt,
	}
	if resetFlags {
		expr += ", flag_count = :zero"
		values[":zero"] = &types.AttributeValueMemberN{Value: "0"}
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey("job_id", jobID),
		UpdateExpression:                    aws.String(expr),
		ConditionExpression:                 aws.String("#status = :from"),
		ExpressionAttributeNames:            map[string]string{"#status": fieldStatus},
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	ccf, ok := conditionFailed(err)
	if !ok {
		return err
	}
	if len(ccf.Item) == 0 {
		return domain.ErrJobNotFound
	}
	cur := "unknown"
	if s, ok := ccf.Item[fieldStatus].(*types.AttributeValueMemberS); ok {
		cur = s.Value
	}
	return fmt.Errorf("job %s is %s: %w", jobID, cur, domain.ErrStatusMismatch)
}

// IncrementFlagCount atomically adds one to flag_count and returns the new value.
func (r *JobRepo) IncrementFlagCount(ctx context.Context, jobID string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("job_id", jobID),
		UpdateExpression:    aws.String("ADD flag_count :one"),
		ConditionExpression: aws.String("attribute_exists(job_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if _, ok := conditionFailed(err); ok {
		return 0, domain.ErrJobNotFound
	}
	if err != nil {
		return 0, err
	}
	var n int
	if err := attributevalue.Unmarshal(out.Attributes[fieldFlagCount], &n); err != nil {
		return 0, fmt.Errorf("unmarshal flag_count: %w", err)
	}
	return n, nil
}

// ListByEmployerStatus pages through the employer/status index. The index is
// eventually consistent, so a job written a moment ago may be missing.
func (r *JobRepo) ListByEmployerStatus(ctx context.Context, employerID string, status domain.JobStatus) ([]domain.Job, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(employerStatusIndex),
		KeyConditionExpression: aws.String("employer_id = :e AND #status = :s"),
		ExpressionAttributeNames: map[string]string{
			"#status": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: employerID},
			":s": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	var jobs []domain.Job
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Job
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal jobs: %w", err)
		}
		jobs = append(jobs, batch...)
	}
	return jobs, nil
}
