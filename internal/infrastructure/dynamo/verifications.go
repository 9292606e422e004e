package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-jobboard-trust/internal/domain"
)

// verificationItem is the stored shape of a code. expires_at_ms is the
// authoritative expiry; ttl only lets DynamoDB garbage-collect old items,
// which it does lazily.
type verificationItem struct {
	SubjectID   string    `dynamodbav:"subject_id"`
	Channel     string    `dynamodbav:"channel"`
	Code        string    `dynamodbav:"code"`
	ExpiresAtMs int64     `dynamodbav:"expires_at_ms"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	TTL         int64     `dynamodbav:"ttl"`
}

// VerificationRepo holds one outstanding code per subject and channel.
// PK: subject_id, SK: channel
type VerificationRepo struct {
	client    API
	tableName string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

// Put upserts the record, replacing any code already outstanding.
func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationRecord) error {
	item, err := attributevalue.MarshalMap(verificationItem{
		SubjectID:   v.SubjectID,
		Channel:     string(v.Channel),
		Code:        v.Code,
		ExpiresAtMs: v.ExpiresAt.UnixMilli(),
		CreatedAt:   v.CreatedAt,
		TTL:         v.ExpiresAt.Add(time.Hour).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Consume deletes the record only if code matches and it is unexpired at now,
// in a single conditional delete. Of any number of concurrent callers with
// the right code, exactly one gets true.
func (r *VerificationRepo) Consume(ctx context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("subject_id", subjectID, "channel", string(ch)),
		ConditionExpression: aws.String("#code = :code AND expires_at_ms > :now"),
		ExpressionAttributeNames: map[string]string{
			"#code": "code",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
			":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err == nil {
		return true, nil
	}
	if _, ok := conditionFailed(err); ok {
		return false, nil
	}
	return false, err
}

func (r *VerificationRepo) Get(ctx context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("subject_id", subjectID, "channel", string(ch)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var it verificationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal verification: %w", err)
	}
	return &domain.VerificationRecord{
		SubjectID: it.SubjectID,
		Channel:   domain.Channel(it.Channel),
		Code:      it.Code,
		ExpiresAt: time.UnixMilli(it.ExpiresAtMs).UTC(),
		CreatedAt: it.CreatedAt,
	}, nil
}
