package repository

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bottle-monitor/backend/internal/refreshtoken/domain"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoRepository.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type refreshItem struct {
	TokenHash           string `dynamodbav:"token_hash"`
	ID                  string `dynamodbav:"id"`
	PrincipalID         string `dynamodbav:"principal_id"`
	TokenVersionAtIssue int64  `dynamodbav:"token_version_at_issue"`
	CreatedAt           string `dynamodbav:"created_at"`
	ExpiresAt           string `dynamodbav:"expires_at,omitempty"`
}

// DynamoRepository keys refresh tokens by token hash, with a principal_id GSI
// for listing.
type DynamoRepository struct {
	client DynamoAPI
	table  string
	index  string
}

// NewDynamoRepository returns a refresh token repository on table, listing through index.
func NewDynamoRepository(client DynamoAPI, table, index string) *DynamoRepository {
	return &DynamoRepository{client: client, table: table, index: index}
}

func (r *DynamoRepository) Create(ctx context.Context, t *domain.IssuedRefreshToken) error {
	if err := t.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(refreshItem{
		TokenHash:           t.TokenHash,
		ID:                  t.ID,
		PrincipalID:         t.PrincipalID,
		TokenVersionAtIssue: t.TokenVersionAtIssue,
		CreatedAt:           formatTime(t.CreatedAt),
		ExpiresAt:           formatTime(t.ExpiresAt),
	})
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(token_hash)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrDuplicate
	}
	return err
}

func (r *DynamoRepository) GetByHash(ctx context.Context, hash string) (*domain.IssuedRefreshToken, error) {
	if hash == "" {
		return nil, nil
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            map[string]types.AttributeValue{"token_hash": &types.AttributeValueMemberS{Value: hash}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item refreshItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return item.toDomain()
}

func (r *DynamoRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.IssuedRefreshToken, error) {
	var (
		out   []*domain.IssuedRefreshToken
		start map[string]types.AttributeValue
	)
	for {
		res, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.table),
			IndexName:              aws.String(r.index),
			KeyConditionExpression: aws.String("principal_id = :pid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pid": &types.AttributeValueMemberS{Value: principalID},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		var items []refreshItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			t, err := item.toDomain()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

func (i refreshItem) toDomain() (*domain.IssuedRefreshToken, error) {
	createdAt, err := parseTime(i.CreatedAt)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseTime(i.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &domain.IssuedRefreshToken{
		ID:                  i.ID,
		PrincipalID:         i.PrincipalID,
		TokenHash:           i.TokenHash,
		TokenVersionAtIssue: i.TokenVersionAtIssue,
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
	}, nil
}

