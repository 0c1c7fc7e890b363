package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bottle-monitor/backend/internal/principal/domain"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoRepository.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type principalItem struct {
	ID           string    `dynamodbav:"id"`
	Email        string    `dynamodbav:"email"`
	EmailKey     string    `dynamodbav:"email_key"`
	DisplayName  string    `dynamodbav:"display_name"`
	PasswordHash string    `dynamodbav:"password_hash,omitempty"`
	FederatedID  string    `dynamodbav:"federated_id,omitempty"`
	Disabled     bool      `dynamodbav:"disabled"`
	TokenVersion int64     `dynamodbav:"token_version"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

// keyItem maps a unique attribute ("email#..." or "federated#...") to its principal.
type keyItem struct {
	Key         string `dynamodbav:"key"`
	PrincipalID string `dynamodbav:"principal_id"`
}

// DynamoRepository stores principals in one table and their unique email and
// federated id in a guard table, written together in a transaction.
type DynamoRepository struct {
	client    DynamoAPI
	table     string
	keysTable string
}

// NewDynamoRepository returns a principal repository using the given tables.
func NewDynamoRepository(client DynamoAPI, table, keysTable string) *DynamoRepository {
	return &DynamoRepository{client: client, table: table, keysTable: keysTable}
}

func emailGuard(email string) string   { return "email#" + domain.EmailKey(email) }
func federatedGuard(fid string) string { return "federated#" + fid }

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func (r *DynamoRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	if id == "" {
		return nil, nil
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item principalItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return item.toDomain(), nil
}

func (r *DynamoRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.getByGuard(ctx, emailGuard(email))
}

func (r *DynamoRepository) GetByFederatedID(ctx context.Context, federatedID string) (*domain.Principal, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.getByGuard(ctx, federatedGuard(federatedID))
}

func (r *DynamoRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(principalItem{
		ID: p.ID, Email: p.Email, EmailKey: domain.EmailKey(p.Email), DisplayName: p.DisplayName,
		PasswordHash: p.PasswordHash, FederatedID: p.FederatedID, Disabled: p.Disabled,
		TokenVersion: p.TokenVersion, CreatedAt: p.CreatedAt.UTC(), UpdatedAt: p.UpdatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{{Put: &types.Put{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}}}
	guards := []string{emailGuard(p.Email)}
	if p.FederatedID != "" {
		guards = append(guards, federatedGuard(p.FederatedID))
	}
	for _, g := range guards {
		guard, err := attributevalue.MarshalMap(keyItem{Key: g, PrincipalID: p.ID})
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(r.keysTable),
			Item:                     guard,
			ConditionExpression:      aws.String("attribute_not_exists(#k)"),
			ExpressionAttributeNames: map[string]string{"#k": "key"},
		}})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			switch i {
			case 0:
				return ErrIDTaken
			case 1:
				return ErrEmailTaken
			default:
				return ErrFederatedIDTaken
			}
		}
	}
	return err
}

func (r *DynamoRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	v, err := r.bump(ctx, id, "attribute_exists(id)", nil)
	if isConditionFailed(err) {
		return 0, ErrNotFound
	}
	return v, err
}

func (r *DynamoRepository) CompareAndBumpTokenVersion(ctx context.Context, id string, expected int64) (int64, error) {
	v, err := r.bump(ctx, id, "token_version = :expected", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
	})
	if isConditionFailed(err) {
		return 0, ErrVersionConflict
	}
	return v, err
}

func (r *DynamoRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET disabled = :disabled, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":disabled": &types.AttributeValueMemberBOOL{Value: disabled},
			":now":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		return ErrNotFound
	}
	return err
}

// bump adds one to token_version under condition and returns the updated value.
func (r *DynamoRepository) bump(ctx context.Context, id, condition string, values map[string]types.AttributeValue) (int64, error) {
	if values == nil {
		values = make(map[string]types.AttributeValue, 2)
	}
	values[":one"] = &types.AttributeValueMemberN{Value: "1"}
	values[":now"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       idKey(id),
		UpdateExpression:          aws.String("SET token_version = token_version + :one, updated_at = :now"),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	var updated struct {
		TokenVersion int64 `dynamodbav:"token_version"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, err
	}
	return updated.TokenVersion, nil
}

func (r *DynamoRepository) getByGuard(ctx context.Context, guard string) (*domain.Principal, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.keysTable),
		Key:            map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: guard}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var k keyItem
	if err := attributevalue.UnmarshalMap(out.Item, &k); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, k.PrincipalID)
}

func (i principalItem) toDomain() *domain.Principal {
	return &domain.Principal{
		ID:           i.ID,
		Email:        i.Email,
		DisplayName:  i.DisplayName,
		PasswordHash: i.PasswordHash,
		FederatedID:  i.FederatedID,
		Disabled:     i.Disabled,
		TokenVersion: i.TokenVersion,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
