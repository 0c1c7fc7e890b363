package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB table base names. The configured prefix is prepended to each.
const (
	PrincipalsTable    = "principals"
	PrincipalKeysTable = "principal_keys"
	RefreshTokensTable = "refresh_tokens"

	// PrincipalRefreshIndex is the refresh_tokens GSI on (principal_id, created_at).
	PrincipalRefreshIndex = "PrincipalIdIndex"
)

// DynamoOptions holds the settings for OpenDynamo.
type DynamoOptions struct {
	Region   string
	Endpoint string // optional; set for DynamoDB Local
}

// DynamoTables names the tables used by the DynamoDB repositories.
type DynamoTables struct {
	Principals    string
	PrincipalKeys string
	RefreshTokens string
}

// NewDynamoTables returns the table names with prefix applied.
func NewDynamoTables(prefix string) DynamoTables {
	return DynamoTables{
		Principals:    prefix + PrincipalsTable,
		PrincipalKeys: prefix + PrincipalKeysTable,
		RefreshTokens: prefix + RefreshTokensTable,
	}
}

// OpenDynamo returns a DynamoDB client using the default AWS credential chain.
func OpenDynamo(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	if opts.Region == "" {
		return nil, errors.New("AWS region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// EnsureTables creates any missing table in t and waits until each is active.
func EnsureTables(ctx context.Context, client *dynamodb.Client, t DynamoTables) error {
	for _, in := range tableDefinitions(t) {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: in.TableName})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("describe table %s: %w", aws.ToString(in.TableName), err)
		}
		if _, err := client.CreateTable(ctx, in); err != nil {
			var inUse *types.ResourceInUseException
			if !errors.As(err, &inUse) {
				return fmt.Errorf("create table %s: %w", aws.ToString(in.TableName), err)
			}
		}
		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: in.TableName}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", aws.ToString(in.TableName), err)
		}
	}
	return nil
}

func tableDefinitions(t DynamoTables) []*dynamodb.CreateTableInput {
	str := types.ScalarAttributeTypeS
	return []*dynamodb.CreateTableInput{
		{
			TableName:            aws.String(t.Principals),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("id"), AttributeType: str}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
		},
		{
			// Uniqueness guards: "email#<key>" and "federated#<id>" map to a principal id.
			TableName:            aws.String(t.PrincipalKeys),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{{AttributeName: aws.String("key"), AttributeType: str}},
			KeySchema:            []types.KeySchemaElement{{AttributeName: aws.String("key"), KeyType: types.KeyTypeHash}},
		},
		{
			TableName:   aws.String(t.RefreshTokens),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("token_hash"), AttributeType: str},
				{AttributeName: aws.String("principal_id"), AttributeType: str},
				{AttributeName: aws.String("created_at"), AttributeType: str},
			},
			KeySchema: []types.KeySchemaElement{{AttributeName: aws.String("token_hash"), KeyType: types.KeyTypeHash}},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
				IndexName: aws.String(PrincipalRefreshIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("principal_id"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("created_at"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			}},
		},
	}
}
