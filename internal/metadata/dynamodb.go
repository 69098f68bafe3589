package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/galleryd/galleryd/internal/config"
	"github.com/galleryd/galleryd/internal/uid"
)

// projectIndex is the GSI on project_id used for per-project queries.
const projectIndex = "project_id-index"

// DynamoDBStore implements the Store interface on an Amazon DynamoDB table.
// Each asset is one item keyed by pk = "ASSET#{id}", with a GSI on
// project_id for per-project queries. BatchUpdateOrder uses
// TransactWriteItems so a reorder applies all-or-nothing.
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoDBStore creates a DynamoDBStore from the given config.
func NewDynamoDBStore(cfg *config.DynamoDBConfig) (*DynamoDBStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dynamodb config is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	return &DynamoDBStore{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.Table,
	}, nil
}

// Ping checks connectivity by describing the table.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

// Close is a no-op; the client holds no pooled resources of its own.
func (s *DynamoDBStore) Close() error {
	return nil
}

func pkAsset(id string) string {
	return "ASSET#" + id
}

// Insert creates a new asset item, assigning id and timestamps. The
// condition expression rejects an id collision rather than overwriting.
func (s *DynamoDBStore) Insert(ctx context.Context, a *Asset) (*Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	stored := *a
	stored.ID = uid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                assetToItem(&stored),
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return nil, fmt.Errorf("inserting asset for project %q: %w", stored.ProjectID, err)
	}
	return &stored, nil
}

// Get retrieves an asset by id.
func (s *DynamoDBStore) Get(ctx context.Context, id string) (*Asset, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pkAsset(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting asset %q: %w", id, err)
	}
	if resp.Item == nil {
		return nil, ErrNotFound
	}
	return itemToAsset(resp.Item), nil
}

// Delete removes an asset item by id. The condition expression makes a
// missing item report ErrNotFound instead of silently succeeding.
func (s *DynamoDBStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pkAsset(id)},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting asset %q: %w", id, err)
	}
	return nil
}

// GetByProject queries the project GSI and returns assets in display order.
func (s *DynamoDBStore) GetByProject(ctx context.Context, projectID string) ([]Asset, error) {
	var assets []Asset
	var startKey map[string]types.AttributeValue

	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(projectIndex),
			KeyConditionExpression: aws.String("project_id = :pid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pid": &types.AttributeValueMemberS{Value: projectID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying assets for project %q: %w", projectID, err)
		}
		for _, item := range resp.Items {
			assets = append(assets, *itemToAsset(item))
		}
		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	SortAssets(assets)
	return assets, nil
}

// MaxDisplayOrder returns the highest display order in the project, or -1.
func (s *DynamoDBStore) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
	assets, err := s.GetByProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	max := -1
	for _, a := range assets {
		if a.DisplayOrder > max {
			max = a.DisplayOrder
		}
	}
	return max, nil
}

// BatchUpdateOrder applies the given display orders in one
// TransactWriteItems call, so the batch commits all-or-nothing. Each update
// is conditioned on the item existing and belonging to the project.
func (s *DynamoDBStore) BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error {
	if len(orders) == 0 {
		return nil
	}
	// TransactWriteItems caps at 100 items per call; a project gallery is
	// far below that.
	if len(orders) > 100 {
		return fmt.Errorf("reorder of %d assets exceeds the transaction limit", len(orders))
	}

	now := time.Now().UTC().Format(TimeFormat)
	var items []types.TransactWriteItem
	for id, order := range orders {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: pkAsset(id)},
				},
				UpdateExpression:    aws.String("SET display_order = :ord, updated_at = :now"),
				ConditionExpression: aws.String("attribute_exists(pk) AND project_id = :pid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":ord": &types.AttributeValueMemberN{Value: strconv.Itoa(order)},
					":now": &types.AttributeValueMemberS{Value: now},
					":pid": &types.AttributeValueMemberS{Value: projectID},
				},
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return ErrNotFound
		}
		return fmt.Errorf("updating display order for project %q: %w", projectID, err)
	}
	return nil
}

// assetToItem converts an Asset to a DynamoDB item.
func assetToItem(a *Asset) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":            &types.AttributeValueMemberS{Value: pkAsset(a.ID)},
		"id":            &types.AttributeValueMemberS{Value: a.ID},
		"project_id":    &types.AttributeValueMemberS{Value: a.ProjectID},
		"file_name":     &types.AttributeValueMemberS{Value: a.FileName},
		"file_path":     &types.AttributeValueMemberS{Value: a.FilePath},
		"file_size":     &types.AttributeValueMemberN{Value: strconv.FormatInt(a.FileSize, 10)},
		"mime_type":     &types.AttributeValueMemberS{Value: a.MimeType},
		"display_order": &types.AttributeValueMemberN{Value: strconv.Itoa(a.DisplayOrder)},
		"created_at":    &types.AttributeValueMemberS{Value: a.CreatedAt.UTC().Format(TimeFormat)},
		"updated_at":    &types.AttributeValueMemberS{Value: a.UpdatedAt.UTC().Format(TimeFormat)},
	}
}

// itemToAsset converts a DynamoDB item back to an Asset.
func itemToAsset(item map[string]types.AttributeValue) *Asset {
	a := &Asset{
		ID:        stringAttr(item, "id"),
		ProjectID: stringAttr(item, "project_id"),
		FileName:  stringAttr(item, "file_name"),
		FilePath:  stringAttr(item, "file_path"),
		MimeType:  stringAttr(item, "mime_type"),
	}
	a.FileSize, _ = strconv.ParseInt(numberAttr(item, "file_size"), 10, 64)
	a.DisplayOrder, _ = strconv.Atoi(numberAttr(item, "display_order"))
	a.CreatedAt, _ = time.Parse(TimeFormat, stringAttr(item, "created_at"))
	a.UpdatedAt, _ = time.Parse(TimeFormat, stringAttr(item, "updated_at"))
	return a
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return "0"
}
