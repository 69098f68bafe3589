package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/galleryd/galleryd/internal/config"
	"github.com/galleryd/galleryd/internal/uid"
)

// CosmosStore implements the Store interface on Azure Cosmos DB. The
// container is partitioned on /projectId, which keeps every asset of a
// project in one logical partition so BatchUpdateOrder can use a
// transactional batch. Assets marshal directly as items; the asset id
// doubles as the Cosmos item id.
type CosmosStore struct {
	client    *azcosmos.ContainerClient
	database  string
	container string
}

func NewCosmosStore(ctx context.Context, cfg *config.CosmosConfig) (*CosmosStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cosmos config is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cosmos endpoint is required")
	}
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("cosmos master key is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("cosmos database name is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("cosmos container name is required")
	}

	cred, err := azcosmos.NewKeyCredential(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("creating cosmos key credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}

	dbClient, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("getting database client: %w", err)
	}

	containerClient, err := dbClient.NewContainer(cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("getting container client: %w", err)
	}

	return &CosmosStore{
		client:    containerClient,
		database:  cfg.Database,
		container: cfg.Container,
	}, nil
}

func (s *CosmosStore) Ping(ctx context.Context) error {
	_, err := s.client.Read(ctx, nil)
	return err
}

func (s *CosmosStore) Close() error {
	return nil
}

func isCosmosNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

func (s *CosmosStore) Insert(ctx context.Context, a *Asset) (*Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	stored := *a
	stored.ID = uid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("marshaling asset: %w", err)
	}

	_, err = s.client.CreateItem(ctx, azcosmos.NewPartitionKeyString(stored.ProjectID), data, nil)
	if err != nil {
		return nil, fmt.Errorf("inserting asset for project %q: %w", stored.ProjectID, err)
	}
	return &stored, nil
}

// Get has no partition key to hand, so it falls back to a cross-partition
// query on the item id.
func (s *CosmosStore) Get(ctx context.Context, id string) (*Asset, error) {
	query := "SELECT * FROM c WHERE c.id = @id"
	pager := s.client.NewQueryItemsPager(query, azcosmos.NewPartitionKey(), &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@id", Value: id}},
	})

	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting asset: %w", err)
		}
		for _, item := range resp.Items {
			var asset Asset
			if err := json.Unmarshal(item, &asset); err != nil {
				return nil, fmt.Errorf("unmarshaling asset: %w", err)
			}
			return &asset, nil
		}
	}

	return nil, ErrNotFound
}

func (s *CosmosStore) Delete(ctx context.Context, id string) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteItem(ctx, azcosmos.NewPartitionKeyString(asset.ProjectID), id, nil)
	if err != nil {
		if isCosmosNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting asset: %w", err)
	}
	return nil
}

func (s *CosmosStore) GetByProject(ctx context.Context, projectID string) ([]Asset, error) {
	query := "SELECT * FROM c WHERE c.projectId = @projectId"
	pager := s.client.NewQueryItemsPager(query, azcosmos.NewPartitionKeyString(projectID), &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@projectId", Value: projectID}},
	})

	assets := []Asset{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing assets: %w", err)
		}
		for _, item := range resp.Items {
			var asset Asset
			if err := json.Unmarshal(item, &asset); err != nil {
				continue
			}
			assets = append(assets, asset)
		}
	}

	SortAssets(assets)
	return assets, nil
}

func (s *CosmosStore) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
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

func (s *CosmosStore) BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error {
	if len(orders) == 0 {
		return nil
	}

	assets, err := s.GetByProject(ctx, projectID)
	if err != nil {
		return err
	}
	byID := make(map[string]Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	now := time.Now().UTC()
	batch := s.client.NewTransactionalBatch(azcosmos.NewPartitionKeyString(projectID))
	for id, order := range orders {
		asset, ok := byID[id]
		if !ok {
			return ErrNotFound
		}
		asset.DisplayOrder = order
		asset.UpdatedAt = now

		data, err := json.Marshal(&asset)
		if err != nil {
			return fmt.Errorf("marshaling asset: %w", err)
		}
		batch.ReplaceItem(id, data, nil)
	}

	resp, err := s.client.ExecuteTransactionalBatch(ctx, batch, nil)
	if err != nil {
		if isCosmosNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("reordering assets: %w", err)
	}
	if !resp.Success {
		for _, op := range resp.OperationResults {
			if op.StatusCode == 404 {
				return ErrNotFound
			}
		}
		return fmt.Errorf("reordering assets: transactional batch failed")
	}
	return nil
}
