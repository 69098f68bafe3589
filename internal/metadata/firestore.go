package metadata

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/galleryd/galleryd/internal/config"
	"github.com/galleryd/galleryd/internal/uid"
)

// FirestoreStore implements the Store interface on Google Cloud Firestore.
// Each asset is one document keyed by "asset_{id}" in a single collection,
// with project queries going through a project_id field filter.
// BatchUpdateOrder runs inside a Firestore transaction so a reorder
// applies all-or-nothing.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func docIDAsset(id string) string {
	return "asset_" + id
}

func NewFirestoreStore(ctx context.Context, cfg *config.FirestoreConfig) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore config is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "galleryd"
	}

	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) collectionRef() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.collectionRef().Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *FirestoreStore) Insert(ctx context.Context, a *Asset) (*Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	stored := *a
	stored.ID = uid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	docRef := s.collectionRef().Doc(docIDAsset(stored.ID))
	if _, err := docRef.Create(ctx, assetToDoc(&stored)); err != nil {
		return nil, fmt.Errorf("inserting asset for project %q: %w", stored.ProjectID, err)
	}
	return &stored, nil
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*Asset, error) {
	docRef := s.collectionRef().Doc(docIDAsset(id))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	if !doc.Exists() {
		return nil, ErrNotFound
	}
	return docToAsset(doc.Data()), nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	docRef := s.collectionRef().Doc(docIDAsset(id))
	_, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("checking asset before delete: %w", err)
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetByProject(ctx context.Context, projectID string) ([]Asset, error) {
	query := s.collectionRef().Where("project_id", "==", projectID)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	assets := make([]Asset, 0, len(docs))
	for _, doc := range docs {
		assets = append(assets, *docToAsset(doc.Data()))
	}

	SortAssets(assets)
	return assets, nil
}

func (s *FirestoreStore) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
	query := s.collectionRef().
		Where("project_id", "==", projectID).
		OrderBy("display_order", firestore.Desc).
		Limit(1)

	doc, err := query.Documents(ctx).Next()
	if err == iterator.Done {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying max display order: %w", err)
	}

	return docInt(doc.Data(), "display_order"), nil
}

func (s *FirestoreStore) BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error {
	if len(orders) == 0 {
		return nil
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore transactions require all reads before any write.
		refs := make(map[string]*firestore.DocumentRef, len(orders))
		for id := range orders {
			docRef := s.collectionRef().Doc(docIDAsset(id))
			doc, err := tx.Get(docRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return ErrNotFound
				}
				return err
			}
			if docString(doc.Data(), "project_id") != projectID {
				return ErrNotFound
			}
			refs[id] = docRef
		}

		now := time.Now().UTC().Format(TimeFormat)
		for id, order := range orders {
			if err := tx.Update(refs[id], []firestore.Update{
				{Path: "display_order", Value: order},
				{Path: "updated_at", Value: now},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err == ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reordering assets: %w", err)
	}
	return nil
}

func assetToDoc(asset *Asset) map[string]interface{} {
	return map[string]interface{}{
		"id":            asset.ID,
		"project_id":    asset.ProjectID,
		"file_name":     asset.FileName,
		"file_path":     asset.FilePath,
		"file_size":     asset.FileSize,
		"mime_type":     asset.MimeType,
		"display_order": asset.DisplayOrder,
		"created_at":    asset.CreatedAt.UTC().Format(TimeFormat),
		"updated_at":    asset.UpdatedAt.UTC().Format(TimeFormat),
	}
}

func docToAsset(m map[string]interface{}) *Asset {
	createdAt, _ := time.Parse(TimeFormat, docString(m, "created_at"))
	updatedAt, _ := time.Parse(TimeFormat, docString(m, "updated_at"))
	return &Asset{
		ID:           docString(m, "id"),
		ProjectID:    docString(m, "project_id"),
		FileName:     docString(m, "file_name"),
		FilePath:     docString(m, "file_path"),
		FileSize:     docInt64(m, "file_size"),
		MimeType:     docString(m, "mime_type"),
		DisplayOrder: docInt(m, "display_order"),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

func docString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func docInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return 0
}

func docInt(m map[string]interface{}, key string) int {
	return int(docInt64(m, key))
}
