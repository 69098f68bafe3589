// Package metadata defines the interface and implementations for galleryd's
// asset metadata store, which tracks one structured record per stored image.
package metadata

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	apperr "github.com/galleryd/galleryd/internal/errors"
)

// ErrNotFound is returned when an asset id has no record.
var ErrNotFound = errors.New("asset not found")

// TimeFormat is the ISO 8601 format used for all stored timestamps.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Asset is the metadata record for one binary image attached to a project.
type Asset struct {
	// ID is assigned by the store at insert time.
	ID string `json:"id"`
	// ProjectID is a weak reference: the project service owns existence.
	ProjectID string `json:"projectId"`
	// FileName is the original client-supplied name, stored as provided.
	FileName string `json:"fileName"`
	// FilePath is the blob store key. Unique globally, immutable.
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	// DisplayOrder positions the asset within its project's sequence.
	// Ordering is DisplayOrder ascending, ties broken by CreatedAt then ID.
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks the required fields of a record about to be inserted.
func (a *Asset) Validate() error {
	switch {
	case strings.TrimSpace(a.ProjectID) == "":
		return apperr.Validation("projectId is required")
	case strings.TrimSpace(a.FileName) == "":
		return apperr.Validation("fileName is required")
	case strings.TrimSpace(a.FilePath) == "":
		return apperr.Validation("filePath is required")
	case strings.TrimSpace(a.MimeType) == "":
		return apperr.Validation("mimeType is required")
	case a.FileSize < 0:
		return apperr.Validation("fileSize must not be negative")
	}
	return nil
}

// Store defines the interface for all asset metadata operations.
// Implementations must be safe for concurrent use.
type Store interface {
	io.Closer

	// Ping checks connectivity to the metadata store.
	Ping(ctx context.Context) error

	// Insert creates a new asset record, assigning ID, CreatedAt, and
	// UpdatedAt, and returns the stored record. Fails with a
	// ValidationError when required fields are absent.
	Insert(ctx context.Context, a *Asset) (*Asset, error)

	// Get retrieves an asset by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Asset, error)

	// Delete removes an asset record by id. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// GetByProject returns the project's assets ordered by DisplayOrder
	// ascending, ties broken by CreatedAt then ID. May be empty.
	GetByProject(ctx context.Context, projectID string) ([]Asset, error)

	// MaxDisplayOrder returns the highest DisplayOrder among the project's
	// assets, or -1 when the project has none.
	MaxDisplayOrder(ctx context.Context, projectID string) (int, error)

	// BatchUpdateOrder sets DisplayOrder for the given asset ids, all of
	// which must belong to projectID. The update is atomic per call:
	// either every id is updated, or none are. Returns ErrNotFound when
	// any id has no record in the project.
	BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error
}

// SortAssets orders assets in display order: DisplayOrder ascending, ties
// broken by CreatedAt then ID. Shared by the map-backed stores; SQL stores
// order in the query.
func SortAssets(assets []Asset) {
	sort.Slice(assets, func(i, j int) bool {
		a, b := &assets[i], &assets[j]
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
