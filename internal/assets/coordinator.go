// Package assets holds the write path that keeps the blob store and the
// metadata store consistent: uploads and deletes run as a blob-first /
// metadata-second sequence with a compensating action when the second step
// fails, and reorders are validated and serialized per project.
package assets

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/galleryd/galleryd/internal/blob"
	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/metadata"
	"github.com/galleryd/galleryd/internal/metrics"
	"github.com/galleryd/galleryd/internal/projects"
)

// UploadRequest carries one file of an upload call.
type UploadRequest struct {
	ProjectID string
	FileName  string
	MimeType  string
	Size      int64
	Body      io.Reader
}

// AssetView is an asset plus its public blob URL, the shape returned to
// clients. The URL is derived, never stored.
type AssetView struct {
	metadata.Asset
	URL string `json:"url"`
}

// Coordinator sequences every operation that touches both stores. The
// blob store is written first on upload and removed first on delete, so
// metadata never references bytes that were never written.
type Coordinator struct {
	meta      metadata.Store
	blobs     blob.Store
	projects  projects.Lookup
	opTimeout time.Duration

	keyMu    sync.Mutex
	lastNano int64
}

func NewCoordinator(meta metadata.Store, blobs blob.Store, lookup projects.Lookup, opTimeout time.Duration) *Coordinator {
	return &Coordinator{
		meta:      meta,
		blobs:     blobs,
		projects:  lookup,
		opTimeout: opTimeout,
	}
}

// Upload stores one image: validate, write the blob, insert the metadata
// row at the end of the project's display order. If the metadata insert
// fails the blob is removed again on a context detached from the caller;
// if that compensation also fails the returned error carries an
// orphan-blob annotation so the blob key is traceable for reclamation.
func (c *Coordinator) Upload(ctx context.Context, req UploadRequest) (*AssetView, error) {
	if req.Body == nil {
		return nil, apperr.Validation("missing file body")
	}
	if req.ProjectID == "" {
		return nil, apperr.Validation("missing projectId")
	}
	if req.FileName == "" {
		return nil, apperr.Validation("missing file name")
	}
	if !strings.HasPrefix(req.MimeType, "image/") {
		return nil, apperr.Validation("unsupported mime type %q: only image/* is accepted", req.MimeType)
	}

	ok, err := c.projects.Exists(ctx, req.ProjectID)
	if err != nil {
		return nil, apperr.Internal(err, "checking project %q", req.ProjectID)
	}
	if !ok {
		return nil, apperr.NotFound("project %q not found", req.ProjectID)
	}

	key := c.blobKey(req.ProjectID, req.FileName)

	putCtx, cancel := c.opContext(ctx)
	written, err := c.blobs.Put(putCtx, key, req.Body, req.Size)
	cancel()
	if err != nil {
		metrics.AssetOperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, apperr.Storage(err, "writing blob %q", key)
	}
	metrics.UploadBytesTotal.Add(float64(written))

	metaCtx, cancel := c.opContext(ctx)
	asset, err := c.insertAppended(metaCtx, req, key, written)
	cancel()
	if err != nil {
		return nil, c.compensateUpload(ctx, key, err)
	}

	metrics.AssetOperationsTotal.WithLabelValues("upload", "ok").Inc()
	return &AssetView{Asset: *asset, URL: c.blobs.PublicURL(asset.FilePath)}, nil
}

func (c *Coordinator) insertAppended(ctx context.Context, req UploadRequest, key string, size int64) (*metadata.Asset, error) {
	max, err := c.meta.MaxDisplayOrder(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("reading display order for project %q: %w", req.ProjectID, err)
	}

	return c.meta.Insert(ctx, &metadata.Asset{
		ProjectID:    req.ProjectID,
		FileName:     req.FileName,
		FilePath:     key,
		FileSize:     size,
		MimeType:     req.MimeType,
		DisplayOrder: max + 1,
	})
}

// compensateUpload removes the just-written blob after a metadata failure.
// It runs on a detached context so a client disconnect mid-request cannot
// cancel the cleanup.
func (c *Coordinator) compensateUpload(ctx context.Context, key string, cause error) error {
	dctx, cancel := c.opContext(context.WithoutCancel(ctx))
	defer cancel()

	metrics.AssetOperationsTotal.WithLabelValues("upload", "error").Inc()

	if err := c.blobs.Remove(dctx, key); err != nil && err != blob.ErrNotFound {
		slog.Error("upload compensation failed, blob orphaned", "key", key, "error", err, "cause", cause)
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		metrics.OrphansTotal.WithLabelValues(string(apperr.OrphanBlob)).Inc()
		return apperr.Consistency(cause, apperr.OrphanBlob, "metadata insert failed and blob %q could not be removed", key)
	}

	slog.Warn("upload compensated, blob removed", "key", key, "cause", cause)
	metrics.CompensationsTotal.WithLabelValues("ok").Inc()
	return apperr.Consistency(cause, apperr.OrphanNone, "metadata insert failed, blob removed")
}

// Delete removes an asset blob-first. A missing blob is treated as already
// gone so deletes are idempotent at the blob layer; a metadata failure
// after the blob is gone yields an orphan-metadata annotation.
func (c *Coordinator) Delete(ctx context.Context, assetID string) error {
	getCtx, cancel := c.opContext(ctx)
	asset, err := c.meta.Get(getCtx, assetID)
	cancel()
	if err != nil {
		if err == metadata.ErrNotFound {
			return apperr.NotFound("asset %q not found", assetID)
		}
		return apperr.Internal(err, "looking up asset %q", assetID)
	}

	// Both store touches run detached: once the blob is gone the metadata
	// delete must get its attempt even if the caller disconnects.
	dctx, cancel := c.opContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := c.blobs.Remove(dctx, asset.FilePath); err != nil && err != blob.ErrNotFound {
		metrics.AssetOperationsTotal.WithLabelValues("delete", "error").Inc()
		return apperr.Storage(err, "removing blob %q", asset.FilePath)
	}

	if err := c.meta.Delete(dctx, assetID); err != nil && err != metadata.ErrNotFound {
		slog.Error("metadata delete failed after blob removal, row orphaned", "assetId", assetID, "error", err)
		metrics.AssetOperationsTotal.WithLabelValues("delete", "error").Inc()
		metrics.OrphansTotal.WithLabelValues(string(apperr.OrphanMetadata)).Inc()
		return apperr.Consistency(err, apperr.OrphanMetadata, "blob removed but metadata delete failed for asset %q", assetID)
	}

	metrics.AssetOperationsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

// List returns a project's assets in display order, URLs filled in.
func (c *Coordinator) List(ctx context.Context, projectID string) ([]AssetView, error) {
	if projectID == "" {
		return nil, apperr.Validation("missing projectId")
	}

	listCtx, cancel := c.opContext(ctx)
	assets, err := c.meta.GetByProject(listCtx, projectID)
	cancel()
	if err != nil {
		return nil, apperr.Internal(err, "listing assets for project %q", projectID)
	}

	views := make([]AssetView, 0, len(assets))
	for _, a := range assets {
		views = append(views, AssetView{Asset: a, URL: c.blobs.PublicURL(a.FilePath)})
	}
	return views, nil
}

// blobKey derives projects/{projectID}/{unixNano}{ext}. The nanosecond
// clock is guarded by a per-process sequence so two uploads landing on the
// same tick still get distinct keys.
func (c *Coordinator) blobKey(projectID, fileName string) string {
	c.keyMu.Lock()
	nano := time.Now().UnixNano()
	if nano <= c.lastNano {
		nano = c.lastNano + 1
	}
	c.lastNano = nano
	c.keyMu.Unlock()

	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("projects/%s/%d%s", projectID, nano, ext)
}

func (c *Coordinator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
