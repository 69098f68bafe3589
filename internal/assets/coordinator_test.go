package assets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/galleryd/galleryd/internal/blob"
	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/metadata"
	"github.com/galleryd/galleryd/internal/projects"
)

const testProject = "proj-1"

func newTestCoordinator(t *testing.T) (*Coordinator, *metadata.MemoryStore, *blob.MemoryStore) {
	t.Helper()
	meta := metadata.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	lookup := projects.NewMemoryLookup(testProject)
	coord := NewCoordinator(meta, blobs, lookup, 5*time.Second)
	return coord, meta, blobs
}

func uploadReq(name, mime, content string) UploadRequest {
	return UploadRequest{
		ProjectID: testProject,
		FileName:  name,
		MimeType:  mime,
		Size:      int64(len(content)),
		Body:      strings.NewReader(content),
	}
}

func TestUploadSuccess(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	view, err := coord.Upload(ctx, uploadReq("photo.jpg", "image/jpeg", "jpegdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if view.ID == "" {
		t.Error("asset ID is empty")
	}
	if view.ProjectID != testProject {
		t.Errorf("ProjectID = %q, want %q", view.ProjectID, testProject)
	}
	if view.FileSize != int64(len("jpegdata")) {
		t.Errorf("FileSize = %d, want %d", view.FileSize, len("jpegdata"))
	}
	if !strings.HasPrefix(view.FilePath, "projects/"+testProject+"/") {
		t.Errorf("FilePath = %q, want projects/%s/ prefix", view.FilePath, testProject)
	}
	if !strings.HasSuffix(view.FilePath, ".jpg") {
		t.Errorf("FilePath = %q, want .jpg suffix", view.FilePath)
	}
	if view.URL != blobs.PublicURL(view.FilePath) {
		t.Errorf("URL = %q, want %q", view.URL, blobs.PublicURL(view.FilePath))
	}

	// Blob and metadata both present, referencing each other.
	data, err := blobs.Get(view.FilePath)
	if err != nil {
		t.Fatalf("blob missing at %q: %v", view.FilePath, err)
	}
	if string(data) != "jpegdata" {
		t.Errorf("blob content = %q, want %q", data, "jpegdata")
	}
	if _, err := meta.Get(ctx, view.ID); err != nil {
		t.Errorf("metadata row missing: %v", err)
	}
}

func TestUploadAppendsAtEnd(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, err := coord.Upload(ctx, uploadReq("a.png", "image/png", "a"))
	if err != nil {
		t.Fatalf("Upload a: %v", err)
	}
	second, err := coord.Upload(ctx, uploadReq("b.png", "image/png", "b"))
	if err != nil {
		t.Fatalf("Upload b: %v", err)
	}

	if first.DisplayOrder != 0 {
		t.Errorf("first DisplayOrder = %d, want 0", first.DisplayOrder)
	}
	if second.DisplayOrder != first.DisplayOrder+1 {
		t.Errorf("second DisplayOrder = %d, want %d", second.DisplayOrder, first.DisplayOrder+1)
	}
}

func TestUploadValidation(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  UploadRequest
		kind apperr.Kind
	}{
		{"nil body", UploadRequest{ProjectID: testProject, FileName: "x.png", MimeType: "image/png"}, apperr.KindValidation},
		{"non-image mime", uploadReq("doc.pdf", "application/pdf", "pdf"), apperr.KindValidation},
		{"empty file name", UploadRequest{ProjectID: testProject, MimeType: "image/png", Body: strings.NewReader("x")}, apperr.KindValidation},
		{"missing project id", UploadRequest{FileName: "x.png", MimeType: "image/png", Body: strings.NewReader("x")}, apperr.KindValidation},
		{"unknown project", UploadRequest{ProjectID: "ghost", FileName: "x.png", MimeType: "image/png", Size: 1, Body: strings.NewReader("x")}, apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coord.Upload(ctx, tt.req)
			if err == nil {
				t.Fatal("Upload succeeded, want error")
			}
			if got := apperr.KindOf(err); got != tt.kind {
				t.Errorf("error kind = %v, want %v", got, tt.kind)
			}
		})
	}

	// Rejected uploads leave zero side effects in either store.
	if blobs.Len() != 0 {
		t.Errorf("blob count = %d after rejected uploads, want 0", blobs.Len())
	}
	assets, _ := meta.GetByProject(ctx, testProject)
	if len(assets) != 0 {
		t.Errorf("asset count = %d after rejected uploads, want 0", len(assets))
	}
}

func TestUploadBlobFailureLeavesNoMetadata(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	blobs.PutErr = errors.New("backend unreachable")

	_, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "x"))
	if err == nil {
		t.Fatal("Upload succeeded, want StorageError")
	}
	if got := apperr.KindOf(err); got != apperr.KindStorage {
		t.Errorf("error kind = %v, want %v", got, apperr.KindStorage)
	}

	assets, _ := meta.GetByProject(ctx, testProject)
	if len(assets) != 0 {
		t.Errorf("asset count = %d after failed blob put, want 0", len(assets))
	}
}

func TestUploadMetadataFailureCompensates(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	meta.InsertErr = errors.New("insert rejected")

	_, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err == nil {
		t.Fatal("Upload succeeded, want ConsistencyError")
	}
	if got := apperr.KindOf(err); got != apperr.KindConsistency {
		t.Errorf("error kind = %v, want %v", got, apperr.KindConsistency)
	}
	if got := apperr.OrphanOf(err); got != apperr.OrphanNone {
		t.Errorf("orphan = %q, want none (compensation succeeded)", got)
	}

	// The compensating remove took the blob back out.
	if blobs.Len() != 0 {
		t.Errorf("blob count = %d after compensation, want 0", blobs.Len())
	}
}

func TestUploadFailedCompensationAnnotatesOrphanBlob(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	meta.InsertErr = errors.New("insert rejected")
	blobs.RemoveErr = errors.New("remove rejected")

	_, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err == nil {
		t.Fatal("Upload succeeded, want ConsistencyError")
	}
	if got := apperr.KindOf(err); got != apperr.KindConsistency {
		t.Errorf("error kind = %v, want %v", got, apperr.KindConsistency)
	}
	if got := apperr.OrphanOf(err); got != apperr.OrphanBlob {
		t.Errorf("orphan = %q, want %q", got, apperr.OrphanBlob)
	}

	// The orphaned blob is still there for offline reclamation.
	if blobs.Len() != 1 {
		t.Errorf("blob count = %d, want 1 orphan", blobs.Len())
	}
}

func TestUploadCompensationSurvivesCanceledCaller(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)

	meta.InsertErr = errors.New("insert rejected")

	// The caller's context is already canceled when compensation runs;
	// the detached context must still carry the remove through.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err == nil {
		t.Fatal("Upload succeeded, want error")
	}
	if got := apperr.OrphanOf(err); got != apperr.OrphanNone {
		t.Errorf("orphan = %q, want none", got)
	}
	if blobs.Len() != 0 {
		t.Errorf("blob count = %d after compensation, want 0", blobs.Len())
	}
}

func TestDeleteSuccess(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	view, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := coord.Delete(ctx, view.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if blobs.Len() != 0 {
		t.Errorf("blob count = %d after delete, want 0", blobs.Len())
	}
	if _, err := meta.Get(ctx, view.ID); err != metadata.ErrNotFound {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteUnknownAsset(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	err := coord.Delete(context.Background(), "no-such-id")
	if got := apperr.KindOf(err); got != apperr.KindNotFound {
		t.Errorf("error kind = %v, want %v", got, apperr.KindNotFound)
	}
}

func TestDeleteIsIdempotentAtBlobLayer(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	view, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Simulate a crash after the blob was removed but before the metadata
	// delete: the blob is gone, the row remains. A retried delete must
	// treat the missing blob as already-gone and still remove the row.
	if err := blobs.Remove(ctx, view.FilePath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if err := coord.Delete(ctx, view.ID); err != nil {
		t.Fatalf("Delete after blob already gone: %v", err)
	}
	if _, err := meta.Get(ctx, view.ID); err != metadata.ErrNotFound {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// A second delete of the same id reports not found.
	err = coord.Delete(ctx, view.ID)
	if got := apperr.KindOf(err); got != apperr.KindNotFound {
		t.Errorf("second delete kind = %v, want %v", got, apperr.KindNotFound)
	}
}

func TestDeleteBlobFailureLeavesRow(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()

	view, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	blobs.RemoveErr = errors.New("backend unreachable")

	err = coord.Delete(ctx, view.ID)
	if got := apperr.KindOf(err); got != apperr.KindStorage {
		t.Errorf("error kind = %v, want %v", got, apperr.KindStorage)
	}

	// The row survives so the asset is still listed and retryable.
	if _, err := meta.Get(ctx, view.ID); err != nil {
		t.Errorf("metadata row gone after failed blob remove: %v", err)
	}
}

func TestDeleteMetadataFailureAnnotatesOrphanMetadata(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()

	view, err := coord.Upload(ctx, uploadReq("x.png", "image/png", "xdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	meta.DeleteErr = errors.New("delete rejected")

	err = coord.Delete(ctx, view.ID)
	if got := apperr.KindOf(err); got != apperr.KindConsistency {
		t.Errorf("error kind = %v, want %v", got, apperr.KindConsistency)
	}
	if got := apperr.OrphanOf(err); got != apperr.OrphanMetadata {
		t.Errorf("orphan = %q, want %q", got, apperr.OrphanMetadata)
	}
}

func TestListFillsURLs(t *testing.T) {
	coord, _, blobs := newTestCoordinator(t)
	ctx := context.Background()

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := coord.Upload(ctx, uploadReq(name, "image/png", name)); err != nil {
			t.Fatalf("Upload %s: %v", name, err)
		}
	}

	views, err := coord.List(ctx, testProject)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("len(views) = %d, want 3", len(views))
	}
	for i, v := range views {
		if v.DisplayOrder != i {
			t.Errorf("views[%d].DisplayOrder = %d, want %d", i, v.DisplayOrder, i)
		}
		if v.URL != blobs.PublicURL(v.FilePath) {
			t.Errorf("views[%d].URL = %q, want %q", i, v.URL, blobs.PublicURL(v.FilePath))
		}
	}
}

// stalledMeta wraps a MemoryStore and blocks selected calls until their
// context is canceled.
type stalledMeta struct {
	*metadata.MemoryStore
	stallGet      bool
	stallMaxOrder bool
}

func (s *stalledMeta) Get(ctx context.Context, id string) (*metadata.Asset, error) {
	if s.stallGet {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *stalledMeta) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
	if s.stallMaxOrder {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.MemoryStore.MaxDisplayOrder(ctx, projectID)
}

func TestDeleteBoundsStalledMetadata(t *testing.T) {
	meta := &stalledMeta{MemoryStore: metadata.NewMemoryStore(), stallGet: true}
	coord := NewCoordinator(meta, blob.NewMemoryStore(), projects.NewMemoryLookup(testProject), 50*time.Millisecond)

	start := time.Now()
	err := coord.Delete(context.Background(), "some-id")
	if err == nil {
		t.Fatal("Delete against stalled store succeeded, want error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Delete took %v, want prompt return via op timeout", elapsed)
	}
}

func TestUploadBoundsStalledMetadata(t *testing.T) {
	meta := &stalledMeta{MemoryStore: metadata.NewMemoryStore(), stallMaxOrder: true}
	blobs := blob.NewMemoryStore()
	coord := NewCoordinator(meta, blobs, projects.NewMemoryLookup(testProject), 50*time.Millisecond)

	start := time.Now()
	_, err := coord.Upload(context.Background(), uploadReq("x.png", "image/png", "xdata"))
	if err == nil {
		t.Fatal("Upload against stalled store succeeded, want error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Upload took %v, want prompt return via op timeout", elapsed)
	}

	// The timed-out insert was compensated like any other insert failure.
	if blobs.Len() != 0 {
		t.Errorf("blob count = %d after timed-out insert, want 0", blobs.Len())
	}
}

func TestBlobKeyUniqueness(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := coord.blobKey(testProject, "same.png")
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}
