package handlers

import (
	"errors"
	"net/http"
	"sync"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/galleryd/galleryd/internal/assets"
	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/jsonutil"
)

// AssetHandler serves the asset CRUD and ordering endpoints.
type AssetHandler struct {
	coord         *assets.Coordinator
	ordering      *assets.Ordering
	maxUploadSize int64
}

func NewAssetHandler(coord *assets.Coordinator, ordering *assets.Ordering, maxUploadSize int64) *AssetHandler {
	return &AssetHandler{
		coord:         coord,
		ordering:      ordering,
		maxUploadSize: maxUploadSize,
	}
}

// UploadResult is the per-file outcome of a multi-file upload. Exactly one
// of Asset and Error is set.
type UploadResult struct {
	FileName string            `json:"fileName"`
	Asset    *assets.AssetView `json:"asset,omitempty"`
	Error    *UploadError      `json:"error,omitempty"`
}

// UploadError mirrors the standard error envelope inside a per-file result.
type UploadError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Orphan  string `json:"orphan,omitempty"`
}

// UploadResponse is the POST /assets response body.
type UploadResponse struct {
	Results []UploadResult `json:"results"`
}

// Upload handles POST /assets: a multipart form with a projectId field and
// one or more file parts. Files are uploaded concurrently and fail
// independently; the response carries one result per file in form order.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonutil.WriteError(w, r, apperr.Validation("parsing multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	projectID := r.FormValue("projectId")
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		jsonutil.WriteError(w, r, apperr.Validation("no file parts in request"))
		return
	}

	results := make([]UploadResult, len(files))
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, fh := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = UploadResult{FileName: fh.Filename}

			f, err := fh.Open()
			if err != nil {
				errs[i] = apperr.Validation("opening file part %q: %v", fh.Filename, err)
				results[i].Error = uploadError(errs[i])
				return
			}
			defer f.Close()

			view, err := h.coord.Upload(r.Context(), assets.UploadRequest{
				ProjectID: projectID,
				FileName:  fh.Filename,
				MimeType:  partMimeType(fh.Header.Get("Content-Type"), fh.Filename),
				Size:      fh.Size,
				Body:      f,
			})
			if err != nil {
				slog.Error("Upload error", "fileName", fh.Filename, "projectId", projectID, "error", err)
				errs[i] = err
				results[i].Error = uploadError(err)
				return
			}
			results[i].Asset = view
		}()
	}
	wg.Wait()

	// A single-file request whose one upload failed surfaces that error
	// directly with its taxonomy status.
	if len(files) == 1 && errs[0] != nil {
		jsonutil.WriteError(w, r, errs[0])
		return
	}

	// When no file made it, the request as a whole failed: keep the
	// per-file results but take the status from the first error.
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	if failed == len(files) {
		jsonutil.Write(w, apperr.StatusOf(errs[0]), UploadResponse{Results: results})
		return
	}

	jsonutil.Write(w, http.StatusCreated, UploadResponse{Results: results})
}

// Delete handles DELETE /assets/{id}.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.coord.Delete(r.Context(), id); err != nil {
		slog.Error("Delete error", "assetId", id, "error", err)
		jsonutil.WriteError(w, r, err)
		return
	}

	jsonutil.Write(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ReorderRequest is the PUT /assets/order request body. AssetIds must be an
// exact permutation of the project's current asset ids.
type ReorderRequest struct {
	ProjectID string   `json:"projectId"`
	AssetIDs  []string `json:"assetIds"`
}

// Reorder handles PUT /assets/order.
func (h *AssetHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonutil.WriteError(w, r, err)
		return
	}

	if err := h.ordering.Reorder(r.Context(), req.ProjectID, req.AssetIDs); err != nil {
		slog.Error("Reorder error", "projectId", req.ProjectID, "error", err)
		jsonutil.WriteError(w, r, err)
		return
	}

	jsonutil.Write(w, http.StatusOK, map[string]bool{"reordered": true})
}

// ListResponse is the GET /assets response body, in display order.
type ListResponse struct {
	Assets []assets.AssetView `json:"assets"`
}

// List handles GET /assets?projectId=...
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")

	views, err := h.coord.List(r.Context(), projectID)
	if err != nil {
		slog.Error("List error", "projectId", projectID, "error", err)
		jsonutil.WriteError(w, r, err)
		return
	}

	jsonutil.Write(w, http.StatusOK, ListResponse{Assets: views})
}

func uploadError(err error) *UploadError {
	var e *apperr.Error
	msg := "internal error"
	if errors.As(err, &e) {
		msg = e.Message
	}
	return &UploadError{
		Error:   string(apperr.KindOf(err)),
		Message: msg,
		Orphan:  string(apperr.OrphanOf(err)),
	}
}
