// Package handlers implements the HTTP handlers for the galleryd asset API.
package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"

	apperr "github.com/galleryd/galleryd/internal/errors"
)

// decodeJSON decodes the request body into v, mapping malformed bodies to a
// validation error.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed JSON body: %v", err)
	}
	return nil
}

// partMimeType resolves the mime type for one uploaded file part: the
// part's own Content-Type header when present, otherwise a guess from the
// file extension.
func partMimeType(contentType, fileName string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return contentType
}
