package serialization

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/galleryd/galleryd/internal/metadata"
	"github.com/galleryd/galleryd/internal/projects"
)

// newSeededDB creates a sqlite database with the asset schema, one project,
// and the given asset file paths. Returns the database path and asset ids.
func newSeededDB(t *testing.T, filePaths ...string) (string, []string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := metadata.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := projects.NewSQLiteLookup(store.DB()); err != nil {
		t.Fatalf("NewSQLiteLookup: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO projects (id, name) VALUES ('p1', 'First')`); err != nil {
		t.Fatalf("seeding project: %v", err)
	}

	ids := make([]string, 0, len(filePaths))
	for i, fp := range filePaths {
		stored, err := store.Insert(context.Background(), &metadata.Asset{
			ProjectID:    "p1",
			FileName:     filepath.Base(fp),
			FilePath:     fp,
			FileSize:     1,
			MimeType:     "image/png",
			DisplayOrder: i,
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, stored.ID)
	}
	return dbPath, ids
}

func TestExportEnvelope(t *testing.T) {
	dbPath, _ := newSeededDB(t, "projects/p1/1.png")

	out, err := ExportMetadata(dbPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	env, ok := data["galleryd_export"].(map[string]any)
	if !ok {
		t.Fatal("missing galleryd_export envelope")
	}
	if env["version"] != float64(ExportVersion) {
		t.Errorf("envelope version = %v, want %d", env["version"], ExportVersion)
	}
	if _, ok := data["assets"]; !ok {
		t.Error("export missing assets table")
	}
	if _, ok := data["projects"]; !ok {
		t.Error("export missing projects table")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	srcPath, ids := newSeededDB(t, "projects/p1/1.png", "projects/p1/2.png")

	out, err := ExportMetadata(srcPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}

	dstPath, _ := newSeededDB(t)
	result, err := ImportMetadata(dstPath, out, &ImportOptions{Replace: true})
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if result.Counts["assets"] != 2 {
		t.Errorf("imported assets = %d, want 2", result.Counts["assets"])
	}

	store, err := metadata.NewSQLiteStore(dstPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	assets, err := store.GetByProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetByProject: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("asset count = %d, want 2", len(assets))
	}
	for i, a := range assets {
		if a.ID != ids[i] {
			t.Errorf("assets[%d].ID = %q, want %q", i, a.ID, ids[i])
		}
	}
}

func TestImportSkipsExistingWithoutReplace(t *testing.T) {
	srcPath, _ := newSeededDB(t, "projects/p1/1.png")

	out, err := ExportMetadata(srcPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}

	// Importing into the source itself without Replace skips every row.
	result, err := ImportMetadata(srcPath, out, nil)
	if err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}
	if result.Counts["assets"] != 0 {
		t.Errorf("imported assets = %d, want 0", result.Counts["assets"])
	}
	if result.Skipped["assets"] != 1 {
		t.Errorf("skipped assets = %d, want 1", result.Skipped["assets"])
	}

	var n int
	db, err := sql.Open("sqlite", srcPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if err := db.QueryRow("SELECT COUNT(*) FROM assets").Scan(&n); err != nil {
		t.Fatalf("counting assets: %v", err)
	}
	if n != 1 {
		t.Errorf("asset rows = %d, want 1", n)
	}
}

func TestExportSelectedTables(t *testing.T) {
	dbPath, _ := newSeededDB(t, "projects/p1/1.png")

	out, err := ExportMetadata(dbPath, &ExportOptions{Tables: []string{"assets"}})
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if _, ok := data["projects"]; ok {
		t.Error("projects table exported despite table filter")
	}
	if _, ok := data["assets"]; !ok {
		t.Error("assets table missing")
	}
}

// writeBlob creates a blob file under root at the slash-separated key.
func writeBlob(t *testing.T, root, key string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAuditCleanState(t *testing.T) {
	dbPath, _ := newSeededDB(t, "projects/p1/1.png")
	blobRoot := t.TempDir()
	writeBlob(t, blobRoot, "projects/p1/1.png")

	result, err := AuditMetadata(dbPath, blobRoot)
	if err != nil {
		t.Fatalf("AuditMetadata: %v", err)
	}
	if len(result.OrphanBlobs) != 0 {
		t.Errorf("OrphanBlobs = %v, want none", result.OrphanBlobs)
	}
	if len(result.OrphanMetadata) != 0 {
		t.Errorf("OrphanMetadata = %v, want none", result.OrphanMetadata)
	}
	if result.AssetCount != 1 || result.BlobCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", result.AssetCount, result.BlobCount)
	}
}

func TestAuditFindsOrphans(t *testing.T) {
	dbPath, ids := newSeededDB(t, "projects/p1/1.png", "projects/p1/gone.png")
	blobRoot := t.TempDir()
	writeBlob(t, blobRoot, "projects/p1/1.png")
	writeBlob(t, blobRoot, "projects/p1/unreferenced.png")

	// Files under .tmp are write staging, never audited.
	writeBlob(t, blobRoot, ".tmp/tmp-partial")

	result, err := AuditMetadata(dbPath, blobRoot)
	if err != nil {
		t.Fatalf("AuditMetadata: %v", err)
	}

	if len(result.OrphanBlobs) != 1 || result.OrphanBlobs[0] != "projects/p1/unreferenced.png" {
		t.Errorf("OrphanBlobs = %v, want [projects/p1/unreferenced.png]", result.OrphanBlobs)
	}
	wantID := ids[1]
	if len(result.OrphanMetadata) != 1 || result.OrphanMetadata[0] != wantID {
		t.Errorf("OrphanMetadata = %v, want [%s]", result.OrphanMetadata, wantID)
	}
	if result.BlobCount != 2 {
		t.Errorf("BlobCount = %d, want 2", result.BlobCount)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	dbPath, _ := newSeededDB(t)
	if _, err := ImportMetadata(dbPath, "not json", nil); err == nil {
		t.Error("ImportMetadata of garbage succeeded, want error")
	}
	if _, err := ImportMetadata(dbPath, `{"no": "envelope"}`, nil); err == nil {
		t.Error("ImportMetadata without envelope succeeded, want error")
	}
}

func TestExportDeterministic(t *testing.T) {
	dbPath, _ := newSeededDB(t, "projects/p1/1.png")

	first, err := ExportMetadata(dbPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}
	second, err := ExportMetadata(dbPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}

	// The exported_at stamp differs between runs; everything else is
	// byte-stable thanks to sorted keys and ordered queries.
	strip := func(s string) string {
		var keep []string
		for _, line := range strings.Split(s, "\n") {
			if strings.Contains(line, "exported_at") {
				continue
			}
			keep = append(keep, line)
		}
		return strings.Join(keep, "\n")
	}
	if strip(first) != strip(second) {
		t.Error("export output differs between identical runs")
	}
}

func TestImportReplaceOverwrites(t *testing.T) {
	srcPath, _ := newSeededDB(t, "projects/p1/1.png")
	out, err := ExportMetadata(srcPath, nil)
	if err != nil {
		t.Fatalf("ExportMetadata: %v", err)
	}

	// The destination has an extra asset that Replace mode wipes out.
	dstPath, _ := newSeededDB(t, "projects/p1/other.png")
	if _, err := ImportMetadata(dstPath, out, &ImportOptions{Replace: true}); err != nil {
		t.Fatalf("ImportMetadata: %v", err)
	}

	db, err := sql.Open("sqlite", dstPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var fp string
	if err := db.QueryRow("SELECT file_path FROM assets").Scan(&fp); err != nil {
		t.Fatalf("reading imported asset: %v", err)
	}
	if fp != "projects/p1/1.png" {
		t.Errorf("file_path = %q, want projects/p1/1.png", fp)
	}
	if err := db.QueryRow("SELECT file_path FROM assets WHERE file_path = 'projects/p1/other.png'").Scan(&fp); err != sql.ErrNoRows {
		t.Errorf("pre-existing asset survived Replace import, err = %v", err)
	}
}
