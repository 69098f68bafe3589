// Package main is the entry point for galleryd-meta, the metadata
// export/import/audit tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"gopkg.in/yaml.v3"

	"github.com/galleryd/galleryd/internal/serialization"
)

func resolveConfigPaths(configPath string) (dbPath, blobRoot string, err error) {
	dbPath = "./data/galleryd.db"
	blobRoot = "./data/blobs"

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", "", err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", "", err
	}

	if metadata, ok := raw["metadata"].(map[string]any); ok {
		if sqliteSection, ok := metadata["sqlite"].(map[string]any); ok {
			if p, _ := sqliteSection["path"].(string); p != "" {
				dbPath = p
			}
		}
	}
	if blob, ok := raw["blob"].(map[string]any); ok {
		if local, ok := blob["local"].(map[string]any); ok {
			if p, _ := local["root_dir"].(string); p != "" {
				blobRoot = p
			}
		}
	}
	return dbPath, blobRoot, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: galleryd-meta <export|import|audit> [flags]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "export":
		os.Exit(runExport(os.Args[2:]))
	case "import":
		os.Exit(runImport(os.Args[2:]))
	case "audit":
		os.Exit(runAudit(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: galleryd-meta <export|import|audit> [flags]\n", command)
		os.Exit(1)
	}
}

func resolveDB(configPath, dbOverride string) (string, string, int) {
	dbPath, blobRoot, err := resolveConfigPaths(configPath)
	if dbOverride != "" {
		return dbOverride, blobRoot, 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return "", "", 1
	}
	return dbPath, blobRoot, 0
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	format := fs.String("format", "json", "Output format")
	output := fs.String("output", "-", "Output file path (- for stdout)")
	tables := fs.String("tables", "", "Comma-separated table names")
	fs.Parse(args)

	if *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: unsupported format: %s\n", *format)
		return 1
	}

	db, _, rc := resolveDB(*configPath, *dbPath)
	if rc != 0 {
		return rc
	}

	tableList := serialization.AllTables
	if *tables != "" {
		tableList = strings.Split(*tables, ",")
		valid := make(map[string]bool)
		for _, t := range serialization.AllTables {
			valid[t] = true
		}
		for i := range tableList {
			tableList[i] = strings.TrimSpace(tableList[i])
			if !valid[tableList[i]] {
				fmt.Fprintf(os.Stderr, "Error: invalid table name: %s\n", tableList[i])
				return 1
			}
		}
	}

	result, err := serialization.ExportMetadata(db, &serialization.ExportOptions{Tables: tableList})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		return 1
	}

	if *output == "-" {
		fmt.Println(result)
	} else {
		if err := os.WriteFile(*output, []byte(result+"\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}

	return 0
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	input := fs.String("input", "-", "Input file path (- for stdin)")
	replace := fs.Bool("replace", false, "Replace mode (DELETE then INSERT)")
	fs.Parse(args)

	db, _, rc := resolveDB(*configPath, *dbPath)
	if rc != 0 {
		return rc
	}

	var jsonData []byte
	var err error
	if *input == "-" {
		jsonData, err = os.ReadFile("/dev/stdin")
	} else {
		jsonData, err = os.ReadFile(*input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		return 1
	}

	result, err := serialization.ImportMetadata(db, string(jsonData), &serialization.ImportOptions{Replace: *replace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return 1
	}

	for _, table := range serialization.AllTables {
		count, ok := result.Counts[table]
		if !ok {
			continue
		}
		skip := result.Skipped[table]
		msg := fmt.Sprintf("  %s: %d imported", table, count)
		if skip > 0 {
			msg += fmt.Sprintf(", %d skipped", skip)
		}
		fmt.Fprintln(os.Stderr, msg)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  WARNING: %s\n", w)
	}

	return 0
}

func runAudit(args []string) int {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	blobRoot := fs.String("blob-root", "", "Local blob root directory (overrides config)")
	fs.Parse(args)

	db, root, rc := resolveDB(*configPath, *dbPath)
	if rc != 0 {
		return rc
	}
	if *blobRoot != "" {
		root = *blobRoot
	}

	result, err := serialization.AuditMetadata(db, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error auditing: %v\n", err)
		return 1
	}

	fmt.Printf("assets: %d  blobs: %d\n", result.AssetCount, result.BlobCount)
	for _, key := range result.OrphanBlobs {
		fmt.Printf("orphan-blob: %s\n", key)
	}
	for _, id := range result.OrphanMetadata {
		fmt.Printf("orphan-metadata: %s\n", id)
	}

	if len(result.OrphanBlobs)+len(result.OrphanMetadata) == 0 {
		fmt.Println("no orphans found")
	}

	return 0
}
