package console

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minedient/elerp/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	sheetID, err := st.InsertWorksheetAndPath(ctx, store.Worksheet{
		Name:    "F1_Math_01.pdf",
		Subject: "Mathematics",
		Form:    "Form 1",
	}, "/data/worksheets/F1_Math_01.pdf")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	recordID, err := st.RegisterUse(ctx, sheetID, "1A", "Chan Tai Man")
	if err != nil {
		t.Fatalf("register use: %v", err)
	}
	if err := st.RegisterClassRecord(ctx, recordID, "B", "Wong"); err != nil {
		t.Fatalf("class record: %v", err)
	}
	return st
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestExportTables(t *testing.T) {
	st := seededStore(t)
	dir := t.TempDir()

	files, err := ExportTables(context.Background(), st, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}

	worksheets := readCSV(t, files[0])
	if len(worksheets) != 2 {
		t.Fatalf("worksheets rows: %d", len(worksheets))
	}
	if worksheets[0][0] != "Worksheet ID" {
		t.Fatalf("worksheets header: %v", worksheets[0])
	}
	if worksheets[1][1] != "F1_Math_01.pdf" {
		t.Fatalf("worksheets data: %v", worksheets[1])
	}

	records := readCSV(t, files[1])
	if len(records) != 2 || records[1][3] != "1A" {
		t.Fatalf("records rows: %v", records)
	}

	paths := readCSV(t, files[2])
	if len(paths) != 2 || paths[1][2] != "/data/worksheets/F1_Math_01.pdf" {
		t.Fatalf("paths rows: %v", paths)
	}
}

func TestExportUsageDetails(t *testing.T) {
	st := seededStore(t)
	dir := t.TempDir()

	file, err := ExportUsageDetails(context.Background(), st, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasSuffix(file, "_masterData.csv") {
		t.Fatalf("unexpected file name: %s", file)
	}

	rows := readCSV(t, file)
	if len(rows) != 2 {
		t.Fatalf("rows: %d", len(rows))
	}
	got := rows[1]
	if got[1] != "1A" || got[2] != "Chan Tai Man" || got[3] != "F1_Math_01.pdf" || got[5] != "B" || got[6] != "Wong" {
		t.Fatalf("detail row: %v", got)
	}
}
