package console

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/minedient/elerp/internal/store"
)

// stampLayout keeps export file names sortable and filesystem-safe.
const stampLayout = "2006-01-02 15-04-05"

// ExportTables writes the worksheets, records and paths tables as CSV
// files named by the current time, returning the paths written.
func ExportTables(ctx context.Context, st *store.Store, dir string) ([]string, error) {
	stamp := time.Now().Format(stampLayout)

	worksheets, err := st.Worksheets(ctx)
	if err != nil {
		return nil, err
	}
	records, err := st.Records(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := st.Paths(ctx)
	if err != nil {
		return nil, err
	}

	var written []string

	file := filepath.Join(dir, stamp+"_worksheets.csv")
	rows := [][]string{{"Worksheet ID", "Name", "Description", "Upload Date", "Last Update Date", "Subject", "Form"}}
	for _, w := range worksheets {
		rows = append(rows, []string{
			strconv.FormatInt(w.SheetID, 10), w.Name, w.Description,
			w.UploadDate, w.LastUpdate, w.Subject, w.Form,
		})
	}
	if err := writeCSV(file, rows); err != nil {
		return nil, err
	}
	written = append(written, file)

	file = filepath.Join(dir, stamp+"_records.csv")
	rows = [][]string{{"Record ID", "Worksheet ID", "Use Date", "Class", "Teacher"}}
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.RecordID, 10), strconv.FormatInt(r.SheetID, 10),
			r.UseDate, r.Class, r.Teacher,
		})
	}
	if err := writeCSV(file, rows); err != nil {
		return nil, err
	}
	written = append(written, file)

	file = filepath.Join(dir, stamp+"_paths.csv")
	rows = [][]string{{"Path ID", "Worksheet ID", "File Path"}}
	for _, p := range paths {
		rows = append(rows, []string{
			strconv.FormatInt(p.PathID, 10), strconv.FormatInt(p.SheetID, 10), p.FilePath,
		})
	}
	if err := writeCSV(file, rows); err != nil {
		return nil, err
	}
	written = append(written, file)

	return written, nil
}

// ExportUsageDetails writes the joined usage view (record, class,
// teacher, worksheet, section, substitute) to one CSV file.
func ExportUsageDetails(ctx context.Context, st *store.Store, dir string) (string, error) {
	details, err := st.UsageDetails(ctx)
	if err != nil {
		return "", err
	}

	file := filepath.Join(dir, time.Now().Format(stampLayout)+"_masterData.csv")
	rows := [][]string{{"Record ID", "Class", "Teacher", "Worksheet", "Use Date", "Section", "Substituted Teacher"}}
	for _, d := range details {
		rows = append(rows, []string{
			strconv.FormatInt(d.RecordID, 10), d.Class, d.Teacher,
			d.Worksheet, d.UseDate, d.Section, d.SubTeacher,
		})
	}
	if err := writeCSV(file, rows); err != nil {
		return "", err
	}
	return file, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("console: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("console: write %s: %w", path, err)
	}
	return nil
}
