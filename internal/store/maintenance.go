package store

import (
	"context"
	"fmt"
)

// Worksheets returns every worksheet row, for export and console tools.
func (s *Store) Worksheets(ctx context.Context) ([]Worksheet, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT sheet_id, name, description, upload_date, last_update, subject, form FROM worksheets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Worksheet, 0)
	for rows.Next() {
		var w Worksheet
		if err := rows.Scan(&w.SheetID, &w.Name, &w.Description, &w.UploadDate, &w.LastUpdate, &w.Subject, &w.Form); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Records returns every usage record row.
func (s *Store) Records(ctx context.Context) ([]UsageRecord, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT record_id, sheet_id, use_date, class, teacher FROM records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]UsageRecord, 0)
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.RecordID, &r.SheetID, &r.UseDate, &r.Class, &r.Teacher); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Paths returns every worksheet path row.
func (s *Store) Paths(ctx context.Context) ([]WorksheetPath, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT path_id, sheet_id, file_path FROM worksheet_paths`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]WorksheetPath, 0)
	for rows.Next() {
		var p WorksheetPath
		if err := rows.Scan(&p.PathID, &p.SheetID, &p.FilePath); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UsageDetail is the joined export view of one usage record with its
// worksheet and class supplement.
type UsageDetail struct {
	RecordID   int64
	Class      string
	Teacher    string
	Worksheet  string
	UseDate    string
	Section    string
	SubTeacher string
}

// UsageDetails joins records, worksheets and class_records for the
// master-data export.
func (s *Store) UsageDetails(ctx context.Context) ([]UsageDetail, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT r.record_id, r.class, r.teacher, w.name, r.use_date,
		        COALESCE(c.section, ''), COALESCE(c.sub_teacher, '')
		 FROM records r
		 INNER JOIN worksheets w ON r.sheet_id = w.sheet_id
		 LEFT JOIN class_records c ON c.record_id = r.record_id
		 ORDER BY r.record_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]UsageDetail, 0)
	for rows.Next() {
		var d UsageDetail
		if err := rows.Scan(&d.RecordID, &d.Class, &d.Teacher, &d.Worksheet, &d.UseDate, &d.Section, &d.SubTeacher); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResetRecords deletes every usage record and class supplement.
func (s *Store) ResetRecords(ctx context.Context) error {
	return s.reset(ctx, "class_records", "records")
}

// ResetAll empties every table.
func (s *Store) ResetAll(ctx context.Context) error {
	return s.reset(ctx, "class_records", "records", "worksheet_paths", "worksheets")
}

func (s *Store) reset(ctx context.Context, tables ...string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store: reset %s: %w", table, err)
		}
	}
	return nil
}
