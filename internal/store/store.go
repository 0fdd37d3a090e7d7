// Package store persists worksheets and their usage records in SQLite.
//
// The handle is opened and closed per logical operation rather than held
// across requests: session goroutines never share a connection, and
// concurrent writers are serialized by SQLite's own transaction
// semantics.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

// DateLayout is the timestamp format used across tables and the wire.
const DateLayout = "2006-01-02 15:04:05"

// Store locates the database file. All methods are safe for concurrent
// use from independent sessions.
type Store struct {
	path string
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	return &Store{path: path}, nil
}

func (s *Store) open() (*sql.DB, error) {
	dsn := s.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", s.path, err)
	}
	return db, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worksheets (
			sheet_id INTEGER PRIMARY KEY,
			name TEXT,
			description TEXT,
			upload_date TEXT,
			last_update TEXT,
			subject TEXT,
			form TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			record_id INTEGER PRIMARY KEY,
			sheet_id INTEGER,
			use_date TEXT,
			class TEXT,
			teacher TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS worksheet_paths (
			path_id INTEGER PRIMARY KEY,
			sheet_id INTEGER,
			file_path TEXT,
			FOREIGN KEY (sheet_id) REFERENCES worksheets(sheet_id)
		)`,
		`CREATE TABLE IF NOT EXISTS class_records (
			class_record_id INTEGER PRIMARY KEY,
			record_id INTEGER,
			section TEXT,
			sub_teacher TEXT,
			FOREIGN KEY (record_id) REFERENCES records(record_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// Worksheet is one row of the worksheets table.
type Worksheet struct {
	SheetID     int64  `json:"sheetId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UploadDate  string `json:"uploadDate"`
	LastUpdate  string `json:"lastUpdate"`
	Subject     string `json:"subject"`
	Form        string `json:"form"`
}

// UsageRecord is one row of the records table.
type UsageRecord struct {
	RecordID int64  `json:"recordId"`
	SheetID  int64  `json:"sheetId"`
	UseDate  string `json:"useDate"`
	Class    string `json:"class"`
	Teacher  string `json:"teacher"`
}

// WorksheetPath maps a worksheet to its file on disk.
type WorksheetPath struct {
	PathID   int64  `json:"pathId"`
	SheetID  int64  `json:"sheetId"`
	FilePath string `json:"filePath"`
}

// ClassRecord is the per-section supplement to a usage record.
type ClassRecord struct {
	ClassRecordID int64  `json:"classRecordId"`
	RecordID      int64  `json:"recordId"`
	Section       string `json:"section"`
	SubTeacher    string `json:"subTeacher"`
}

// FormOfClass derives the form label from a class name, "1A" -> "Form 1".
func FormOfClass(class string) string {
	if class == "" {
		return ""
	}
	return "Form " + class[:1]
}

// StageOfClass derives the stage label from a class name: forms 1-3 are
// Junior, the rest Senior.
func StageOfClass(class string) string {
	switch {
	case class == "":
		return ""
	case class[0] == '1' || class[0] == '2' || class[0] == '3':
		return "Junior"
	default:
		return "Senior"
	}
}

// InsertWorksheetAndPath inserts the worksheet row and its path row in
// one transaction and returns the new sheet id.
func (s *Store) InsertWorksheetAndPath(ctx context.Context, w Worksheet, filePath string) (int64, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	lastUpdate := w.LastUpdate
	if lastUpdate == "" {
		lastUpdate = time.Now().Format(DateLayout)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO worksheets (name, description, upload_date, last_update, subject, form)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.Name, w.Description, w.UploadDate, lastUpdate, w.Subject, w.Form)
	if err != nil {
		return 0, fmt.Errorf("store: insert worksheet: %w", err)
	}
	sheetID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO worksheet_paths (sheet_id, file_path) VALUES (?, ?)`,
		sheetID, filePath); err != nil {
		return 0, fmt.Errorf("store: insert worksheet path: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return sheetID, nil
}

// WorksheetID looks up a worksheet by name.
func (s *Store) WorksheetID(ctx context.Context, name string) (int64, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var id int64
	err = db.QueryRowContext(ctx,
		`SELECT sheet_id FROM worksheets WHERE name=?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: worksheet %q", ErrNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// WorksheetFilePath returns the stored file path for a sheet id.
func (s *Store) WorksheetFilePath(ctx context.Context, sheetID int64) (string, error) {
	db, err := s.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	var path string
	err = db.QueryRowContext(ctx,
		`SELECT file_path FROM worksheet_paths WHERE sheet_id=?`, sheetID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: path for sheet %d", ErrNotFound, sheetID)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// UnusedWorksheet is the projection sent back for unusedWorksheets.
type UnusedWorksheet struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Form        string `json:"form"`
}

// UnusedWorksheetsForClass lists worksheets the class has not used yet,
// restricted to the class's own form, its stage, or the "All" form.
func (s *Store) UnusedWorksheetsForClass(ctx context.Context, class string) ([]UnusedWorksheet, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name, description, subject, form FROM worksheets
		 WHERE sheet_id NOT IN (SELECT sheet_id FROM records WHERE class=?)
		 INTERSECT
		 SELECT name, description, subject, form FROM worksheets
		 WHERE form = ? OR form = ? OR form = 'All'`,
		class, FormOfClass(class), StageOfClass(class))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]UnusedWorksheet, 0)
	for rows.Next() {
		var w UnusedWorksheet
		if err := rows.Scan(&w.Name, &w.Description, &w.Subject, &w.Form); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RegisterUse appends a usage record and returns its id.
func (s *Store) RegisterUse(ctx context.Context, sheetID int64, class, teacher string) (int64, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx,
		`INSERT INTO records (sheet_id, use_date, class, teacher) VALUES (?, ?, ?, ?)`,
		sheetID, time.Now().Format(DateLayout), class, teacher)
	if err != nil {
		return 0, fmt.Errorf("store: register use: %w", err)
	}
	return res.LastInsertId()
}

// RegisterClassRecord appends the section/substitute supplement for a
// usage record.
func (s *Store) RegisterClassRecord(ctx context.Context, recordID int64, section, subTeacher string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`INSERT INTO class_records (record_id, section, sub_teacher) VALUES (?, ?, ?)`,
		recordID, section, subTeacher)
	if err != nil {
		return fmt.Errorf("store: register class record: %w", err)
	}
	return nil
}

// RecentUsage is the projection sent back for recentUsage.
type RecentUsage struct {
	Teacher   string `json:"teacher"`
	Class     string `json:"class"`
	Worksheet string `json:"worksheet"`
	UseDate   string `json:"useDate"`
}

// LatestRecords returns the most recent usage records, newest first.
func (s *Store) LatestRecords(ctx context.Context, limit int) ([]RecentUsage, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT r.teacher, r.class, w.name, r.use_date
		 FROM records r INNER JOIN worksheets w ON r.sheet_id = w.sheet_id
		 ORDER BY r.use_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RecentUsage, 0, limit)
	for rows.Next() {
		var r RecentUsage
		if err := rows.Scan(&r.Teacher, &r.Class, &r.Worksheet, &r.UseDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentUpload is the projection sent back for recentUploaded.
type RecentUpload struct {
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Form       string `json:"form"`
	LastUpdate string `json:"lastUpdate"`
}

// LatestUploads returns the most recently updated worksheets.
func (s *Store) LatestUploads(ctx context.Context, limit int) ([]RecentUpload, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name, subject, form, last_update FROM worksheets
		 ORDER BY last_update DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RecentUpload, 0, limit)
	for rows.Next() {
		var u RecentUpload
		if err := rows.Scan(&u.Name, &u.Subject, &u.Form, &u.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the number of stored worksheets.
func (s *Store) Count(ctx context.Context) (int64, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM worksheets`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
