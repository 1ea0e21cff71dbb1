package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// DataReader reads back the tables that a DataRecorder wrote.
type DataReader interface {
	// ListTables returns the names of the tables in the database, sorted.
	ListTables(ctx context.Context) ([]string, error)

	// CountBy returns how many rows of a table hold each value of a column.
	CountBy(ctx context.Context, tableName, column string) (map[string]int, error)

	// Close closes the reader
	Close() error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type sqliteReader struct {
	*sql.DB
}

// NewReader opens a SQLite database file for reading.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	return &sqliteReader{DB: db}, nil
}

// NewReaderWithDB creates a new DataReader with a given database
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{DB: db}
}

func (r *sqliteReader) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (r *sqliteReader) CountBy(
	ctx context.Context,
	tableName, column string,
) (map[string]int, error) {
	if !identifierPattern.MatchString(tableName) ||
		!identifierPattern.MatchString(column) {
		return nil, fmt.Errorf("invalid table %q or column %q",
			tableName, column)
	}

	query := fmt.Sprintf(
		"SELECT CAST(%[1]s AS TEXT), COUNT(*) FROM %[2]s GROUP BY %[1]s",
		column, tableName)

	rows, err := r.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value sql.NullString
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}

		counts[value.String] = count
	}

	return counts, rows.Err()
}
