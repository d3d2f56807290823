package export

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/forensics-go/sqlforensic/internal/sqlite/schema"
)

// WriteSQLite re-materializes reports into a fresh SQLite database at
// path, via a modernc.org/sqlite connection, grounded on
// sqlite_export.py's CREATE TABLE + INSERT per master-schema-entry
// loop. Applies spec.md §6's column/table rename rules: a table whose
// name collides with SQLite's reserved sqlite_ namespace is renamed
// with prefix "iso_"; a column literally named "row_id" is renamed
// with prefix "sd_" since it would otherwise collide with the
// connection's implicit ROWID alias.
func WriteSQLite(path string, reports []*TableReport) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("export: open %s: %w", path, err)
	}
	defer db.Close()

	for _, r := range reports {
		if err := writeSQLiteTable(db, r); err != nil {
			return fmt.Errorf("export: table %s: %w", r.TableName, err)
		}
	}
	return nil
}

func sqliteTableName(name string) string {
	if schema.IsInternal(name) {
		return "iso_" + name
	}
	return name
}

func sqliteColumnName(name string) string {
	if name == "row_id" {
		return "sd_" + name
	}
	return name
}

func writeSQLiteTable(db *sql.DB, r *TableReport) error {
	tableName := sqliteTableName(r.TableName)
	columns := append([]string{"version", "status", "rowid_value", "truncated"}, renameColumns(r.Columns)...)
	if err := createSQLiteTable(db, tableName, columns); err != nil {
		return err
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(tableName), quoteIdentList(columns), placeholders)
	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range r.Rows {
		args := make([]any, 0, len(columns))
		args = append(args, row.VersionNumber, string(row.Status), rowidOrNil(row), row.Truncated)
		for i := range r.Columns {
			if i < len(row.Values) {
				args = append(args, valueToAny(row.Values[i]))
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return nil
}

func rowidOrNil(row RowReport) any {
	if !row.RowIDKnown {
		return nil
	}
	return row.RowID
}

func renameColumns(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqliteColumnName(c)
	}
	return out
}

func createSQLiteTable(db *sql.DB, tableName string, columns []string) error {
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(tableName), quoteIdentList(columns))
	_, err := db.Exec(createSQL)
	return err
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
