package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteCSV writes one CSV file per table into dir, named
// "<prefix><table>.csv", per csv_export.py's VersionCsvExporter's
// per-master-schema-entry file split. Stdlib encoding/csv is used
// deliberately: no third-party CSV library appears anywhere in the
// retrieved example pack (see DESIGN.md).
func WriteCSV(dir, prefix string, reports []*TableReport) ([]string, error) {
	var paths []string
	for _, r := range reports {
		path := filepath.Join(dir, fmt.Sprintf("%s%s.csv", prefix, sanitizeFileComponent(r.TableName)))
		if err := writeTableCSV(path, r); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTableCSV(path string, r *TableReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"version", "status", "rowid", "truncated"}, r.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := make([]string, 0, len(header))
		record = append(record,
			fmt.Sprintf("%d", row.VersionNumber),
			string(row.Status),
			rowidCSVField(row),
			fmt.Sprintf("%t", row.Truncated),
		)
		for i := range r.Columns {
			if i < len(row.Values) {
				record = append(record, valueToCSVString(row.Values[i]))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func rowidCSVField(row RowReport) string {
	if !row.RowIDKnown {
		return ""
	}
	return fmt.Sprintf("%d", row.RowID)
}

func sanitizeFileComponent(name string) string {
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}
