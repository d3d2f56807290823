package export

import (
	"fmt"
	"io"
)

// WriteText renders reports as a human-readable summary, one section
// per table and one line per row, grounded on
// CommitConsoleExporter.write_commit's header-then-cells structure in
// text_export.py.
func WriteText(w io.Writer, reports []*TableReport) error {
	for _, r := range reports {
		if _, err := fmt.Fprintf(w, "\nTable: %s (%d rows reported)\n", r.TableName, len(r.Rows)); err != nil {
			return err
		}
		for _, row := range r.Rows {
			if err := writeTextRow(w, r.Columns, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeTextRow(w io.Writer, columns []string, row RowReport) error {
	rowidField := "rowid=?"
	if row.RowIDKnown {
		rowidField = fmt.Sprintf("rowid=%d", row.RowID)
	}
	truncated := ""
	if row.Truncated {
		truncated = " (truncated)"
	}
	if _, err := fmt.Fprintf(w, "  [v%d %s] %s%s:", row.VersionNumber, row.Status, rowidField, truncated); err != nil {
		return err
	}
	for i, v := range row.Values {
		name := fmt.Sprintf("col%d", i)
		if i < len(columns) {
			name = columns[i]
		}
		if _, err := fmt.Fprintf(w, " %s=%v", name, valueToAny(v)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
