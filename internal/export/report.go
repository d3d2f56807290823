// Package export turns the core's per-table Commit stream into the
// output formats spec.md §6 names: a text summary, per-table CSV
// files, a re-materialized SQLite database, and a JSON case bundle.
// Grounded on original_source/sqlite_dissect/export/{text,csv,sqlite,
// case}_export.py, each translated into one file in this package; the
// XLSX sibling (xlsx_export.py) is not supplemented (see DESIGN.md).
package export

import (
	"github.com/forensics-go/sqlforensic/internal/sqlite/history"
	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
)

// RowStatus classifies one reported row, per spec.md §4.6/§4.8's
// added/removed/updated/carved commit categories.
type RowStatus string

const (
	RowAdded   RowStatus = "added"
	RowRemoved RowStatus = "removed"
	RowUpdated RowStatus = "updated"
	RowCarved  RowStatus = "carved"
)

// RowReport is one decoded row surfaced by a writer, tagged with the
// version it was observed in and how it was recovered.
type RowReport struct {
	VersionNumber int
	RowID         int64
	RowIDKnown    bool
	Status        RowStatus
	Truncated     bool
	Values        []record.Value
}

// TableReport aggregates every RowReport for one master-schema table
// across a run, in the shape every writer in this package consumes.
type TableReport struct {
	TableName string
	Columns   []string
	Rows      []RowReport
}

// BuildTableReport decodes commits (one per version, in order) for
// table into a TableReport, resolving live cells' payload bytes into
// column values with encoding and leaving carved cells' already-decoded
// columns as-is.
func BuildTableReport(tableName string, columns []string, encoding uint32, commits []*history.Commit) (*TableReport, error) {
	report := &TableReport{TableName: tableName, Columns: columns}
	for _, c := range commits {
		if err := appendLiveRows(&report.Rows, c.VersionNumber, RowAdded, c.Added, encoding); err != nil {
			return nil, err
		}
		if err := appendLiveRows(&report.Rows, c.VersionNumber, RowRemoved, c.Removed, encoding); err != nil {
			return nil, err
		}
		if err := appendLiveRows(&report.Rows, c.VersionNumber, RowUpdated, c.Updated, encoding); err != nil {
			return nil, err
		}
		for _, cc := range c.CarvedCells {
			values := make([]record.Value, len(cc.Columns))
			for i, col := range cc.Columns {
				values[i] = col.Value
			}
			report.Rows = append(report.Rows, RowReport{
				VersionNumber: c.VersionNumber,
				RowID:         cc.RowID,
				RowIDKnown:    cc.RowIDKnown,
				Status:        RowCarved,
				Truncated:     cc.Truncated,
				Values:        values,
			})
		}
	}
	return report, nil
}

func appendLiveRows(rows *[]RowReport, versionNumber int, status RowStatus, cells []history.CellRecord, encoding uint32) error {
	for _, cell := range cells {
		values, err := record.Decode(cell.Payload, encoding)
		if err != nil {
			return err
		}
		*rows = append(*rows, RowReport{
			VersionNumber: versionNumber,
			RowID:         cell.RowID,
			RowIDKnown:    true,
			Status:        status,
			Values:        values,
		})
	}
	return nil
}
