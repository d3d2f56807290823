package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/record"
	"github.com/forensics-go/sqlforensic/internal/sqlite/sqliteerr"
)

// MasterRow is one entry of the sqlite_master table, classified into one
// of the five closed variants below, per spec.md §3's "Master-schema
// row" data model, mirroring sqlite_dissect's OrdinaryTableRow /
// VirtualTableRow / IndexRow / ViewRow / TriggerRow split.
type MasterRow interface {
	ObjectName() string
	TableName() string
	RootPage() uint32
	SQLText() string
}

type baseRow struct {
	name, tblName, sqlText string
	rootPage               uint32
}

func (b baseRow) ObjectName() string { return b.name }
func (b baseRow) TableName() string  { return b.tblName }
func (b baseRow) RootPage() uint32   { return b.rootPage }
func (b baseRow) SQLText() string    { return b.sqlText }

// OrdinaryTableRow is a `CREATE TABLE` master entry with parsed column
// definitions.
type OrdinaryTableRow struct {
	baseRow
	Table *Table
}

// VirtualTableRow is a `CREATE VIRTUAL TABLE` master entry; it carries no
// root page (virtual tables have none) and is excluded from carving and
// signature generation, per spec.md §4.7's Non-goals.
type VirtualTableRow struct {
	baseRow
	ModuleName string
	ModuleArgs []string
}

// IndexRow is a `CREATE INDEX` (or automatic) master entry.
type IndexRow struct{ baseRow }

// ViewRow is a `CREATE VIEW` master entry.
type ViewRow struct{ baseRow }

// TriggerRow is a `CREATE TRIGGER` master entry.
type TriggerRow struct{ baseRow }

// ParseMasterRows decodes every table-leaf cell of the sqlite_master
// b-tree into a classified MasterRow, per spec.md §4.4: "classifies by
// type and by name prefix sqlite_ ... and for ordinary tables parses the
// SQL to extract column definitions."
func ParseMasterRows(cells []*page.Cell, src page.Source, textEncoding uint32) ([]MasterRow, error) {
	rows := make([]MasterRow, 0, len(cells))
	for _, c := range cells {
		if c.PageType != page.TypeLeafTable {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrMasterSchemaRowParsing, "page_type", 0,
				fmt.Errorf("sqlite_master root must be a table b-tree"))
		}
		payload, err := c.ReadFullPayload(src)
		if err != nil {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrMasterSchemaRowParsing, "payload", 0, err)
		}
		values, err := record.Decode(payload, textEncoding)
		if err != nil {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrMasterSchemaRowParsing, "record", 0, err)
		}
		if len(values) < 5 {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrMasterSchemaRowParsing, "columns", 0,
				fmt.Errorf("expected 5 columns (type,name,tbl_name,rootpage,sql), got %d", len(values)))
		}

		typ := values[0].Text()
		base := baseRow{
			name:     values[1].Text(),
			tblName:  values[2].Text(),
			rootPage: uint32(values[3].Int()),
			sqlText:  values[4].Text(),
		}

		row, err := classifyRow(typ, base)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func classifyRow(typ string, base baseRow) (MasterRow, error) {
	switch strings.ToLower(typ) {
	case "table":
		if isVirtualTableSQL(base.sqlText) {
			name, args := parseVirtualTableSQL(base.sqlText)
			return &VirtualTableRow{baseRow: base, ModuleName: name, ModuleArgs: args}, nil
		}
		if base.sqlText == "" {
			return &OrdinaryTableRow{baseRow: base, Table: &Table{Name: base.name, RootPage: base.rootPage}}, nil
		}
		table, err := ParseCreateTable(base.sqlText, base.rootPage)
		if err != nil {
			return nil, sqliteerr.NewParsingError(sqliteerr.ErrMasterSchemaRowParsing, "sql", 0, err)
		}
		return &OrdinaryTableRow{baseRow: base, Table: table}, nil
	case "index":
		return &IndexRow{baseRow: base}, nil
	case "view":
		return &ViewRow{baseRow: base}, nil
	case "trigger":
		return &TriggerRow{baseRow: base}, nil
	default:
		// Unknown type: preserve the row as an index-shaped entry rather
		// than silently drop it, since schema evolution can introduce
		// object kinds this repository has not seen.
		return &IndexRow{baseRow: base}, nil
	}
}

var virtualTableRe = regexp.MustCompile(`(?is)^\s*CREATE\s+VIRTUAL\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\S+)\s+USING\s+(\S+)\s*(?:\((.*)\))?\s*$`)

func isVirtualTableSQL(sql string) bool {
	return virtualTableRe.MatchString(stripComments(sql))
}

func parseVirtualTableSQL(sql string) (moduleName string, args []string) {
	m := virtualTableRe.FindStringSubmatch(stripComments(sql))
	if m == nil {
		return "", nil
	}
	moduleName = m[2]
	if m[3] == "" {
		return moduleName, nil
	}
	for _, seg := range splitTopLevel(m[3]) {
		if a := strings.TrimSpace(seg); a != "" {
			args = append(args, a)
		}
	}
	return moduleName, args
}

// IsInternal reports whether name is one of SQLite's own internal schema
// objects (the sqlite_ prefix reserved namespace), per spec.md §4.4.
func IsInternal(name string) bool { return strings.HasPrefix(name, "sqlite_") }

// IsAutoIndex reports whether name is an automatically-created index
// backing a UNIQUE or PRIMARY KEY constraint.
func IsAutoIndex(name string) bool { return strings.HasPrefix(name, "sqlite_autoindex_") }
