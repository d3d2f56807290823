// Package analyzer wires the core decoder/version/signature/carver
// packages together behind the configuration record and logger handle
// spec.md §9's design notes describe: it takes an *config.Config and a
// *slog.Logger, walks the requested tables' version history, and
// returns the per-table reports the CLI hands to the export writers.
// This package is the only thing in the module that imports both
// internal/config and internal/sqlite/...; the core packages never
// import this one.
package analyzer

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/forensics-go/sqlforensic/internal/config"
	"github.com/forensics-go/sqlforensic/internal/evidence"
	"github.com/forensics-go/sqlforensic/internal/export"
	"github.com/forensics-go/sqlforensic/internal/logging"
	"github.com/forensics-go/sqlforensic/internal/sqlite/carve"
	"github.com/forensics-go/sqlforensic/internal/sqlite/fileformat"
	"github.com/forensics-go/sqlforensic/internal/sqlite/history"
	"github.com/forensics-go/sqlforensic/internal/sqlite/page"
	"github.com/forensics-go/sqlforensic/internal/sqlite/schema"
	"github.com/forensics-go/sqlforensic/internal/sqlite/signature"
	"github.com/forensics-go/sqlforensic/internal/sqlite/version"
)

// Result is everything one run produces: the writer-ready table
// reports plus the diagnostic emitters spec.md §6 names
// (schema/schema_history/signatures) and the evidentiary metadata A5
// attaches to every export.
type Result struct {
	Meta       evidence.CaseMetadata
	FileSize   int64
	Tables     []*export.TableReport
	MasterRows []schema.MasterRow
	Signatures map[string]*signature.TableSignature
	Warnings   []fileformat.Warning
}

// Run executes one analysis pass over cfg.DatabasePath, logging
// progress and non-strict-mode warnings to logger.
func Run(cfg *config.Config, logger *slog.Logger) (*Result, error) {
	dbFile, err := os.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("analyzer: open %s: %w", cfg.DatabasePath, err)
	}
	defer dbFile.Close()

	info, err := dbFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("analyzer: stat %s: %w", cfg.DatabasePath, err)
	}

	meta, err := evidence.NewCaseMetadata(cfg.DatabasePath, dbFile, time.Now())
	if err != nil {
		return nil, err
	}

	res := &Result{Meta: meta, FileSize: info.Size(), Signatures: map[string]*signature.TableSignature{}}

	db, warnings, err := version.OpenDatabase(dbFile, info.Size(), cfg.StrictFormatChecking)
	if err != nil {
		return nil, fmt.Errorf("analyzer: decode header: %w", err)
	}
	res.Warnings = append(res.Warnings, warnings...)
	logger.Info("opened database", "path", cfg.DatabasePath, "pages", db.PageCount())

	wal, walWarnings, walFile, err := openWal(cfg, logger)
	if err != nil {
		return nil, err
	}
	if walFile != nil {
		defer walFile.Close()
	}
	res.Warnings = append(res.Warnings, walWarnings...)

	if cfg.Warnings {
		for _, w := range res.Warnings {
			logging.ParsingWarning(logger, "header", w.Field, w.Offset, w.Err)
		}
	}

	chain := version.BuildChain(db, wal)
	logger.Info("built version chain", "versions", len(chain))

	encoding := db.Header().TextEncoding

	masterByVersion := make([]map[string]schema.MasterRow, len(chain))
	for i, v := range chain {
		rows, err := masterRowsForVersion(v, encoding)
		if err != nil {
			return nil, fmt.Errorf("analyzer: schema version %d: %w", i, err)
		}
		m := make(map[string]schema.MasterRow, len(rows))
		for _, r := range rows {
			m[r.ObjectName()] = r
		}
		masterByVersion[i] = m
	}
	res.MasterRows = masterRowsSlice(masterByVersion[len(masterByVersion)-1])

	for name, entry := range masterByVersion[len(masterByVersion)-1] {
		table, ok := entry.(*schema.OrdinaryTableRow)
		if !ok || table.Table.WithoutRowID || schema.IsInternal(name) {
			continue
		}
		if !cfg.TableIncluded(name) {
			continue
		}
		if err := analyzeTable(cfg, logger, chain, masterByVersion, table, encoding, res); err != nil {
			return nil, fmt.Errorf("analyzer: table %s: %w", name, err)
		}
	}

	return res, nil
}

func masterRowsForVersion(v *version.Version, encoding uint32) ([]schema.MasterRow, error) {
	pages, err := page.WalkBTree(1, v)
	if err != nil {
		return nil, err
	}
	return schema.ParseMasterRows(page.LeafCells(pages), v, encoding)
}

func masterRowsSlice(m map[string]schema.MasterRow) []schema.MasterRow {
	out := make([]schema.MasterRow, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

func openWal(cfg *config.Config, logger *slog.Logger) (*version.Wal, []fileformat.Warning, *os.File, error) {
	if cfg.NoJournal {
		return nil, nil, nil, nil
	}
	path := cfg.WALPath
	if path == "" {
		path = cfg.DatabasePath + "-wal"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil // no WAL present: not an error, per spec.md §6 auto-detection
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("analyzer: stat %s: %w", path, err)
	}
	wal, warnings, err := version.ReadWal(f, info.Size(), cfg.StrictFormatChecking)
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("analyzer: decode wal %s: %w", path, err)
	}
	logger.Info("opened wal", "path", path, "commits", len(wal.Commits), "trailing_frames", len(wal.TrailingFrames))
	return wal, warnings, f, nil
}

// resolveRootPages follows tableName's root page across chain, carrying
// the last known value forward across versions where the table's
// master-schema entry is momentarily absent (e.g. reparsing noise) so
// NewTableHistory always has a root page for every version it walks.
// start is the first version the table is observed in; the chain is
// walked through its last version regardless of whether the table is
// later dropped, matching this repository's read-only, whole-history
// reporting goal rather than modeling DROP TABLE as an end-of-life event.
func resolveRootPages(chain []*version.Version, masterByVersion []map[string]schema.MasterRow, tableName string) (rootPages map[int]uint32, start int, ok bool) {
	rootPages = map[int]uint32{}
	start = -1
	var last uint32
	for i := range chain {
		if entry, found := masterByVersion[i][tableName]; found {
			if table, isTable := entry.(*schema.OrdinaryTableRow); isTable && table.Table.RootPage != 0 {
				last = table.Table.RootPage
				if start == -1 {
					start = i
				}
			}
		}
		if last != 0 {
			rootPages[i] = last
		}
	}
	return rootPages, start, start != -1
}

func analyzeTable(cfg *config.Config, logger *slog.Logger, chain []*version.Version, masterByVersion []map[string]schema.MasterRow,
	table *schema.OrdinaryTableRow, encoding uint32, res *Result) error {

	rootPages, start, ok := resolveRootPages(chain, masterByVersion, table.TableName())
	if !ok {
		return nil
	}
	end := len(chain) - 1

	var carver history.Carver
	if cfg.Carve || cfg.Signatures {
		ts, err := signature.GenerateAcrossVersions(table, rootPages, chain, encoding)
		if err != nil {
			return err
		}
		res.Signatures[table.TableName()] = ts
		if cfg.Carve {
			carver = carve.New(ts, encoding)
		}
	}

	th := history.NewTableHistory(chain, rootPages, true, start, end, carver, cfg.Carve && cfg.CarveFreelists)
	var commits []*history.Commit
	for {
		c, more, err := th.Next()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		commits = append(commits, c)
	}
	logger.Debug("table history walked", "table", table.TableName(), "commits", len(commits))

	columns := make([]string, len(table.Table.Columns))
	for i, c := range table.Table.Columns {
		columns[i] = c.Name
	}
	report, err := export.BuildTableReport(table.TableName(), columns, encoding, commits)
	if err != nil {
		return err
	}
	res.Tables = append(res.Tables, report)
	return nil
}
