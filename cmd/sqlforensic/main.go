// Command sqlforensic is the CLI driver for the analyzer: it parses
// flags/config, runs the core decoder over a database (and its WAL, if
// present), and writes the requested export formats. Grounded on the
// teacher's cmd/capsule/main.go: a top-level kong.Parse over a nested
// command struct, each subcommand a Run() method.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/forensics-go/sqlforensic/internal/analyzer"
	"github.com/forensics-go/sqlforensic/internal/config"
	"github.com/forensics-go/sqlforensic/internal/export"
	"github.com/forensics-go/sqlforensic/internal/logging"
)

const version = "0.1.0"

// CLI is the top-level command tree.
var CLI struct {
	Analyze    AnalyzeCmd    `cmd:"" help:"Decode a database, carve if requested, and write the configured export formats"`
	Carve      CarveCmd      `cmd:"" help:"Carve deleted records and print only the recovered cells"`
	Schema     SchemaCmd     `cmd:"" help:"Print the parsed master schema"`
	Signatures SignaturesCmd `cmd:"" help:"Generate and print per-table signatures"`
	Version    VersionCmd    `cmd:"" help:"Print version information"`
}

// AnalyzeCmd runs the full pipeline: config.Config embedded directly so
// every spec.md §6 option is a top-level flag on this subcommand.
type AnalyzeCmd struct {
	config.Config
}

func (c *AnalyzeCmd) Run() error {
	cfg := &c.Config
	if err := cfg.MergeFile(); err != nil {
		return err
	}

	logDest, err := logging.OpenDestination(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log destination: %w", err)
	}
	if logDest != os.Stderr {
		defer logDest.Close()
	}
	logger := logging.New(logDest, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	res, err := analyzer.Run(cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	return writeExports(cfg, res)
}

func writeExports(cfg *config.Config, res *analyzer.Result) error {
	var siblings []string

	if cfg.IsExportRequested(config.ExportText) {
		if err := export.WriteText(os.Stdout, res.Tables); err != nil {
			return fmt.Errorf("write text export: %w", err)
		}
	}
	if cfg.IsExportRequested(config.ExportCSV) {
		paths, err := export.WriteCSV(cfg.OutputDirectory, cfg.FilePrefix, res.Tables)
		if err != nil {
			return fmt.Errorf("write csv export: %w", err)
		}
		siblings = append(siblings, paths...)
	}
	if cfg.IsExportRequested(config.ExportSQLite) {
		path := filepath.Join(cfg.OutputDirectory, cfg.FilePrefix+"export.sqlite")
		if err := export.WriteSQLite(path, res.Tables); err != nil {
			return fmt.Errorf("write sqlite export: %w", err)
		}
		siblings = append(siblings, path)
	}
	if cfg.IsExportRequested(config.ExportCase) {
		path, err := export.WriteCase(cfg.OutputDirectory, cfg.FilePrefix, res.Meta, res.Tables, cfg.Compress, siblings)
		if err != nil {
			return fmt.Errorf("write case export: %w", err)
		}
		fmt.Printf("Wrote case export: %s\n", path)
	}

	fmt.Printf("Analyzed %s (%s, run %s, content hash %s)\n",
		res.Meta.DatabasePath, humanize.Bytes(uint64(res.FileSize)), res.Meta.RunID, res.Meta.ContentHash)
	for _, t := range res.Tables {
		fmt.Printf("  %s: %d rows reported\n", t.TableName, len(t.Rows))
	}
	return nil
}

// SchemaCmd prints the parsed master schema and exits, per spec.md
// §6's schema diagnostic emitter.
type SchemaCmd struct {
	config.Config
}

func (c *SchemaCmd) Run() error {
	cfg := &c.Config
	cfg.Schema = true
	if err := cfg.MergeFile(); err != nil {
		return err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	res, err := analyzer.Run(cfg, logger)
	if err != nil {
		return err
	}
	for _, row := range res.MasterRows {
		fmt.Printf("%s (table=%s, root_page=%d): %s\n", row.ObjectName(), row.TableName(), row.RootPage(), row.SQLText())
	}
	return nil
}

// CarveCmd runs the full pipeline with carving forced on and prints only
// the carved cells, per spec.md §6's carve-only diagnostic use case.
type CarveCmd struct {
	config.Config
}

func (c *CarveCmd) Run() error {
	cfg := &c.Config
	cfg.Carve = true
	if err := cfg.MergeFile(); err != nil {
		return err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	res, err := analyzer.Run(cfg, logger)
	if err != nil {
		return err
	}

	carvedOnly := make([]*export.TableReport, 0, len(res.Tables))
	for _, t := range res.Tables {
		var rows []export.RowReport
		for _, row := range t.Rows {
			if row.Status == export.RowCarved {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			carvedOnly = append(carvedOnly, &export.TableReport{TableName: t.TableName, Columns: t.Columns, Rows: rows})
		}
	}
	return export.WriteText(os.Stdout, carvedOnly)
}

// SignaturesCmd generates and prints every table's signature statistics
// without writing any export, per spec.md §6's signatures diagnostic.
type SignaturesCmd struct {
	config.Config
}

func (c *SignaturesCmd) Run() error {
	cfg := &c.Config
	cfg.Signatures = true
	if err := cfg.MergeFile(); err != nil {
		return err
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	res, err := analyzer.Run(cfg, logger)
	if err != nil {
		return err
	}
	for name, ts := range res.Signatures {
		fmt.Printf("Table: %s (%d rows observed)\n", name, ts.RowCount)
		for _, col := range ts.Columns {
			fmt.Printf("  %s: present=%d simplified=%v focused=%v\n",
				col.Name, col.PresentRows(), col.SimplifiedSignature(), col.FocusedSignature())
		}
	}
	return nil
}

// VersionCmd prints this build's version and exits.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sqlforensic version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlforensic"),
		kong.Description("Read-only SQLite/WAL forensic analyzer and record carver"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
