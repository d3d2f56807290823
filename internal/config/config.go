// Package config assembles the analyzer's run configuration from CLI
// flags, an optional TOML file, and environment variables, per spec.md
// §6's configuration-option table. Grounded on the teacher's
// internal/api/config.go plain-struct style: config is a flat exported
// struct, not a builder or options-pattern type.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ExportFormat is one of the writer kinds a run can request, per
// spec.md §6's export_formats option.
type ExportFormat string

const (
	ExportText   ExportFormat = "text"
	ExportCSV    ExportFormat = "csv"
	ExportSQLite ExportFormat = "sqlite"
	ExportCase   ExportFormat = "case"
)

// Config is the frozen set of options the core and the writers run
// against for one invocation. Every field corresponds to one spec.md §6
// option.
type Config struct {
	DatabasePath string `arg:"" help:"Path to the .db/.sqlite file to analyze" type:"existingfile" toml:"database_path"`

	WALPath     string `help:"Override WAL file auto-detection" type:"path" toml:"wal_path"`
	JournalPath string `help:"Override rollback-journal file auto-detection" type:"path" toml:"journal_path"`
	NoJournal   bool   `help:"Disable WAL/rollback-journal auto-detection entirely" toml:"no_journal"`

	StrictFormatChecking bool `help:"Fail on format violations instead of degrading to warnings" default:"true" toml:"strict_format_checking"`

	ExportFormats   []string `help:"Writers to run: text,csv,sqlite,case" sep:"," toml:"export_formats"`
	OutputDirectory string   `help:"Directory writers place their output in" default:"." type:"path" toml:"output_directory"`
	FilePrefix      string   `help:"Filename prefix applied by every writer" toml:"file_prefix"`
	Compress        bool     `help:"Bundle the case export and its siblings into a .tar.xz" toml:"compress"`

	Carve          bool `help:"Carve deleted records from freeblocks and unallocated space" toml:"carve"`
	CarveFreelists bool `help:"Additionally carve freelist trunk/leaf pages as unallocated regions" toml:"carve_freelists"`

	Tables         []string `help:"Restrict history/carving to these tables" sep:"," toml:"tables"`
	ExemptedTables []string `help:"Exclude these tables from history/carving" sep:"," toml:"exempted_tables"`

	Schema        bool `help:"Emit the parsed master-schema diagnostic" toml:"schema"`
	SchemaHistory bool `help:"Emit per-version master-schema diffs" toml:"schema_history"`
	Signatures    bool `help:"Emit generated table signatures" toml:"signatures"`

	LogLevel  string `help:"debug, info, warn, or error" default:"info" env:"SQLFORENSIC_LOG_LEVEL" toml:"log_level"`
	LogFormat string `help:"text or json; defaults to auto-detecting the log output" env:"SQLFORENSIC_LOG_FORMAT" toml:"log_format"`
	LogFile   string `help:"Write logs here instead of stderr" type:"path" env:"SQLFORENSIC_LOG_FILE" toml:"log_file"`
	Warnings  bool   `help:"Print non-strict-mode warnings to the log" toml:"warnings"`

	ConfigFile string `help:"Optional TOML config file; flags override its values" type:"path" toml:"-"`
}

// IsExportRequested reports whether format appears in ExportFormats.
func (c *Config) IsExportRequested(format ExportFormat) bool {
	for _, f := range c.ExportFormats {
		if ExportFormat(strings.ToLower(strings.TrimSpace(f))) == format {
			return true
		}
	}
	return false
}

// TableIncluded reports whether table should be walked by the history
// iterator and carver, per spec.md §6's tables/exempted_tables filters.
// An empty Tables list means "every table not exempted."
func (c *Config) TableIncluded(table string) bool {
	for _, ex := range c.ExemptedTables {
		if ex == table {
			return false
		}
	}
	if len(c.Tables) == 0 {
		return true
	}
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// MergeFile loads c.ConfigFile, if set, and fills every field the file
// declares that flags left at its zero value. Flags always win over the
// file, matching spec.md §6's "CLI flags + optional TOML config file +
// environment" precedence order (kong has already applied flags and
// env vars by the time MergeFile runs). StrictFormatChecking is the one
// exception: its flag defaults to true, so a strict_format_checking value
// in the file always replaces it, including a false given by flag.
func (c *Config) MergeFile() error {
	if c.ConfigFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", c.ConfigFile, err)
	}
	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.ConfigFile, err)
	}
	file.applyTo(c)
	return nil
}

// fileConfig mirrors Config's toml tags with pointer fields, so
// applyTo can distinguish "absent from the file" from "present and
// zero."
type fileConfig struct {
	WALPath              *string  `toml:"wal_path"`
	JournalPath          *string  `toml:"journal_path"`
	NoJournal            *bool    `toml:"no_journal"`
	StrictFormatChecking *bool    `toml:"strict_format_checking"`
	ExportFormats        []string `toml:"export_formats"`
	OutputDirectory      *string  `toml:"output_directory"`
	FilePrefix           *string  `toml:"file_prefix"`
	Compress             *bool    `toml:"compress"`
	Carve                *bool    `toml:"carve"`
	CarveFreelists       *bool    `toml:"carve_freelists"`
	Tables               []string `toml:"tables"`
	ExemptedTables       []string `toml:"exempted_tables"`
	Schema               *bool    `toml:"schema"`
	SchemaHistory        *bool    `toml:"schema_history"`
	Signatures           *bool    `toml:"signatures"`
	LogLevel             *string  `toml:"log_level"`
	LogFormat            *string  `toml:"log_format"`
	LogFile              *string  `toml:"log_file"`
	Warnings             *bool    `toml:"warnings"`
}

func (f *fileConfig) applyTo(c *Config) {
	if f.WALPath != nil && c.WALPath == "" {
		c.WALPath = *f.WALPath
	}
	if f.JournalPath != nil && c.JournalPath == "" {
		c.JournalPath = *f.JournalPath
	}
	if f.NoJournal != nil && !c.NoJournal {
		c.NoJournal = *f.NoJournal
	}
	if f.StrictFormatChecking != nil {
		c.StrictFormatChecking = *f.StrictFormatChecking
	}
	if len(f.ExportFormats) > 0 && len(c.ExportFormats) == 0 {
		c.ExportFormats = f.ExportFormats
	}
	if f.OutputDirectory != nil && c.OutputDirectory == "" {
		c.OutputDirectory = *f.OutputDirectory
	}
	if f.FilePrefix != nil && c.FilePrefix == "" {
		c.FilePrefix = *f.FilePrefix
	}
	if f.Compress != nil && !c.Compress {
		c.Compress = *f.Compress
	}
	if f.Carve != nil && !c.Carve {
		c.Carve = *f.Carve
	}
	if f.CarveFreelists != nil && !c.CarveFreelists {
		c.CarveFreelists = *f.CarveFreelists
	}
	if len(f.Tables) > 0 && len(c.Tables) == 0 {
		c.Tables = f.Tables
	}
	if len(f.ExemptedTables) > 0 && len(c.ExemptedTables) == 0 {
		c.ExemptedTables = f.ExemptedTables
	}
	if f.Schema != nil && !c.Schema {
		c.Schema = *f.Schema
	}
	if f.SchemaHistory != nil && !c.SchemaHistory {
		c.SchemaHistory = *f.SchemaHistory
	}
	if f.Signatures != nil && !c.Signatures {
		c.Signatures = *f.Signatures
	}
	if f.LogLevel != nil && c.LogLevel == "" {
		c.LogLevel = *f.LogLevel
	}
	if f.LogFormat != nil && c.LogFormat == "" {
		c.LogFormat = *f.LogFormat
	}
	if f.LogFile != nil && c.LogFile == "" {
		c.LogFile = *f.LogFile
	}
	if f.Warnings != nil && !c.Warnings {
		c.Warnings = *f.Warnings
	}
}
