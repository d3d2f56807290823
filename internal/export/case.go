package export

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/forensics-go/sqlforensic/internal/evidence"
)

// caseDocument is the JSON shape of a case export, grounded on
// case_export.py's run-metadata-plus-tables document.
type caseDocument struct {
	RunID        string      `json:"run_id"`
	DatabasePath string      `json:"database_path"`
	ContentHash  string      `json:"content_hash"`
	GeneratedAt  string      `json:"generated_at"`
	Tables       []caseTable `json:"tables"`
}

type caseTable struct {
	Name    string    `json:"name"`
	Columns []string  `json:"columns"`
	Rows    []caseRow `json:"rows"`
}

type caseRow struct {
	VersionNumber int    `json:"version"`
	Status        string `json:"status"`
	RowID         *int64 `json:"row_id,omitempty"`
	Truncated     bool   `json:"truncated"`
	Values        []any  `json:"values"`
}

// WriteCase marshals reports plus meta into "<prefix>case.json" under
// dir. When compress is true, the JSON file and every path in
// siblings are also bundled into "<prefix>case.tar.xz", and the bundle's
// path is returned in place of the JSON file's (which stays in dir), grounded on
// case_export.py's practice of packaging the case document alongside
// the run's other export files.
func WriteCase(dir, prefix string, meta evidence.CaseMetadata, reports []*TableReport, compress bool, siblings []string) (string, error) {
	doc := caseDocument{
		RunID:        meta.RunID,
		DatabasePath: meta.DatabasePath,
		ContentHash:  meta.ContentHash,
		GeneratedAt:  meta.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, r := range reports {
		doc.Tables = append(doc.Tables, toCaseTable(r))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal case: %w", err)
	}

	jsonPath := filepath.Join(dir, prefix+"case.json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", jsonPath, err)
	}
	if !compress {
		return jsonPath, nil
	}

	bundlePath := filepath.Join(dir, prefix+"case.tar.xz")
	if err := bundleXZ(bundlePath, append([]string{jsonPath}, siblings...)); err != nil {
		return "", err
	}
	return bundlePath, nil
}

func toCaseTable(r *TableReport) caseTable {
	ct := caseTable{Name: r.TableName, Columns: r.Columns}
	for _, row := range r.Rows {
		cr := caseRow{
			VersionNumber: row.VersionNumber,
			Status:        string(row.Status),
			Truncated:     row.Truncated,
		}
		if row.RowIDKnown {
			id := row.RowID
			cr.RowID = &id
		}
		for _, v := range row.Values {
			cr.Values = append(cr.Values, valueToAny(v))
		}
		ct.Rows = append(ct.Rows, cr)
	}
	return ct
}

// bundleXZ packs paths into an xz-compressed tar archive at dest, via
// ulikunitz/xz over archive/tar (stdlib), per
// original_source/sqlite_dissect/export/case_export.py's multi-file
// packaging and this repository's --compress option.
func bundleXZ(dest string, paths []string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", dest, err)
	}
	defer out.Close()

	xzWriter, err := xz.NewWriter(out)
	if err != nil {
		return fmt.Errorf("export: xz writer: %w", err)
	}
	defer xzWriter.Close()

	tw := tar.NewWriter(xzWriter)
	defer tw.Close()

	for _, p := range paths {
		if err := addFileToTar(tw, p); err != nil {
			return err
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
