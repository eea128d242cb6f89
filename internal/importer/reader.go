package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadTable parses raw file bytes into a Table. CSV and XLSX are detected
// by filename extension, falling back to content sniffing for extensionless
// uploads.
func ReadTable(filename string, data []byte) (Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return readCSV(filename, bytes.NewReader(data))
	case ".xlsx", ".xlsm":
		return readXLSX(filename, bytes.NewReader(data))
	}
	if bytes.HasPrefix(data, []byte("PK")) {
		return readXLSX(filename, bytes.NewReader(data))
	}
	return readCSV(filename, bytes.NewReader(data))
}

func readCSV(filename string, r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	// Tabular exports are frequently ragged; keep every row and let header
	// detection sort it out.
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("readCSV: reading %s: %w", filename, err)
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("readCSV: %s is empty", filename)
	}
	return Table{Filename: filename, Rows: rows}, nil
}

func readXLSX(filename string, r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("readXLSX: opening %s: %w", filename, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("readXLSX: %s has no sheets", filename)
	}

	// First sheet only; multi-sheet workbooks are imported one sheet at a time.
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("readXLSX: reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("readXLSX: sheet %q is empty", sheets[0])
	}
	return Table{Filename: filename, Rows: rows}, nil
}
