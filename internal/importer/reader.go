// Package importer turns uploaded CSV or XLSX metric sheets into custom
// catalogs with their framework mappings.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format is an upload file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat infers the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("importer: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}

// ReadFile reads the header and data rows of an upload. Blank rows are dropped.
func ReadFile(ctx context.Context, path string) ([]string, [][]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(path, "")
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close()
		rows, err = collectCSV(ctx, f)
	}
	if err != nil {
		return nil, nil, err
	}

	rows = dropBlank(rows)
	if len(rows) == 0 {
		return nil, nil, eris.New("importer: file has no header row")
	}
	return rows[0], rows[1:], nil
}

// streamCSV sends trimmed CSV records on a channel. Both channels are
// closed when the reader is exhausted, fails, or ctx is done.
func streamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.Comment = '#'

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "importer: csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "importer: csv: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func collectCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	rowCh, errCh := streamCSV(ctx, r)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// readXLSX reads every row of the named sheet, or the first sheet when
// sheetName is empty.
func readXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: xlsx: open file")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		if sheet, ok = f.Sheet[sheetName]; !ok {
			return nil, eris.Errorf("importer: xlsx: sheet %q not found", sheetName)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("importer: xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if cell != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
