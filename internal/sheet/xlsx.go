// Package sheet writes export row sets as xlsx workbooks.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the name of the single worksheet in every workbook.
const DefaultSheet = "Sheet1"

// XLSXWriter writes one worksheet with a header row. Existing files are
// overwritten.
type XLSXWriter struct {
	Sheet string
}

// NewXLSXWriter returns a writer using DefaultSheet.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{Sheet: DefaultSheet}
}

// Write streams columns and rows into a workbook at path.
func (w *XLSXWriter) Write(path string, columns []string, rows [][]any) error {
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	return w.write(path, func(emit func([]any) error) error {
		if err := emit(header); err != nil {
			return err
		}
		for _, row := range rows {
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *XLSXWriter) write(path string, fill func(emit func([]any) error) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	name := w.Sheet
	if name == "" {
		name = DefaultSheet
	}
	if name != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, name); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	rowNum := 1
	emit := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		rowNum++
		return sw.SetRow(cell, values)
	}
	if err := fill(emit); err != nil {
		return fmt.Errorf("failed to write sheet: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return saveAtomic(f, path)
}

// saveAtomic writes the workbook next to path and renames it into place,
// so a failed save never leaves a truncated file at path.
func saveAtomic(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp workbook: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	return nil
}

// ConvertCSV converts a CSV report into a workbook at dst. Numeric cells
// are written as numbers, empty cells are left blank.
func (w *XLSXWriter) ConvertCSV(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header := true
	return w.write(dst, func(emit func([]any) error) error {
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read csv: %w", err)
			}
			values := make([]any, len(record))
			for i, field := range record {
				if header {
					values[i] = field
					continue
				}
				values[i] = csvCell(field)
			}
			header = false
			if err := emit(values); err != nil {
				return err
			}
		}
	})
}

func csvCell(field string) any {
	if field == "" {
		return nil
	}
	if i, err := strconv.ParseInt(field, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return field
}

// ReadRows returns every row of the first worksheet of a workbook. Cells
// are read as displayed text.
func ReadRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}
