package excel

import (
	"context"
	"fmt"
	"io"

	"github.com/darianmavgo/mkolist/converters"
	"github.com/darianmavgo/mkolist/converters/common"

	"github.com/xuri/excelize/v2"
)

func init() {
	converters.Register("excel", &excelDriver{})
}

type excelDriver struct{}

func (d *excelDriver) Open(source io.Reader, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewExcelConverterWithConfig(source, config)
}

// ExcelConverter reads one worksheet of a workbook. The first row of the
// sheet is the header.
type ExcelConverter struct {
	headers []string
	sheet   string
	file    *excelize.File
}

// Ensure ExcelConverter implements RowProvider
var _ common.RowProvider = (*ExcelConverter)(nil)

// Ensure ExcelConverter implements io.Closer
var _ io.Closer = (*ExcelConverter)(nil)

// NewExcelConverter creates a new ExcelConverter for the first sheet of the workbook.
func NewExcelConverter(r io.Reader) (*ExcelConverter, error) {
	return NewExcelConverterWithConfig(r, nil)
}

// NewExcelConverterWithConfig creates a new ExcelConverter from an io.Reader.
// config.Sheet selects the worksheet; empty means the first one.
func NewExcelConverterWithConfig(r io.Reader, config *common.ConversionConfig) (*ExcelConverter, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel stream: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheet := sheets[0]
	if config != nil && config.Sheet != "" {
		idx, err := f.GetSheetIndex(config.Sheet)
		if err != nil || idx < 0 {
			f.Close()
			return nil, fmt.Errorf("sheet %q not found in Excel file", config.Sheet)
		}
		sheet = config.Sheet
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to get rows iterator for sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		f.Close()
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to read header for sheet %s: %w", sheet, err)
		}
		return nil, converters.ErrEmptySource
	}
	headers, err := rows.Columns()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read header for sheet %s: %w", sheet, err)
	}
	if len(headers) == 0 {
		f.Close()
		return nil, converters.ErrEmptySource
	}

	return &ExcelConverter{
		headers: headers,
		sheet:   sheet,
		file:    f,
	}, nil
}

// GetHeaders implements RowProvider
func (e *ExcelConverter) GetHeaders() []string {
	return e.headers
}

// Sheet returns the name of the worksheet being read.
func (e *ExcelConverter) Sheet() string {
	return e.sheet
}

// ScanRows implements RowProvider. Empty rows are skipped, matching the
// blank-line handling of delimited text.
func (e *ExcelConverter) ScanRows(ctx context.Context, yield func([]string) error) error {
	if e.file == nil {
		return fmt.Errorf("ExcelConverter not initialized")
	}

	rows, err := e.file.Rows(e.sheet)
	if err != nil {
		return fmt.Errorf("failed to get rows iterator for sheet %s: %w", e.sheet, err)
	}
	defer rows.Close()

	// Skip header
	if rows.Next() {
		if _, err := rows.Columns(); err != nil {
			return err
		}
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		if err := yield(row); err != nil {
			return err
		}
	}

	return rows.Error()
}

// Close closes the underlying Excel file
func (e *ExcelConverter) Close() error {
	if e.file != nil {
		return e.file.Close()
	}
	return nil
}
