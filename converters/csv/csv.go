package csv

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/darianmavgo/mkolist/converters"
	"github.com/darianmavgo/mkolist/converters/common"
)

func init() {
	converters.Register("csv", &csvDriver{})
}

type csvDriver struct{}

func (d *csvDriver) Open(source io.Reader, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewCSVConverterWithConfig(source, config)
}

// CSVConverter reads delimited text with a header row.
type CSVConverter struct {
	headers   []string
	csvReader *csv.Reader
	Config    common.ConversionConfig
}

// Ensure CSVConverter implements RowProvider
var _ common.RowProvider = (*CSVConverter)(nil)

// NewCSVConverter creates a new CSVConverter from an io.Reader using default options.
// Rows can only be scanned once.
func NewCSVConverter(r io.Reader) (*CSVConverter, error) {
	return NewCSVConverterWithConfig(r, nil)
}

// NewCSVConverterWithConfig creates a new CSVConverter from an io.Reader with optional config.
// The header row is read immediately; the data rows are read by ScanRows.
func NewCSVConverterWithConfig(r io.Reader, config *common.ConversionConfig) (*CSVConverter, error) {
	var cfg common.ConversionConfig
	if config != nil {
		cfg = *config
	}

	decoded, err := common.NewDecodingReader(r, cfg.Encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(decoded, 65536)

	// Detect delimiter if not set
	if cfg.Delimiter == 0 {
		peekBytes, _ := br.Peek(2048)
		sample := string(peekBytes)
		if idx := strings.IndexAny(sample, "\r\n"); idx != -1 {
			sample = sample[:idx]
		}
		cfg.Delimiter = common.DetectDelimiter(sample)
	}

	reader := csv.NewReader(br)
	reader.Comma = cfg.Delimiter
	reader.FieldsPerRecord = -1 // width is checked against the header by the caller
	// A bare quote inside an unquoted field is kept as a literal character.
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, converters.ErrEmptySource
		}
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	return &CSVConverter{
		headers:   headers,
		csvReader: reader,
		Config:    cfg,
	}, nil
}

// GetHeaders implements RowProvider
func (c *CSVConverter) GetHeaders() []string {
	return c.headers
}

// ScanRows implements RowProvider. Blank lines are skipped.
func (c *CSVConverter) ScanRows(ctx context.Context, yield func([]string) error) error {
	if c.csvReader == nil {
		return fmt.Errorf("CSV reader is not initialized")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := c.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read CSV row: %w", err)
		}
		if err := yield(row); err != nil {
			return err
		}
	}
}
