package converters

import (
	"context"
	"errors"
	"fmt"

	"github.com/darianmavgo/mkolist/converters/common"
)

// ErrEmptySource is returned when a source has no header row to take column names from.
var ErrEmptySource = errors.New("no columns to parse from source")

// ReadDataset drains provider into memory, infers a type for every column and
// converts each cell to that type.
func ReadDataset(ctx context.Context, provider common.RowProvider) (*common.Dataset, error) {
	headers := provider.GetHeaders()
	if len(headers) == 0 {
		return nil, ErrEmptySource
	}
	names := common.GenColumnNames(headers)

	var raw [][]string
	err := provider.ScanRows(ctx, func(row []string) error {
		if len(row) > len(names) {
			return fmt.Errorf("expected %d fields in row %d, saw %d", len(names), len(raw)+1, len(row))
		}
		raw = append(raw, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	columns := common.InferColumns(names, raw)
	rows := make([][]any, len(raw))
	for r, cells := range raw {
		row := make([]any, len(columns))
		for c := range columns {
			if c >= len(cells) {
				continue // short rows are padded with NULL
			}
			v, err := columns[c].Convert(cells[c])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r+1, err)
			}
			row[c] = v
		}
		rows[r] = row
	}

	return &common.Dataset{Columns: columns, Rows: rows}, nil
}
