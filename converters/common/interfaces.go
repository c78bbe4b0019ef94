package common

import (
	"context"
	"io"
)

// RowProvider exposes the raw cells of one tabular source.
type RowProvider interface {
	// GetHeaders returns the header row exactly as found in the source.
	GetHeaders() []string
	// ScanRows iterates over the data rows in source order.
	// It calls the yield function for each row; yield may keep the slice.
	// If yield returns an error, iteration stops and that error is returned.
	ScanRows(ctx context.Context, yield func([]string) error) error
}

// Driver defines the interface that must be implemented by a source format package.
type Driver interface {
	// Open returns a new RowProvider for the given input.
	Open(source io.Reader, config *ConversionConfig) (RowProvider, error)
}
