package converters

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/darianmavgo/mkolist/converters/common"
)

// ErrUnsupportedFormat is returned when no driver handles a source file's extension.
var ErrUnsupportedFormat = errors.New("unsupported source format")

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]common.Driver)
)

var extensions = map[string]string{
	".csv":  "csv",
	".tsv":  "csv",
	".txt":  "csv",
	".xlsx": "excel",
	".xlsm": "excel",
	".html": "html",
	".htm":  "html",
}

// Register makes a source driver available by the provided name.
// If Register is called twice with the same name or if driver is nil, it panics.
func Register(name string, driver common.Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("converters: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("converters: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open opens a source by driver name and reader.
func Open(driverName string, source io.Reader, config *common.ConversionConfig) (common.RowProvider, error) {
	driversMu.RLock()
	driver, ok := drivers[driverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("converters: unknown driver %q (forgotten import?)", driverName)
	}
	return driver.Open(source, config)
}

// Drivers returns a sorted list of the names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// DriverForPath picks the driver name for a source file from its extension.
func DriverForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if name, ok := extensions[ext]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// DefaultDelimiter returns the delimiter implied by a source file's extension:
// comma for .csv, tab for .tsv. It returns 0 for other extensions, leaving the
// driver to detect the delimiter from the header line.
func DefaultDelimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ','
	case ".tsv":
		return '\t'
	}
	return 0
}
