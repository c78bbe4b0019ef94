// Package importer loads the tables of an import specification into a fresh
// SQLite database, one table per source file.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/darianmavgo/mkolist/config"
	"github.com/darianmavgo/mkolist/converters"
	_ "github.com/darianmavgo/mkolist/converters/all"
	"github.com/darianmavgo/mkolist/converters/common"
	"github.com/darianmavgo/mkolist/converters/zip"
)

// ErrPrepareStore wraps any failure to remove, create or open the destination
// database. It is the only error that stops a run.
var ErrPrepareStore = errors.New("failed to prepare database")

// State is the lifecycle position of an Importer.
type State int

const (
	NotStarted State = iota
	StorePrepared
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case StorePrepared:
		return "STORE_PREPARED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome classifies the result of importing one table.
type Outcome int

const (
	Success Outcome = iota
	NotFound
	ParseError
	WriteError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case ParseError:
		return "parse_error"
	case WriteError:
		return "write_error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports what happened to one table.
type Result struct {
	Outcome Outcome
	Table   string
	Source  string // Resolved path of the source file
	Rows    int64
	Err     error
}

// Report collects one Result per table, in specification order.
type Report struct {
	Results []Result
}

// Failed returns the results that did not succeed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Outcome != Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// Importer runs one import. It is not safe for concurrent use.
type Importer struct {
	cfg   *config.Config
	out   io.Writer
	log   *slog.Logger
	db    *sql.DB
	state State

	archive *zip.Archive // set when DataDir is a .zip file
}

// New validates cfg and returns an Importer that prints lifecycle lines to out.
// A nil logger uses slog.Default().
func New(cfg *config.Config, out io.Writer, logger *slog.Logger) (*Importer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{cfg: cfg, out: out, log: logger}, nil
}

// State returns the current lifecycle state.
func (im *Importer) State() State {
	return im.state
}

// PrepareStore deletes any existing database and its journal files, then
// creates and opens an empty one.
func (im *Importer) PrepareStore(ctx context.Context) error {
	if im.state != NotStarted {
		return fmt.Errorf("%w: importer is %s", ErrPrepareStore, im.state)
	}
	path := im.cfg.Database

	removed, err := removeStore(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrepareStore, err)
	}
	if removed {
		fmt.Fprintf(im.out, "Removed old database '%s'.\n", path)
		im.log.Debug("removed old database", "database", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create output directory: %w", ErrPrepareStore, err)
		}
	}

	db, err := converters.OpenStore(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrepareStore, err)
	}
	im.db = db
	im.state = StorePrepared

	fmt.Fprintf(im.out, "Database '%s' created.\n", path)
	im.log.Info("database created", "database", path)
	return nil
}

// removeStore deletes the database file and any SQLite sidecar files next to it.
// It reports whether the database itself existed.
func removeStore(path string) (bool, error) {
	existed := false
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("database path %s is a directory", path)
		}
		existed = true
	}
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return existed, nil
}

// ImportEntry loads one source file into its table, replacing any table of the
// same name. Failures are reported in the Result and never stop the run.
func (im *Importer) ImportEntry(ctx context.Context, spec config.TableSpec) Result {
	path := filepath.Join(im.cfg.DataDir, spec.Source)
	res := Result{Table: spec.Name, Source: path}
	log := im.log.With("table", spec.Name, "source", path)

	if im.state != StorePrepared {
		res.Outcome = WriteError
		res.Err = fmt.Errorf("database is not open (importer is %s)", im.state)
		im.reportFailure(log, spec, res)
		return res
	}

	ds, outcome, err := im.readSource(ctx, path, spec)
	if err != nil {
		res.Outcome = outcome
		res.Err = err
		im.reportFailure(log, spec, res)
		return res
	}
	for _, c := range ds.Columns {
		log.Debug("inferred column", "column", c.Name, "type", c.Type.String())
	}

	rows, err := converters.LoadDataset(ctx, im.db, spec.Name, ds, &converters.LoadOptions{
		BatchSize: im.cfg.BatchSize,
		Logger:    log,
	})
	if err != nil {
		res.Outcome = WriteError
		res.Err = err
		im.reportFailure(log, spec, res)
		return res
	}

	res.Outcome = Success
	res.Rows = rows
	fmt.Fprintf(im.out, "Successfully imported '%s' into table '%s'.\n", spec.Source, spec.Name)
	log.Info("table imported", "rows", rows, "columns", len(ds.Columns))
	return res
}

// readSource opens path with the driver for its extension and builds the typed
// dataset. The returned Outcome classifies err.
func (im *Importer) readSource(ctx context.Context, path string, spec config.TableSpec) (*common.Dataset, Outcome, error) {
	file, err := im.openSource(path, spec.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NotFound, err
		}
		return nil, ParseError, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	driverName, err := converters.DriverForPath(path)
	if err != nil {
		return nil, ParseError, err
	}

	delimiter := spec.DelimiterRune()
	if delimiter == 0 {
		delimiter = converters.DefaultDelimiter(path)
	}
	provider, err := converters.Open(driverName, file, &common.ConversionConfig{
		Delimiter: delimiter,
		Encoding:  spec.Encoding,
		Sheet:     spec.Sheet,
	})
	if err != nil {
		return nil, ParseError, err
	}
	// Clean up converter resources if it implements io.Closer
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}

	ds, err := converters.ReadDataset(ctx, provider)
	if err != nil {
		return nil, ParseError, err
	}
	return ds, Success, nil
}

// openSource opens a source from the data directory, or from inside the
// archive when DataDir names a .zip file.
func (im *Importer) openSource(path, source string) (io.ReadCloser, error) {
	if !zip.IsArchive(im.cfg.DataDir) {
		return os.Open(path)
	}
	if im.archive == nil {
		a, err := zip.OpenArchive(im.cfg.DataDir)
		if err != nil {
			return nil, err
		}
		im.archive = a
		im.log.Debug("reading sources from archive", "archive", im.cfg.DataDir, "files", len(a.Names()))
	}
	return im.archive.Open(source)
}

func (im *Importer) reportFailure(log *slog.Logger, spec config.TableSpec, res Result) {
	if res.Outcome == NotFound {
		fmt.Fprintf(im.out, "Error: The file '%s' was not found.\n", res.Source)
	} else {
		fmt.Fprintf(im.out, "An error occurred with file '%s': %v\n", spec.Source, res.Err)
	}
	log.Warn("table not imported", "outcome", res.Outcome.String(), "error", res.Err)
}

// Finalize closes the database connection and the source archive, if any.
// The completion line is printed even when closing fails; the close errors
// are returned joined.
func (im *Importer) Finalize() error {
	if im.state == Closed {
		return nil
	}
	var errs []error
	if im.archive != nil {
		if err := im.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close archive: %w", err))
		}
		im.archive = nil
	}
	if im.db != nil {
		if err := im.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		im.db = nil
	}
	im.state = Closed
	fmt.Fprintln(im.out, "Database connection closed. All tables have been imported.")
	return errors.Join(errs...)
}

// Run prepares the store, imports every table in order and closes the store.
// The returned error is non-nil only when the store could not be prepared;
// per-table failures are in the Report.
func (im *Importer) Run(ctx context.Context) (*Report, error) {
	if err := im.PrepareStore(ctx); err != nil {
		return nil, err
	}

	report := &Report{Results: make([]Result, 0, len(im.cfg.Tables))}
	for _, spec := range im.cfg.Tables {
		report.Results = append(report.Results, im.ImportEntry(ctx, spec))
	}

	if err := im.Finalize(); err != nil {
		im.log.Error("close failed", "error", err)
	}
	im.log.Info("import finished", "tables", len(report.Results), "failed", len(report.Failed()))
	return report, nil
}
