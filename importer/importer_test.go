package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/darianmavgo/mkolist/config"
	"github.com/darianmavgo/mkolist/converters/common"
)

type fixture struct {
	dir string
	cfg *config.Config
}

// newFixture writes files into a fresh data directory and returns a config
// pointing at it with a database in the same temp dir.
func newFixture(t *testing.T, files map[string]string, tables ...config.TableSpec) *fixture {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0644))
	}
	return &fixture{
		dir: dir,
		cfg: &config.Config{
			DataDir:   dataDir,
			Database:  filepath.Join(dir, "out", "olist.db"),
			BatchSize: 2,
			Tables:    tables,
		},
	}
}

func (f *fixture) run(t *testing.T) (*Report, string) {
	t.Helper()
	var out bytes.Buffer
	im, err := New(f.cfg, &out, nil)
	require.NoError(t, err)
	report, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Closed, im.State())
	return report, out.String()
}

func (f *fixture) open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", f.cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func dump(t *testing.T, db *sql.DB, query string) [][]any {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()
	cols, err := rows.Columns()
	require.NoError(t, err)

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

const (
	customersCSV = "customer_id,signup_date\n1,2021-01-05\n"
	sellersCSV   = "seller_id,seller_zip_code_prefix,seller_city,seller_state\n" +
		"3442f8959a84dea7ee197c632cb2df15,13023,campinas,SP\n" +
		"d1b65fc7debc3361ea86b5f14c68d2e2,13844,mogi guacu,SP\n" +
		"ce3ad9de960102d0677a81f5d0bb7b2d,20031,rio de janeiro,RJ\n"
)

func TestCustomersScenario(t *testing.T) {
	f := newFixture(t, map[string]string{"customers.csv": customersCSV},
		config.TableSpec{Name: "customers", Source: "customers.csv"})

	report, out := f.run(t)
	require.Len(t, report.Results, 1)
	assert.Equal(t, Success, report.Results[0].Outcome)
	assert.EqualValues(t, 1, report.Results[0].Rows)
	assert.Empty(t, report.Failed())

	assert.Contains(t, out, "Database '"+f.cfg.Database+"' created.\n")
	assert.Contains(t, out, "Successfully imported 'customers.csv' into table 'customers'.\n")
	assert.Contains(t, out, "Database connection closed. All tables have been imported.\n")
	assert.NotContains(t, out, "Removed old database")

	db := f.open(t)
	got := dump(t, db, `SELECT customer_id, signup_date FROM customers`)
	assert.Equal(t, [][]any{{int64(1), "2021-01-05 00:00:00"}}, got)

	ts, err := common.ParseTemporal(got[0][1].(string))
	require.NoError(t, err)
	assert.Equal(t, "2021-01-05", ts.Format("2006-01-02"))
}

func TestMissingSource(t *testing.T) {
	f := newFixture(t, map[string]string{"sellers.csv": sellersCSV},
		config.TableSpec{Name: "customers", Source: "customers.csv"},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"},
	)

	report, out := f.run(t)
	missing := filepath.Join(f.cfg.DataDir, "customers.csv")
	assert.Contains(t, out, "Error: The file '"+missing+"' was not found.\n")
	assert.Contains(t, out, "Successfully imported 'sellers.csv' into table 'sellers'.\n")

	require.Len(t, report.Failed(), 1)
	assert.Equal(t, NotFound, report.Failed()[0].Outcome)
	assert.Equal(t, "customers", report.Failed()[0].Table)

	assert.Equal(t, []string{"sellers"}, tableNames(t, f.open(t)))
}

func TestMalformedSourceIsIsolated(t *testing.T) {
	f := newFixture(t, map[string]string{
		"customers.csv": customersCSV,
		"orders.csv":    "order_id,status\no1,delivered,extra\n",
		"reviews.csv":   "review_id,comment\nr1,p\xe9ssimo\n",
		"empty.csv":     "",
		"sellers.csv":   sellersCSV,
	},
		config.TableSpec{Name: "customers", Source: "customers.csv"},
		config.TableSpec{Name: "orders", Source: "orders.csv"},
		config.TableSpec{Name: "order_reviews", Source: "reviews.csv"},
		config.TableSpec{Name: "empty", Source: "empty.csv"},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"},
	)

	report, out := f.run(t)
	require.Len(t, report.Results, 5)
	wantOutcomes := []Outcome{Success, ParseError, ParseError, ParseError, Success}
	for i, want := range wantOutcomes {
		assert.Equal(t, want, report.Results[i].Outcome, "table %s", report.Results[i].Table)
	}
	assert.Contains(t, out, "An error occurred with file 'orders.csv': ")
	assert.Contains(t, out, "An error occurred with file 'reviews.csv': ")
	assert.Contains(t, out, "An error occurred with file 'empty.csv': ")
	assert.Contains(t, out, "Database connection closed. All tables have been imported.\n")

	db := f.open(t)
	assert.Equal(t, []string{"customers", "sellers"}, tableNames(t, db))
	assert.Len(t, dump(t, db, `SELECT * FROM sellers`), 3)
}

func TestUnsupportedFormat(t *testing.T) {
	f := newFixture(t, map[string]string{"orders.json": `[{"order_id": "o1"}]`},
		config.TableSpec{Name: "orders", Source: "orders.json"})

	report, out := f.run(t)
	assert.Equal(t, ParseError, report.Results[0].Outcome)
	assert.Contains(t, out, "An error occurred with file 'orders.json': ")
}

func TestRunTwiceReplaces(t *testing.T) {
	f := newFixture(t, map[string]string{"sellers.csv": sellersCSV},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"})

	f.run(t)
	first := dump(t, f.open(t), `SELECT * FROM sellers ORDER BY seller_id`)

	_, out := f.run(t)
	assert.Contains(t, out, "Removed old database '"+f.cfg.Database+"'.\n")
	second := dump(t, f.open(t), `SELECT * FROM sellers ORDER BY seller_id`)

	assert.Len(t, second, 3)
	assert.Equal(t, first, second)
}

func TestCleanSlate(t *testing.T) {
	f := newFixture(t, map[string]string{"sellers.csv": sellersCSV},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"})

	require.NoError(t, os.MkdirAll(filepath.Dir(f.cfg.Database), 0755))
	old, err := sql.Open("sqlite", f.cfg.Database)
	require.NoError(t, err)
	_, err = old.Exec(`CREATE TABLE leftovers (x INTEGER); INSERT INTO leftovers VALUES (1);`)
	require.NoError(t, err)
	require.NoError(t, old.Close())
	require.NoError(t, os.WriteFile(f.cfg.Database+"-journal", []byte("stale"), 0644))

	f.run(t)

	assert.Equal(t, []string{"sellers"}, tableNames(t, f.open(t)))
	_, err = os.Stat(f.cfg.Database + "-journal")
	assert.True(t, errors.Is(err, os.ErrNotExist), "stale journal survived: %v", err)
}

func TestColumnFidelity(t *testing.T) {
	f := newFixture(t, map[string]string{
		"items.csv": "order_id,order_item_id,price,shipping_limit_date,Note,,order_id\n" +
			"o1,1,58.90,2017-09-19 09:45:35,,x,dup\n" +
			"o2,2,239,2017-05-03 11:05:13,ok,y,dup\n",
	}, config.TableSpec{Name: "order_items", Source: "items.csv"})

	f.run(t)
	db := f.open(t)

	info := dump(t, db, `SELECT name, type FROM pragma_table_info('order_items') ORDER BY cid`)
	want := [][]any{
		{"order_id", "TEXT"},
		{"order_item_id", "INTEGER"},
		{"price", "REAL"},
		{"shipping_limit_date", "TEXT"},
		{"Note", "TEXT"},
		{"Unnamed: 5", "TEXT"},
		{"order_id.1", "TEXT"},
	}
	assert.Equal(t, want, info)

	rows := dump(t, db, `SELECT order_id, order_item_id, price, shipping_limit_date, Note FROM order_items ORDER BY order_item_id`)
	assert.Equal(t, [][]any{
		{"o1", int64(1), 58.9, "2017-09-19 09:45:35", nil},
		{"o2", int64(2), 239.0, "2017-05-03 11:05:13", "ok"},
	}, rows)
}

func TestConfiguredSourceOptions(t *testing.T) {
	f := newFixture(t, map[string]string{
		"rates.txt": "state|rate\nSP|0,18\n",
	}, config.TableSpec{Name: "rates", Source: "rates.txt", Delimiter: "|"})

	xlsx := excelize.NewFile()
	require.NoError(t, xlsx.SetSheetName("Sheet1", "cover"))
	_, err := xlsx.NewSheet("geo")
	require.NoError(t, err)
	require.NoError(t, xlsx.SetSheetRow("geo", "A1", &[]any{"zip", "city"}))
	require.NoError(t, xlsx.SetSheetRow("geo", "A2", &[]any{"01037", "sao paulo"}))
	require.NoError(t, xlsx.SaveAs(filepath.Join(f.cfg.DataDir, "geo.xlsx")))
	require.NoError(t, xlsx.Close())
	f.cfg.Tables = append(f.cfg.Tables, config.TableSpec{Name: "geolocation", Source: "geo.xlsx", Sheet: "geo"})

	report, _ := f.run(t)
	assert.Empty(t, report.Failed())

	db := f.open(t)
	assert.Equal(t, [][]any{{"SP", "0,18"}}, dump(t, db, `SELECT state, rate FROM rates`))
	// zip prefixes infer as integers, so the leading zero is dropped
	assert.Equal(t, [][]any{{int64(1037), "sao paulo"}}, dump(t, db, `SELECT zip, city FROM geolocation`))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{
		DataDir:   "data/",
		Database:  "olist.db",
		BatchSize: 10,
		Tables: []config.TableSpec{
			{Name: "orders", Source: "a.csv"},
			{Name: "Orders", Source: "b.csv"},
		},
	}
	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(nil, nil, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestPrepareStoreFailureIsFatal(t *testing.T) {
	f := newFixture(t, map[string]string{"sellers.csv": sellersCSV},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"})
	require.NoError(t, os.MkdirAll(f.cfg.Database, 0755))

	var out bytes.Buffer
	im, err := New(f.cfg, &out, nil)
	require.NoError(t, err)

	report, err := im.Run(context.Background())
	assert.ErrorIs(t, err, ErrPrepareStore)
	assert.Nil(t, report)
	assert.Equal(t, NotStarted, im.State())
	assert.NotContains(t, out.String(), "Successfully imported")
}

func TestImportEntryBeforePrepare(t *testing.T) {
	f := newFixture(t, map[string]string{"sellers.csv": sellersCSV})
	im, err := New(f.cfg, nil, nil)
	require.NoError(t, err)

	res := im.ImportEntry(context.Background(), config.TableSpec{Name: "sellers", Source: "sellers.csv"})
	assert.Equal(t, WriteError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestLifecycleSteps(t *testing.T) {
	f := newFixture(t, map[string]string{"customers.csv": customersCSV})
	var out bytes.Buffer
	im, err := New(f.cfg, &out, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, im.PrepareStore(ctx))
	assert.Equal(t, StorePrepared, im.State())
	assert.ErrorIs(t, im.PrepareStore(ctx), ErrPrepareStore)

	res := im.ImportEntry(ctx, config.TableSpec{Name: "customers", Source: "customers.csv"})
	assert.Equal(t, Success, res.Outcome)

	require.NoError(t, im.Finalize())
	require.NoError(t, im.Finalize())
	assert.Equal(t, Closed, im.State())
}

func TestArchiveDataDir(t *testing.T) {
	f := newFixture(t, nil,
		config.TableSpec{Name: "customers", Source: "olist_customers_dataset.csv"},
		config.TableSpec{Name: "sellers", Source: "olist_sellers_dataset.csv"},
		config.TableSpec{Name: "orders", Source: "olist_orders_dataset.csv"},
	)
	archive := filepath.Join(f.dir, "brazilian-ecommerce.zip")
	out, err := os.Create(archive)
	require.NoError(t, err)
	w := zip.NewWriter(out)
	for name, content := range map[string]string{
		"olist_customers_dataset.csv":       customersCSV,
		"archive/olist_sellers_dataset.csv": sellersCSV,
	} {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	f.cfg.DataDir = archive

	report, stdout := f.run(t)
	require.Len(t, report.Results, 3)
	assert.Equal(t, Success, report.Results[0].Outcome)
	assert.Equal(t, Success, report.Results[1].Outcome)
	assert.Equal(t, NotFound, report.Results[2].Outcome)
	assert.Contains(t, stdout, "Error: The file '"+filepath.Join(archive, "olist_orders_dataset.csv")+"' was not found.\n")

	db := f.open(t)
	assert.Equal(t, []string{"customers", "sellers"}, tableNames(t, db))
	assert.Len(t, dump(t, db, `SELECT * FROM sellers`), 3)
}

func TestMissingArchive(t *testing.T) {
	f := newFixture(t, nil, config.TableSpec{Name: "customers", Source: "olist_customers_dataset.csv"})
	f.cfg.DataDir = filepath.Join(f.dir, "missing.zip")

	report, _ := f.run(t)
	assert.Equal(t, NotFound, report.Results[0].Outcome)
}

func TestLiteralQuotesImported(t *testing.T) {
	f := newFixture(t, map[string]string{
		"products.csv": "product_id,product_name\np1,TV 42\" screen\np2,\"cabo, 2m\"\n",
	}, config.TableSpec{Name: "products", Source: "products.csv"})

	report, _ := f.run(t)
	assert.Empty(t, report.Failed())
	assert.Equal(t, [][]any{{"p1", `TV 42" screen`}, {"p2", "cabo, 2m"}},
		dump(t, f.open(t), `SELECT product_id, product_name FROM products ORDER BY product_id`))
}

func TestInvalidUTF8IsParseError(t *testing.T) {
	f := newFixture(t, map[string]string{
		"sellers.csv":   "seller_id,seller_city\ns1,s\xe3o paulo\n",
		"customers.csv": customersCSV,
	},
		config.TableSpec{Name: "sellers", Source: "sellers.csv"},
		config.TableSpec{Name: "customers", Source: "customers.csv"},
	)

	report, out := f.run(t)
	assert.Equal(t, ParseError, report.Results[0].Outcome)
	assert.Equal(t, Success, report.Results[1].Outcome)
	assert.Contains(t, out, "An error occurred with file 'sellers.csv': ")
	assert.Equal(t, []string{"customers"}, tableNames(t, f.open(t)))
}

func TestDelimiterFromExtension(t *testing.T) {
	f := newFixture(t, map[string]string{
		"odd.csv":   "a,b;c;d\n1,x;y;z\n",
		"rates.tsv": "state\trate;unit;note\nSP\t0.18;pct;x\n",
		"geo.txt":   "zip|city\n01037|sao paulo\n",
	},
		config.TableSpec{Name: "odd", Source: "odd.csv"},
		config.TableSpec{Name: "rates", Source: "rates.tsv"},
		config.TableSpec{Name: "geo", Source: "geo.txt"},
	)

	report, _ := f.run(t)
	assert.Empty(t, report.Failed())

	db := f.open(t)
	assert.Equal(t, [][]any{{int64(1), "x;y;z"}}, dump(t, db, `SELECT "a", "b;c;d" FROM odd`))
	assert.Equal(t, [][]any{{"SP", "0.18;pct;x"}}, dump(t, db, `SELECT "state", "rate;unit;note" FROM rates`))
	assert.Equal(t, [][]any{{int64(1037), "sao paulo"}}, dump(t, db, `SELECT zip, city FROM geo`))
}

func TestFinalizeReportsCompletionOnCloseError(t *testing.T) {
	f := newFixture(t, nil)
	archive := filepath.Join(f.dir, "olist.zip")
	out, err := os.Create(archive)
	require.NoError(t, err)
	w := zip.NewWriter(out)
	fw, err := w.Create("customers.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, customersCSV)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	f.cfg.DataDir = archive

	var buf bytes.Buffer
	im, err := New(f.cfg, &buf, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, im.PrepareStore(ctx))
	res := im.ImportEntry(ctx, config.TableSpec{Name: "customers", Source: "customers.csv"})
	require.Equal(t, Success, res.Outcome)

	// closing the archive underneath the importer makes Finalize's close fail
	require.NoError(t, im.archive.Close())

	err = im.Finalize()
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Equal(t, Closed, im.State())
	assert.Contains(t, buf.String(), "Database connection closed. All tables have been imported.\n")
}
