package html

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/darianmavgo/mkolist/converters"
	"github.com/darianmavgo/mkolist/converters/common"

	"golang.org/x/net/html"
)

func init() {
	converters.Register("html", &htmlDriver{})
}

type htmlDriver struct{}

func (d *htmlDriver) Open(source io.Reader, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewHTMLConverterWithConfig(source, config)
}

// HTMLConverter reads one <table> of an HTML document. The first row of the
// table is the header.
type HTMLConverter struct {
	table tableData
}

type tableData struct {
	id      string
	headers []string
	rows    [][]string
}

// Ensure HTMLConverter implements RowProvider
var _ common.RowProvider = (*HTMLConverter)(nil)

// NewHTMLConverter creates a new HTMLConverter for the first table in the document.
func NewHTMLConverter(r io.Reader) (*HTMLConverter, error) {
	return NewHTMLConverterWithConfig(r, nil)
}

// NewHTMLConverterWithConfig creates a new HTMLConverter. config.Sheet selects
// a table by its id attribute; empty means the first table.
func NewHTMLConverterWithConfig(r io.Reader, config *common.ConversionConfig) (*HTMLConverter, error) {
	var cfg common.ConversionConfig
	if config != nil {
		cfg = *config
	}

	decoded, err := common.NewDecodingReader(r, cfg.Encoding)
	if err != nil {
		return nil, err
	}

	tables, err := parseHTML(bufio.NewReaderSize(decoded, 65536))
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found in HTML: %w", converters.ErrEmptySource)
	}

	var selected *tableData
	if cfg.Sheet == "" {
		selected = &tables[0]
	} else {
		for i := range tables {
			if tables[i].id == cfg.Sheet {
				selected = &tables[i]
				break
			}
		}
		if selected == nil {
			return nil, fmt.Errorf("table %q not found in HTML", cfg.Sheet)
		}
	}

	if len(selected.headers) == 0 {
		return nil, converters.ErrEmptySource
	}
	return &HTMLConverter{table: *selected}, nil
}

// GetHeaders implements RowProvider
func (c *HTMLConverter) GetHeaders() []string {
	return c.table.headers
}

// ScanRows implements RowProvider. Rows without cells are skipped.
func (c *HTMLConverter) ScanRows(ctx context.Context, yield func([]string) error) error {
	for _, row := range c.table.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return nil
}

func parseHTML(reader io.Reader) ([]tableData, error) {
	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tables []tableData
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, extractTable(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return tables, nil
}

func extractTable(n *html.Node) tableData {
	var id string
	for _, attr := range n.Attr {
		if attr.Key == "id" {
			id = attr.Val
			break
		}
	}

	var rows [][]string
	var visitRows func(*html.Node)
	visitRows = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "tr" {
			var row []string
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, extractText(c))
				}
			}
			rows = append(rows, row)
			return
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			// nested tables are collected separately by parseHTML
			if c.Type == html.ElementNode && c.Data == "table" {
				continue
			}
			visitRows(c)
		}
	}
	visitRows(n)

	// skip leading rows without cells so the header is the first real row
	for len(rows) > 0 && len(rows[0]) == 0 {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return tableData{id: id}
	}

	return tableData{
		id:      id,
		headers: rows[0],
		rows:    rows[1:],
	}
}

func extractText(n *html.Node) string {
	var sb strings.Builder
	extractTextRecursive(n, &sb)
	return strings.TrimSpace(sb.String())
}

func extractTextRecursive(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextRecursive(c, sb)
	}
}
