package common

import (
	"fmt"
	"strings"
)

// MaxBindParams is the largest number of host parameters SQLite accepts in one statement.
const MaxBindParams = 32766

// QuoteIdent quotes a table or column name for use in SQLite statements.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

/*
GenColumnNames turns a raw header row into usable, unique column names.

Names are kept as they appear in the source. An empty header becomes
"Unnamed: {idx}" and a repeated header gets a ".{n}" suffix, so a header of
a,a,,a yields a, a.1, Unnamed: 2, a.2.
Uniqueness is case-insensitive because SQLite column names are.
*/
func GenColumnNames(rawheaders []string) []string {
	names := make([]string, len(rawheaders))
	taken := make(map[string]bool, len(rawheaders))
	counter := map[string]int{}

	for idx, item := range rawheaders {
		if strings.TrimSpace(item) == "" {
			item = fmt.Sprintf("Unnamed: %d", idx)
		}
		name := item
		for taken[strings.ToLower(name)] {
			counter[item]++
			name = fmt.Sprintf("%s.%d", item, counter[item])
		}
		taken[strings.ToLower(name)] = true
		names[idx] = name
	}
	return names
}

// GenDropTableSQL generates a DROP TABLE IF EXISTS statement.
func GenDropTableSQL(tableName string) string {
	return "DROP TABLE IF EXISTS " + QuoteIdent(tableName)
}

// GenCreateTableSQL generates a CREATE TABLE statement with one typed column per entry.
func GenCreateTableSQL(tableName string, columns []Column) string {
	var builder strings.Builder
	builder.Grow(len(tableName) + len(columns)*24)

	builder.WriteString("CREATE TABLE ")
	builder.WriteString(QuoteIdent(tableName))
	builder.WriteString(" (")
	for i, col := range columns {
		builder.WriteString(QuoteIdent(col.Name))
		builder.WriteByte(' ')
		builder.WriteString(col.Type.SQLType())
		if i < len(columns)-1 {
			builder.WriteString(", ")
		}
	}
	builder.WriteByte(')')
	return builder.String()
}

// GenInsertSQL generates a prepared INSERT statement covering rowCount rows.
func GenInsertSQL(tableName string, fields []string, rowCount int) (string, error) {
	if tableName == "" || len(fields) == 0 {
		return "", fmt.Errorf("table name and fields are required")
	}
	if rowCount < 1 {
		return "", fmt.Errorf("row count must be positive, got %d", rowCount)
	}
	if rowCount*len(fields) > MaxBindParams {
		return "", fmt.Errorf("%d rows of %d fields exceed %d bind parameters", rowCount, len(fields), MaxBindParams)
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = QuoteIdent(f)
	}
	tuple := "(" + strings.Repeat("?,", len(fields)-1) + "?)"

	var builder strings.Builder
	builder.Grow(32 + len(tableName) + len(fields)*16 + rowCount*(len(tuple)+1))
	builder.WriteString("INSERT INTO ")
	builder.WriteString(QuoteIdent(tableName))
	builder.WriteString(" (")
	builder.WriteString(strings.Join(quoted, ","))
	builder.WriteString(") VALUES ")
	for i := 0; i < rowCount; i++ {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(tuple)
	}
	return builder.String(), nil
}

// RowsPerStatement caps batchSize so that one INSERT never exceeds MaxBindParams.
func RowsPerStatement(batchSize, columnCount int) int {
	if batchSize < 1 {
		batchSize = 1
	}
	if columnCount < 1 {
		return batchSize
	}
	if limit := MaxBindParams / columnCount; batchSize > limit {
		return limit
	}
	return batchSize
}
