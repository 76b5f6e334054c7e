package dbutil

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ImportOptions control CSV import behavior.
type ImportOptions struct {
	// CreateTable creates the target table when missing, with column types
	// inferred from the data.
	CreateTable bool

	// Truncate empties the target table before loading.
	Truncate bool
}

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
)

// ImportCSV loads a CSV file into schema.table and returns the number of
// rows inserted. The whole load runs in a single transaction.
func ImportCSV(ctx context.Context, db *sql.DB, csvPath, schema, table string, opts ImportOptions, logger *slog.Logger) (int, error) {
	if err := validIdent(schema); err != nil {
		return 0, err
	}
	if err := validIdent(table); err != nil {
		return 0, err
	}

	headers, rows, err := readCSV(csvPath)
	if err != nil {
		return 0, err
	}
	if len(headers) == 0 {
		return 0, fmt.Errorf("dbutil: import: %s has no headers", csvPath)
	}
	if len(rows) == 0 {
		logger.Info("csv file is empty", "path", csvPath)
		return 0, nil
	}
	for _, h := range headers {
		if err := validIdent(h); err != nil {
			return 0, err
		}
	}

	colTypes := inferColumnTypes(headers, rows)

	if opts.CreateTable {
		exists, err := TableExists(ctx, db, schema, table)
		if err != nil {
			return 0, err
		}
		if !exists {
			stmt := generateCreateTable(schema, table, headers, colTypes)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return 0, fmt.Errorf("dbutil: create table %s.%s: %w", schema, table, err)
			}
			logger.Info("table created", "schema", schema, "table", table)
		}
	}

	if opts.Truncate {
		stmt := "TRUNCATE TABLE " + quoteIdent(schema) + "." + quoteIdent(table)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("dbutil: truncate %s.%s: %w", schema, table, err)
		}
		logger.Info("table truncated", "schema", schema, "table", table)
	}

	cols := make([]string, len(headers))
	params := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = quoteIdent(h)
		params[i] = "@p" + strconv.Itoa(i+1)
	}
	insert := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		quoteIdent(schema), quoteIdent(table),
		strings.Join(cols, ","), strings.Join(params, ","))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("dbutil: import: begin: %w", err)
	}
	defer tx.Rollback()

	imported := 0
	for _, row := range rows {
		values := make([]any, len(headers))
		for i, h := range headers {
			values[i] = convertValue(row[i], colTypes[h])
		}
		if _, err := tx.ExecContext(ctx, insert, values...); err != nil {
			return imported, fmt.Errorf("dbutil: import row %d: %w", imported+1, err)
		}
		imported++
	}
	if err := tx.Commit(); err != nil {
		return imported, fmt.Errorf("dbutil: import: commit: %w", err)
	}

	logger.Info("csv imported", "rows", imported, "schema", schema, "table", table)
	return imported, nil
}

// ExportCSV writes a table (or the results of a custom query) to a CSV file
// and returns the number of rows exported.
func ExportCSV(ctx context.Context, db *sql.DB, schema, table, csvPath, query string, logger *slog.Logger) (int, error) {
	if query == "" {
		if err := validIdent(schema); err != nil {
			return 0, err
		}
		if err := validIdent(table); err != nil {
			return 0, err
		}
		query = "SELECT * FROM " + quoteIdent(schema) + "." + quoteIdent(table)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("dbutil: export query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("dbutil: export columns: %w", err)
	}

	f, err := os.Create(csvPath)
	if err != nil {
		return 0, fmt.Errorf("dbutil: export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return 0, fmt.Errorf("dbutil: export header: %w", err)
	}

	exported := 0
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return exported, fmt.Errorf("dbutil: export scan: %w", err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = renderValue(v)
		}
		if err := w.Write(record); err != nil {
			return exported, fmt.Errorf("dbutil: export row: %w", err)
		}
		exported++
	}
	if err := rows.Err(); err != nil {
		return exported, fmt.Errorf("dbutil: export: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return exported, fmt.Errorf("dbutil: export flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return exported, fmt.Errorf("dbutil: export sync: %w", err)
	}

	logger.Info("csv exported", "rows", exported, "path", csvPath)
	return exported, nil
}

// CompareCSV compares two CSV files and returns whether they match plus a
// list of differences. Cells are matched by header name so column order does
// not matter, row order is ignored, and numeric cells compare by value, so
// precision-only differences do not count.
func CompareCSV(path1, path2 string) (bool, []string, error) {
	headers1, rows1, err := readCSV(path1)
	if err != nil {
		return false, nil, err
	}
	headers2, rows2, err := readCSV(path2)
	if err != nil {
		return false, nil, err
	}

	var diffs []string

	if !sameHeaderSet(headers1, headers2) {
		diffs = append(diffs, fmt.Sprintf("Headers differ: %v vs %v", headers1, headers2))
	}
	if len(rows1) != len(rows2) {
		diffs = append(diffs, fmt.Sprintf("Row count differs: %d vs %d", len(rows1), len(rows2)))
	}

	names := commonHeaders(headers1, headers2)
	sorted1 := projectRows(rows1, headerIndex(headers1), names)
	sorted2 := projectRows(rows2, headerIndex(headers2), names)
	sortRows(sorted1)
	sortRows(sorted2)

	n := len(sorted1)
	if len(sorted2) < n {
		n = len(sorted2)
	}
	for i := 0; i < n; i++ {
		for j, h := range names {
			v1, v2 := sorted1[i][j], sorted2[i][j]
			if v1 == v2 {
				continue
			}
			if f1, err1 := strconv.ParseFloat(v1, 64); err1 == nil {
				if f2, err2 := strconv.ParseFloat(v2, 64); err2 == nil && f1 == f2 {
					continue
				}
			}
			diffs = append(diffs, fmt.Sprintf("Row %d, column '%s': '%s' vs '%s'", i+1, h, v1, v2))
		}
	}

	return len(diffs) == 0, diffs, nil
}

// readCSV reads a CSV file into a header slice and data rows.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dbutil: read csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("dbutil: parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// inferColumnTypes picks a SQL Server type per column from the data: INT or
// BIGINT when every value parses as an integer, DECIMAL(18,6) for floats,
// DATE/DATETIME2 for ISO dates, otherwise NVARCHAR sized to the longest
// value.
func inferColumnTypes(headers []string, rows [][]string) map[string]string {
	colTypes := make(map[string]string, len(headers))

	for j, header := range headers {
		var values []string
		for _, row := range rows {
			if j < len(row) && row[j] != "" {
				values = append(values, row[j])
			}
		}
		if len(values) == 0 {
			colTypes[header] = "NVARCHAR(255)"
			continue
		}
		colTypes[header] = inferType(values)
	}
	return colTypes
}

func inferType(values []string) string {
	allInt := true
	var maxAbs int64
	for _, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			allInt = false
			break
		}
		if n < 0 {
			n = -n
		}
		if n > maxAbs {
			maxAbs = n
		}
	}
	if allInt {
		if maxAbs <= 2147483647 {
			return "INT"
		}
		return "BIGINT"
	}

	allFloat := true
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
			break
		}
	}
	if allFloat {
		return "DECIMAL(18,6)"
	}

	if allMatch(values, datePattern) {
		return "DATE"
	}
	if allMatch(values, datetimePattern) {
		return "DATETIME2"
	}

	maxLen := 0
	for _, v := range values {
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}
	switch {
	case maxLen <= 50:
		return "NVARCHAR(50)"
	case maxLen <= 255:
		return "NVARCHAR(255)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func allMatch(values []string, re *regexp.Regexp) bool {
	for _, v := range values {
		if !re.MatchString(v) {
			return false
		}
	}
	return true
}

// generateCreateTable renders the CREATE TABLE statement with columns in
// header order.
func generateCreateTable(schema, table string, headers []string, colTypes map[string]string) string {
	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = fmt.Sprintf("    %s %s NULL", quoteIdent(h), colTypes[h])
	}
	return fmt.Sprintf("CREATE TABLE %s.%s (\n%s\n)",
		quoteIdent(schema), quoteIdent(table), strings.Join(cols, ",\n"))
}

// convertValue converts a CSV cell to the driver value matching the column
// type. Empty cells become NULL.
func convertValue(value, sqlType string) any {
	if value == "" {
		return nil
	}
	switch {
	case strings.Contains(sqlType, "INT"):
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return value
		}
		return n
	case strings.Contains(sqlType, "DECIMAL"), strings.Contains(sqlType, "FLOAT"):
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return value
		}
		return f
	default:
		return value
	}
}

// renderValue formats a scanned driver value for CSV output. NULL becomes
// the empty string.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func sameHeaderSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, h := range a {
		set[h]++
	}
	for _, h := range b {
		set[h]--
		if set[h] < 0 {
			return false
		}
	}
	return true
}

// headerIndex maps each header name to its column position.
func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}
	return idx
}

// commonHeaders returns the sorted header names present in both files.
func commonHeaders(a, b []string) []string {
	ia := headerIndex(a)
	var names []string
	for _, h := range b {
		if _, ok := ia[h]; ok {
			names = append(names, h)
		}
	}
	sort.Strings(names)
	return names
}

// projectRows reorders each row's cells into the given header-name order so
// files carrying the same columns in a different order compare cell for
// cell. Missing cells project to the empty string.
func projectRows(rows [][]string, idx map[string]int, names []string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		proj := make([]string, len(names))
		for j, h := range names {
			if k := idx[h]; k < len(row) {
				proj[j] = row[k]
			}
		}
		out[i] = proj
	}
	return out
}

// sortRows orders rows by their joined cell values for order-insensitive
// comparison.
func sortRows(rows [][]string) {
	sort.Slice(rows, func(i, j int) bool {
		return strings.Join(rows[i], "\x00") < strings.Join(rows[j], "\x00")
	})
}
