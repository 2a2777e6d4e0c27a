// file: mysql_connector.go
package dbconnector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLConnector struct {
	baseConnector
}

func newMySQLConnector(cfg ConnectionConfig) (*MySQLConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	db, err := openDatabase("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	return &MySQLConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *MySQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func (c *MySQLConnector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'")
	if err != nil {
		return nil, fmt.Errorf("list mysql tables: %w", err)
	}
	defer rows.Close()
	results := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan mysql table name: %w", err)
		}
		results = append(results, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mysql tables: %w", err)
	}
	return results, nil
}

func (c *MySQLConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	_, _, err := quoteQualified(table, 1, func(s string) string { return "`" + s + "`" })
	if err != nil {
		return nil, fmt.Errorf("invalid mysql table: %w", err)
	}
	colsStmt, err := c.db.PrepareContext(ctx, "SELECT column_name, data_type, is_nullable, column_key FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position")
	if err != nil {
		return nil, fmt.Errorf("prepare mysql columns query: %w", err)
	}
	defer colsStmt.Close()
	rows, err := colsStmt.QueryContext(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("query mysql columns: %w", err)
	}
	defer rows.Close()
	columns := []ColumnInfo{}
	for rows.Next() {
		var name, dataType, isNullable, key string
		if err := rows.Scan(&name, &dataType, &isNullable, &key); err != nil {
			return nil, fmt.Errorf("scan mysql column: %w", err)
		}
		columns = append(columns, ColumnInfo{
			Name:     name,
			Type:     dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
			IsPK:     strings.EqualFold(key, "PRI"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mysql columns: %w", err)
	}

	idxStmt, err := c.db.PrepareContext(ctx, "SELECT index_name, non_unique, column_name, seq_in_index FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? ORDER BY index_name, seq_in_index")
	if err != nil {
		return nil, fmt.Errorf("prepare mysql index query: %w", err)
	}
	defer idxStmt.Close()
	idxRows, err := idxStmt.QueryContext(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("query mysql indexes: %w", err)
	}
	defer idxRows.Close()
	indexMap := map[string]*IndexInfo{}
	for idxRows.Next() {
		var name string
		var nonUnique int
		var column string
		var seq int
		if err := idxRows.Scan(&name, &nonUnique, &column, &seq); err != nil {
			return nil, fmt.Errorf("scan mysql index: %w", err)
		}
		idx, ok := indexMap[name]
		if !ok {
			idx = &IndexInfo{Name: name, Unique: nonUnique == 0, Columns: []string{}}
			indexMap[name] = idx
		}
		idx.Columns = append(idx.Columns, column)
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mysql indexes: %w", err)
	}
	indexes := []IndexInfo{}
	for _, idx := range indexMap {
		indexes = append(indexes, *idx)
	}
	indexes = sortIndexColumns(indexes)

	foreignKeys, err := c.describeForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	rowCount, err := c.estimateRowCount(ctx, table)
	if err != nil {
		return nil, err
	}
	return &TableSchema{
		Table:       table,
		Columns:     columns,
		ForeignKeys: foreignKeys,
		Indexes:     indexes,
		RowCount:    rowCount,
	}, nil
}

func (c *MySQLConnector) describeForeignKeys(ctx context.Context, table string) ([]ForeignKeyInfo, error) {
	stmt, err := c.db.PrepareContext(ctx, "SELECT constraint_name, column_name, referenced_table_name, referenced_column_name FROM information_schema.key_column_usage WHERE table_schema = DATABASE() AND table_name = ? AND referenced_table_name IS NOT NULL ORDER BY constraint_name, ordinal_position")
	if err != nil {
		return nil, fmt.Errorf("prepare mysql foreign key query: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("query mysql foreign keys: %w", err)
	}
	defer rows.Close()
	foreignKeys := []ForeignKeyInfo{}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan mysql foreign key: %w", err)
		}
		foreignKeys = append(foreignKeys, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mysql foreign keys: %w", err)
	}
	return foreignKeys, nil
}

func (c *MySQLConnector) ExecuteQuery(ctx context.Context, query string, params []any) (*QueryResult, error) {
	return c.runQuery(ctx, "mysql", query, params, placeholderQuestion)
}

func (c *MySQLConnector) ExecuteTransaction(ctx context.Context, stmts []Statement) ([]ExecResult, error) {
	return c.runTransaction(ctx, "mysql", stmts, placeholderQuestion)
}

func (c *MySQLConnector) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	return c.sampleRows(ctx, table, normalizeSampleLimit(limit), nil)
}

func (c *MySQLConnector) ProfileTable(ctx context.Context, table string, opts ProfileOptions) (*TableProfile, error) {
	opts = normalizeProfileOptions(opts)
	schema, err := c.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	columns := schema.Columns
	if len(columns) > opts.MaxColumns {
		columns = columns[:opts.MaxColumns]
	}
	columnNames := make([]string, len(columns))
	for i, col := range columns {
		columnNames[i] = col.Name
	}
	sampleRows, err := c.sampleRows(ctx, table, opts.SampleLimit, columnNames)
	if err != nil {
		return nil, err
	}
	preview := sampleRows
	if len(preview) > maxSamplePreview {
		preview = preview[:maxSamplePreview]
	}
	profiling := profileFromSample(*schema, sampleRows, opts.MaxColumns)
	return &TableProfile{
		Table:         table,
		RowCount:      schema.RowCount,
		Schema:        *schema,
		Profiling:     profiling,
		SamplePreview: preview,
	}, nil
}

func (c *MySQLConnector) sampleRows(ctx context.Context, table string, limit int, columns []string) ([]map[string]any, error) {
	quotedTable, _, err := quoteQualified(table, 1, func(s string) string { return "`" + s + "`" })
	if err != nil {
		return nil, fmt.Errorf("invalid mysql table: %w", err)
	}
	selectClause := "*"
	if len(columns) > 0 {
		selectClause, err = quoteList(columns, func(s string) string { return "`" + s + "`" })
		if err != nil {
			return nil, fmt.Errorf("invalid mysql column list: %w", err)
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s LIMIT ?", selectClause, quotedTable)
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare mysql sample query: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query mysql sample rows: %w", err)
	}
	defer rows.Close()
	result, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan mysql sample rows: %w", err)
	}
	return result, nil
}

func (c *MySQLConnector) estimateRowCount(ctx context.Context, table string) (int64, error) {
	stmt, err := c.db.PrepareContext(ctx, "SELECT table_rows FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?")
	if err != nil {
		return 0, fmt.Errorf("prepare mysql row count query: %w", err)
	}
	defer stmt.Close()
	var count sql.NullInt64
	if err := stmt.QueryRowContext(ctx, table).Scan(&count); err != nil {
		return 0, fmt.Errorf("query mysql row count: %w", err)
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}
