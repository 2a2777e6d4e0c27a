// file: clickhouse_connector.go
package dbconnector

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseConnector struct {
	baseConnector
}

func newClickHouseConnector(cfg ConnectionConfig) (*ClickHouseConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode != "" && sslMode != "disable" {
		opts.TLS = &tls.Config{}
	}
	db := clickhouse.OpenDB(opts)
	return &ClickHouseConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *ClickHouseConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}
	return nil
}

func (c *ClickHouseConnector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name FROM system.tables WHERE database = currentDatabase() AND NOT is_temporary ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list clickhouse tables: %w", err)
	}
	defer rows.Close()
	results := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan clickhouse table name: %w", err)
		}
		results = append(results, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clickhouse tables: %w", err)
	}
	return results, nil
}

func (c *ClickHouseConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	_, _, err := quoteQualified(table, 1, func(s string) string { return "`" + s + "`" })
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse table: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, "SELECT name, type, is_in_primary_key FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position", table)
	if err != nil {
		return nil, fmt.Errorf("query clickhouse columns: %w", err)
	}
	defer rows.Close()
	columns := []ColumnInfo{}
	for rows.Next() {
		var name, colType string
		var inPK uint8
		if err := rows.Scan(&name, &colType, &inPK); err != nil {
			return nil, fmt.Errorf("scan clickhouse column: %w", err)
		}
		columns = append(columns, ColumnInfo{
			Name:     name,
			Type:     colType,
			Nullable: strings.HasPrefix(colType, "Nullable("),
			IsPK:     inPK == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clickhouse columns: %w", err)
	}

	idxRows, err := c.db.QueryContext(ctx, "SELECT name, expr FROM system.data_skipping_indices WHERE database = currentDatabase() AND table = ? ORDER BY name", table)
	if err != nil {
		return nil, fmt.Errorf("query clickhouse indexes: %w", err)
	}
	defer idxRows.Close()
	indexes := []IndexInfo{}
	for idxRows.Next() {
		var name, expr string
		if err := idxRows.Scan(&name, &expr); err != nil {
			return nil, fmt.Errorf("scan clickhouse index: %w", err)
		}
		indexes = append(indexes, IndexInfo{Name: name, Columns: []string{expr}})
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clickhouse indexes: %w", err)
	}
	indexes = sortIndexColumns(indexes)

	rowCount, err := c.estimateRowCount(ctx, table)
	if err != nil {
		return nil, err
	}
	// ClickHouse has no foreign key constraints.
	return &TableSchema{
		Table:       table,
		Columns:     columns,
		ForeignKeys: []ForeignKeyInfo{},
		Indexes:     indexes,
		RowCount:    rowCount,
	}, nil
}

func (c *ClickHouseConnector) ExecuteQuery(ctx context.Context, query string, params []any) (*QueryResult, error) {
	return c.runQuery(ctx, "clickhouse", query, params, placeholderQuestion)
}

func (c *ClickHouseConnector) ExecuteTransaction(ctx context.Context, stmts []Statement) ([]ExecResult, error) {
	return nil, fmt.Errorf("clickhouse: %w", ErrTransactionsUnsupported)
}

func (c *ClickHouseConnector) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	return c.sampleRows(ctx, table, normalizeSampleLimit(limit), nil)
}

func (c *ClickHouseConnector) ProfileTable(ctx context.Context, table string, opts ProfileOptions) (*TableProfile, error) {
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

func (c *ClickHouseConnector) sampleRows(ctx context.Context, table string, limit int, columns []string) ([]map[string]any, error) {
	quotedTable, _, err := quoteQualified(table, 1, func(s string) string { return "`" + s + "`" })
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse table: %w", err)
	}
	selectClause := "*"
	if len(columns) > 0 {
		selectClause, err = quoteList(columns, func(s string) string { return "`" + s + "`" })
		if err != nil {
			return nil, fmt.Errorf("invalid clickhouse column list: %w", err)
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s LIMIT ?", selectClause, quotedTable)
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query clickhouse sample rows: %w", err)
	}
	defer rows.Close()
	result, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan clickhouse sample rows: %w", err)
	}
	return result, nil
}

func (c *ClickHouseConnector) estimateRowCount(ctx context.Context, table string) (int64, error) {
	var count sql.NullInt64
	if err := c.db.QueryRowContext(ctx, "SELECT total_rows FROM system.tables WHERE database = currentDatabase() AND name = ?", table).Scan(&count); err != nil {
		return 0, fmt.Errorf("query clickhouse row count: %w", err)
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}
