// file: mssql_connector.go
package dbconnector

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

type MSSQLConnector struct {
	baseConnector
}

func newMSSQLConnector(cfg ConnectionConfig) (*MSSQLConnector, error) {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	encrypt := "true"
	if sslMode == "disable" {
		encrypt = "disable"
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, cfg.Database, encrypt)
	db, err := openDatabase("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	return &MSSQLConnector{baseConnector{cfg: cfg, db: db}}, nil
}

func (c *MSSQLConnector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql: %w", err)
	}
	return nil
}

func (c *MSSQLConnector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_CATALOG = DB_NAME()")
	if err != nil {
		return nil, fmt.Errorf("list mssql tables: %w", err)
	}
	defer rows.Close()
	results := []string{}
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan mssql table name: %w", err)
		}
		results = append(results, fmt.Sprintf("%s.%s", schema, name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mssql tables: %w", err)
	}
	return results, nil
}

func (c *MSSQLConnector) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	schema, name, err := parseMSSQLTable(table)
	if err != nil {
		return nil, err
	}
	colsStmt, err := c.db.PrepareContext(ctx, "SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_CATALOG = DB_NAME() AND TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION")
	if err != nil {
		return nil, fmt.Errorf("prepare mssql columns query: %w", err)
	}
	defer colsStmt.Close()
	rows, err := colsStmt.QueryContext(ctx, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query mssql columns: %w", err)
	}
	defer rows.Close()
	columns := []ColumnInfo{}
	for rows.Next() {
		var colName, dataType, isNullable string
		if err := rows.Scan(&colName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan mssql column: %w", err)
		}
		columns = append(columns, ColumnInfo{
			Name:     colName,
			Type:     dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mssql columns: %w", err)
	}

	pkStmt, err := c.db.PrepareContext(ctx, "SELECT kcu.COLUMN_NAME FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2 ORDER BY kcu.ORDINAL_POSITION")
	if err != nil {
		return nil, fmt.Errorf("prepare mssql pk query: %w", err)
	}
	defer pkStmt.Close()
	pkRows, err := pkStmt.QueryContext(ctx, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query mssql pk columns: %w", err)
	}
	defer pkRows.Close()
	pkSet := map[string]struct{}{}
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan mssql pk column: %w", err)
		}
		pkSet[col] = struct{}{}
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mssql pk columns: %w", err)
	}
	for i, col := range columns {
		if _, ok := pkSet[col.Name]; ok {
			columns[i].IsPK = true
		}
	}

	idxStmt, err := c.db.PrepareContext(ctx, "SELECT i.name, i.is_unique, c.name, ic.key_ordinal FROM sys.indexes i JOIN sys.index_columns ic ON i.object_id = ic.object_id AND i.index_id = ic.index_id JOIN sys.columns c ON ic.object_id = c.object_id AND ic.column_id = c.column_id JOIN sys.tables t ON i.object_id = t.object_id JOIN sys.schemas s ON t.schema_id = s.schema_id WHERE t.name = @p1 AND s.name = @p2 AND i.is_hypothetical = 0 AND i.type_desc <> 'HEAP' ORDER BY i.name, ic.key_ordinal")
	if err != nil {
		return nil, fmt.Errorf("prepare mssql index query: %w", err)
	}
	defer idxStmt.Close()
	idxRows, err := idxStmt.QueryContext(ctx, name, schema)
	if err != nil {
		return nil, fmt.Errorf("query mssql indexes: %w", err)
	}
	defer idxRows.Close()
	indexMap := map[string]*IndexInfo{}
	for idxRows.Next() {
		var idxName string
		var unique bool
		var col string
		var ord int
		if err := idxRows.Scan(&idxName, &unique, &col, &ord); err != nil {
			return nil, fmt.Errorf("scan mssql index: %w", err)
		}
		idx, ok := indexMap[idxName]
		if !ok {
			idx = &IndexInfo{Name: idxName, Unique: unique, Columns: []string{}}
			indexMap[idxName] = idx
		}
		idx.Columns = append(idx.Columns, col)
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mssql indexes: %w", err)
	}
	indexes := []IndexInfo{}
	for _, idx := range indexMap {
		indexes = append(indexes, *idx)
	}
	indexes = sortIndexColumns(indexes)

	foreignKeys, err := c.describeForeignKeys(ctx, schema, name)
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

func (c *MSSQLConnector) describeForeignKeys(ctx context.Context, schema, name string) ([]ForeignKeyInfo, error) {
	stmt, err := c.db.PrepareContext(ctx, "SELECT fk.name, pc.name, rt.name, rc.name FROM sys.foreign_keys fk JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id JOIN sys.schemas s ON pt.schema_id = s.schema_id JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id WHERE pt.name = @p1 AND s.name = @p2 ORDER BY fk.name, fkc.constraint_column_id")
	if err != nil {
		return nil, fmt.Errorf("prepare mssql foreign key query: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx, name, schema)
	if err != nil {
		return nil, fmt.Errorf("query mssql foreign keys: %w", err)
	}
	defer rows.Close()
	foreignKeys := []ForeignKeyInfo{}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan mssql foreign key: %w", err)
		}
		foreignKeys = append(foreignKeys, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mssql foreign keys: %w", err)
	}
	return foreignKeys, nil
}

func (c *MSSQLConnector) ExecuteQuery(ctx context.Context, query string, params []any) (*QueryResult, error) {
	return c.runQuery(ctx, "mssql", query, params, placeholderAtP)
}

func (c *MSSQLConnector) ExecuteTransaction(ctx context.Context, stmts []Statement) ([]ExecResult, error) {
	return c.runTransaction(ctx, "mssql", stmts, placeholderAtP)
}

func (c *MSSQLConnector) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	return c.sampleRows(ctx, table, normalizeSampleLimit(limit), nil)
}

func (c *MSSQLConnector) ProfileTable(ctx context.Context, table string, opts ProfileOptions) (*TableProfile, error) {
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

func (c *MSSQLConnector) sampleRows(ctx context.Context, table string, limit int, columns []string) ([]map[string]any, error) {
	quotedTable, err := quoteMSSQLTable(table)
	if err != nil {
		return nil, err
	}
	selectClause := "*"
	if len(columns) > 0 {
		selectClause, err = quoteList(columns, func(s string) string { return "[" + s + "]" })
		if err != nil {
			return nil, fmt.Errorf("invalid mssql column list: %w", err)
		}
	}
	query := fmt.Sprintf("SELECT TOP (@p1) %s FROM %s", selectClause, quotedTable)
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare mssql sample query: %w", err)
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query mssql sample rows: %w", err)
	}
	defer rows.Close()
	result, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan mssql sample rows: %w", err)
	}
	return result, nil
}

func (c *MSSQLConnector) estimateRowCount(ctx context.Context, table string) (int64, error) {
	schema, name, err := parseMSSQLTable(table)
	if err != nil {
		return 0, err
	}
	stmt, err := c.db.PrepareContext(ctx, "SELECT SUM(ps.row_count) FROM sys.dm_db_partition_stats ps JOIN sys.tables t ON ps.object_id = t.object_id JOIN sys.schemas s ON t.schema_id = s.schema_id WHERE ps.index_id IN (0, 1) AND t.name = @p1 AND s.name = @p2")
	if err != nil {
		return 0, fmt.Errorf("prepare mssql row count query: %w", err)
	}
	defer stmt.Close()
	var count sql.NullInt64
	if err := stmt.QueryRowContext(ctx, name, schema).Scan(&count); err != nil {
		return 0, fmt.Errorf("query mssql row count: %w", err)
	}
	if !count.Valid {
		return 0, nil
	}
	return count.Int64, nil
}

func parseMSSQLTable(table string) (string, string, error) {
	_, parts, err := quoteQualified(table, 2, func(s string) string { return "[" + s + "]" })
	if err != nil {
		return "", "", fmt.Errorf("invalid mssql table: %w", err)
	}
	if len(parts) == 1 {
		return "dbo", parts[0], nil
	}
	return parts[0], parts[1], nil
}

func quoteMSSQLTable(table string) (string, error) {
	quoted, _, err := quoteQualified(table, 2, func(s string) string { return "[" + s + "]" })
	if err != nil {
		return "", fmt.Errorf("invalid mssql table: %w", err)
	}
	return quoted, nil
}
