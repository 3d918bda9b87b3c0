package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	rsqlite "github.com/stokaro/schemapush/core/renderer/dialects/sqlite"
	"github.com/stokaro/schemapush/core/schema"
)

// Introspect reads the tables of the main database. The pool holds a single
// connection, so every query is read to the end before the next one starts.
func (c *Connector) Introspect(ctx context.Context) (*schema.Schema, error) {
	r := &reader{db: c.DB.DB}

	tables, err := r.tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	out := &schema.Schema{}
	for _, mt := range tables {
		t, err := r.table(ctx, mt)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", mt.name, err)
		}
		out.Tables = append(out.Tables, *t)
	}
	return out, nil
}

type reader struct {
	db *sql.DB
}

type masterTable struct {
	name string
	sql  string
}

func (r *reader) tables(ctx context.Context) ([]masterTable, error) {
	const query = `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []masterTable
	for rows.Next() {
		var t masterTable
		if err := rows.Scan(&t.name, &t.sql); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *reader) table(ctx context.Context, mt masterTable) (*schema.Table, error) {
	t := &schema.Table{Name: mt.name}
	if err := r.readColumns(ctx, t, mt.sql); err != nil {
		return nil, err
	}
	if err := r.readForeignKeys(ctx, t); err != nil {
		return nil, err
	}
	if err := r.readIndexes(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *reader) readColumns(ctx context.Context, t *schema.Table, tableSQL string) error {
	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info("+rsqlite.QuoteIdentifier(t.Name)+")")
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	pkPos := make(map[string]int)
	var integerPK string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typeName   string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		typ, err := columnType(typeName)
		if err != nil {
			return fmt.Errorf("failed to read column %s: %w", name, err)
		}
		col := schema.Column{Name: name, Type: typ, Nullable: notNull == 0 && pk == 0}
		if defaultValue.Valid {
			col.Default = parseDefault(defaultValue.String, typ)
		}
		if pk > 0 {
			pkPos[name] = pk
			if strings.EqualFold(typeName, "INTEGER") {
				integerPK = name
			}
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	t.PrimaryKey = make([]string, len(pkPos))
	for name, pos := range pkPos {
		t.PrimaryKey[pos-1] = name
	}
	if len(t.PrimaryKey) == 0 {
		t.PrimaryKey = nil
	}
	// AUTOINCREMENT is only accepted on an INTEGER PRIMARY KEY column.
	if len(pkPos) == 1 && integerPK != "" && strings.Contains(strings.ToUpper(tableSQL), "AUTOINCREMENT") {
		t.Column(integerPK).AutoIncrement = true
	}
	return nil
}

var typePattern = regexp.MustCompile(`^([A-Za-z ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)

// columnType maps the declared type of a column back to a logical type.
func columnType(declared string) (schema.ColumnType, error) {
	m := typePattern.FindStringSubmatch(strings.TrimSpace(declared))
	if m == nil {
		return schema.ColumnType{}, fmt.Errorf("unsupported column type %q", declared)
	}
	first, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])

	switch strings.ToUpper(m[1]) {
	case "INTEGER", "INT", "SMALLINT", "MEDIUMINT":
		return schema.Int(), nil
	case "BIGINT":
		return schema.BigInt(), nil
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return schema.Float(), nil
	case "DECIMAL", "NUMERIC":
		return schema.Decimal(first, second), nil
	case "VARCHAR", "CHARACTER VARYING", "CHAR", "CHARACTER":
		return schema.String(first), nil
	case "TEXT", "CLOB":
		return schema.String(0), nil
	case "BOOLEAN":
		return schema.Boolean(), nil
	case "DATETIME", "TIMESTAMP", "DATE":
		return schema.DateTime(), nil
	case "JSON":
		return schema.JSON(), nil
	case "BLOB":
		return schema.Bytes(), nil
	}
	return schema.ColumnType{}, fmt.Errorf("unsupported column type %q", declared)
}

// parseDefault converts dflt_value, the default as written in CREATE TABLE,
// into a schema default.
func parseDefault(def string, t schema.ColumnType) *schema.DefaultValue {
	def = strings.TrimSpace(def)
	upper := strings.ToUpper(def)
	switch {
	case upper == "CURRENT_TIMESTAMP":
		return schema.Expression("now")
	case len(def) >= 2 && def[0] == '\'' && def[len(def)-1] == '\'':
		return schema.Literal(strings.ReplaceAll(def[1:len(def)-1], "''", "'"))
	case t.Kind == schema.KindBoolean:
		if schema.IsTrue(def) {
			return schema.Literal("true")
		}
		return schema.Literal("false")
	}

	inner := def
	for strings.HasPrefix(inner, "(") && strings.HasSuffix(inner, ")") {
		inner = strings.TrimSpace(inner[1 : len(inner)-1])
	}
	if strings.HasSuffix(inner, "()") {
		return schema.Expression(strings.TrimSuffix(inner, "()"))
	}
	if _, err := strconv.ParseFloat(inner, 64); err == nil {
		return schema.Literal(inner)
	}
	return schema.Expression(def)
}

type foreignKeyRow struct {
	id, seq            int
	table, from        string
	to                 sql.NullString
	onUpdate, onDelete string
}

func (r *reader) readForeignKeys(ctx context.Context, t *schema.Table) error {
	rows, err := r.db.QueryContext(ctx, "PRAGMA foreign_key_list("+rsqlite.QuoteIdentifier(t.Name)+")")
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fkRows []foreignKeyRow
	for rows.Next() {
		var fr foreignKeyRow
		var match string
		if err := rows.Scan(&fr.id, &fr.seq, &fr.table, &fr.from, &fr.to, &fr.onUpdate, &fr.onDelete, &match); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fkRows = append(fkRows, fr)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// The pragma lists constraints in reverse declaration order.
	byID := make(map[int]int)
	var order []int
	for _, fr := range fkRows {
		if _, ok := byID[fr.id]; !ok {
			byID[fr.id] = len(order)
			order = append(order, fr.id)
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				ReferencedTable: fr.table,
				OnDelete:        schema.ReferentialAction(fr.onDelete).Normalize(),
				OnUpdate:        schema.ReferentialAction(fr.onUpdate).Normalize(),
			})
		}
		fk := &t.ForeignKeys[byID[fr.id]]
		fk.Columns = append(fk.Columns, fr.from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, fr.to.String)
	}
	for i, j := 0, len(t.ForeignKeys)-1; i < j; i, j = i+1, j-1 {
		t.ForeignKeys[i], t.ForeignKeys[j] = t.ForeignKeys[j], t.ForeignKeys[i]
	}
	return nil
}

type indexRow struct {
	name    string
	unique  bool
	partial bool
}

// readIndexes reads the indexes created with CREATE INDEX. Indexes SQLite
// creates for PRIMARY KEY and UNIQUE constraints are skipped.
func (r *reader) readIndexes(ctx context.Context, t *schema.Table) error {
	rows, err := r.db.QueryContext(ctx, "PRAGMA index_list("+rsqlite.QuoteIdentifier(t.Name)+")")
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	var list []indexRow
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan index: %w", err)
		}
		if origin != "c" {
			continue
		}
		list = append(list, indexRow{name: name, unique: unique == 1, partial: partial == 1})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// index_list returns the newest index first.
	for i := len(list) - 1; i >= 0; i-- {
		idx := schema.Index{Name: list[i].name, Unique: list[i].unique}
		if idx.Columns, err = r.indexColumns(ctx, idx.Name); err != nil {
			return err
		}
		if len(idx.Columns) == 0 {
			continue
		}
		if list[i].partial {
			if idx.Where, err = r.indexPredicate(ctx, idx.Name); err != nil {
				return err
			}
		}
		t.Indexes = append(t.Indexes, idx)
	}
	return nil
}

func (r *reader) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "PRAGMA index_info("+rsqlite.QuoteIdentifier(index)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of index %s: %w", index, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan column of index %s: %w", index, err)
		}
		// Expression columns have no name.
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

func (r *reader) indexPredicate(ctx context.Context, index string) (string, error) {
	var stmt string
	err := r.db.QueryRowContext(ctx, "SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?", index).Scan(&stmt)
	if err != nil {
		return "", fmt.Errorf("failed to read definition of index %s: %w", index, err)
	}
	return wherePredicate(stmt), nil
}

// wherePredicate returns the text after the last WHERE keyword of a CREATE
// INDEX statement.
func wherePredicate(stmt string) string {
	i := strings.LastIndex(strings.ToUpper(stmt), " WHERE ")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(stmt[i+len(" WHERE "):])
}
