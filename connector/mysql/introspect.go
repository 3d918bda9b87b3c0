package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/core/schema"
)

// Introspect reads the tables of the connection's database. Every enum column
// contributes an enum named <Table>_<column>. Indexes MySQL creates to back a
// foreign key carry the constraint's name and are not reported.
func (c *Connector) Introspect(ctx context.Context) (*schema.Schema, error) {
	r := &reader{db: c.DB.DB, database: c.database, tables: make(map[string]*schema.Table)}

	if err := r.readColumns(ctx); err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if err := r.readPrimaryKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to read primary keys: %w", err)
	}
	if err := r.readForeignKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	if err := r.readIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to read indexes: %w", err)
	}

	out := &schema.Schema{Enums: r.enums}
	for _, name := range r.order {
		out.Tables = append(out.Tables, *r.tables[name])
	}
	return out, nil
}

type reader struct {
	db       *sql.DB
	database string
	enums    []schema.Enum
	order    []string
	tables   map[string]*schema.Table
}

func (r *reader) table(name string) *schema.Table {
	t, ok := r.tables[name]
	if !ok {
		t = &schema.Table{Name: name}
		r.tables[name] = t
		r.order = append(r.order, name)
	}
	return t
}

func (r *reader) readColumns(ctx context.Context) error {
	const query = `
		SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.COLUMN_TYPE,
			c.IS_NULLABLE,
			c.COLUMN_DEFAULT,
			c.EXTRA,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	rows, err := r.db.QueryContext(ctx, query, r.database)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, name, dataType, columnType, isNullable, extra string
			columnDefault                                        sql.NullString
			maxLength, precision, scale                          sql.NullInt64
		)
		if err := rows.Scan(&table, &name, &dataType, &columnType, &isNullable, &columnDefault,
			&extra, &maxLength, &precision, &scale); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		col := schema.Column{
			Name:          name,
			Nullable:      isNullable == "YES",
			AutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
		}
		if strings.EqualFold(dataType, "enum") {
			variants, err := parseEnumVariants(columnType)
			if err != nil {
				return fmt.Errorf("failed to read column %s.%s: %w", table, name, err)
			}
			enum := connector.InlineEnumName(table, name)
			r.enums = append(r.enums, schema.Enum{Name: enum, Variants: variants})
			col.Type = schema.EnumType(enum)
		} else {
			col.Type, err = columnTypeOf(dataType, columnType, maxLength, precision, scale)
			if err != nil {
				return fmt.Errorf("failed to read column %s.%s: %w", table, name, err)
			}
		}
		if columnDefault.Valid {
			col.Default = parseDefault(columnDefault.String, extra, col.Type)
		}
		r.table(table).Columns = append(r.table(table).Columns, col)
	}
	return rows.Err()
}

func columnTypeOf(dataType, columnType string, maxLength, precision, scale sql.NullInt64) (schema.ColumnType, error) {
	switch strings.ToLower(dataType) {
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return schema.Boolean(), nil
		}
		return schema.Int(), nil
	case "int", "integer", "mediumint", "smallint":
		return schema.Int(), nil
	case "bigint":
		return schema.BigInt(), nil
	case "double", "float", "real":
		return schema.Float(), nil
	case "decimal", "numeric":
		return schema.Decimal(int(precision.Int64), int(scale.Int64)), nil
	case "varchar", "char":
		return schema.String(int(maxLength.Int64)), nil
	case "longtext", "mediumtext", "text", "tinytext":
		return schema.String(0), nil
	case "datetime", "timestamp", "date":
		return schema.DateTime(), nil
	case "json":
		return schema.JSON(), nil
	case "longblob", "mediumblob", "blob", "tinyblob", "varbinary", "binary":
		return schema.Bytes(), nil
	}
	return schema.ColumnType{}, fmt.Errorf("unsupported column type %q", columnType)
}

// parseEnumVariants reads the variants of a column type such as
// enum('HAPPY','it''s').
func parseEnumVariants(columnType string) ([]string, error) {
	open := strings.Index(columnType, "(")
	if open < 0 || !strings.HasSuffix(columnType, ")") {
		return nil, fmt.Errorf("invalid enum type %q", columnType)
	}
	list := columnType[open+1 : len(columnType)-1]

	var variants []string
	for i := 0; i < len(list); {
		if list[i] != '\'' {
			return nil, fmt.Errorf("invalid enum type %q", columnType)
		}
		var b strings.Builder
		i++
		for {
			if i >= len(list) {
				return nil, fmt.Errorf("invalid enum type %q", columnType)
			}
			if list[i] == '\'' {
				if i+1 < len(list) && list[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				break
			}
			b.WriteByte(list[i])
			i++
		}
		variants = append(variants, b.String())
		if i < len(list) && list[i] == ',' {
			i++
		}
	}
	return variants, nil
}

var charsetLiteral = regexp.MustCompile(`^_[A-Za-z0-9]+\\'(.*)\\'$`)

// parseDefault converts COLUMN_DEFAULT into a schema default. MySQL reports
// literals unquoted; expression defaults are flagged DEFAULT_GENERATED in
// EXTRA, and literal defaults of TEXT, JSON and BLOB columns are expressions
// of the form _utf8mb4\'value\'.
func parseDefault(def, extra string, t schema.ColumnType) *schema.DefaultValue {
	upper := strings.ToUpper(strings.TrimSpace(def))
	if upper == "CURRENT_TIMESTAMP" || strings.HasPrefix(upper, "CURRENT_TIMESTAMP(") || upper == "NOW()" {
		return schema.Expression("now")
	}

	if strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED") {
		expr := strings.TrimSpace(def)
		for strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
			expr = strings.TrimSpace(expr[1 : len(expr)-1])
		}
		if m := charsetLiteral.FindStringSubmatch(expr); m != nil {
			return literalDefault(strings.ReplaceAll(m[1], `\'`, `'`), t)
		}
		if strings.HasSuffix(expr, "()") {
			return schema.Expression(strings.TrimSuffix(expr, "()"))
		}
		return schema.Expression(expr)
	}
	return literalDefault(def, t)
}

func literalDefault(v string, t schema.ColumnType) *schema.DefaultValue {
	switch t.Kind {
	case schema.KindEnum:
		return schema.Variant(v)
	case schema.KindBoolean:
		if schema.IsTrue(v) {
			return schema.Literal("true")
		}
		return schema.Literal("false")
	default:
		return schema.Literal(v)
	}
}

func (r *reader) readPrimaryKeys(ctx context.Context) error {
	const query = `
		SELECT TABLE_NAME, COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	rows, err := r.db.QueryContext(ctx, query, r.database)
	if err != nil {
		return fmt.Errorf("failed to query primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("failed to scan primary key: %w", err)
		}
		if t, ok := r.tables[table]; ok {
			t.PrimaryKey = append(t.PrimaryKey, column)
		}
	}
	return rows.Err()
}

func (r *reader) readForeignKeys(ctx context.Context) error {
	const query = `
		SELECT
			kcu.CONSTRAINT_NAME,
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			rc.DELETE_RULE,
			rc.UPDATE_RULE
		FROM information_schema.KEY_COLUMN_USAGE kcu
		JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
			ON rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA
			AND rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND rc.TABLE_NAME = kcu.TABLE_NAME
		WHERE kcu.TABLE_SCHEMA = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

	rows, err := r.db.QueryContext(ctx, query, r.database)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, column, refTable, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&name, &table, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		t, ok := r.tables[table]
		if !ok {
			continue
		}
		if n := len(t.ForeignKeys); n == 0 || t.ForeignKeys[n-1].Name != name {
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				Name:            name,
				ReferencedTable: refTable,
				OnDelete:        schema.ReferentialAction(onDelete).Normalize(),
				OnUpdate:        schema.ReferentialAction(onUpdate).Normalize(),
			})
		}
		last := &t.ForeignKeys[len(t.ForeignKeys)-1]
		last.Columns = append(last.Columns, column)
		last.ReferencedColumns = append(last.ReferencedColumns, refColumn)
	}
	return rows.Err()
}

// readIndexes must run after readForeignKeys.
func (r *reader) readIndexes(ctx context.Context) error {
	const query = `
		SELECT TABLE_NAME, INDEX_NAME, NON_UNIQUE, COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND INDEX_NAME <> 'PRIMARY' AND COLUMN_NAME IS NOT NULL
		ORDER BY TABLE_NAME, INDEX_NAME, SEQ_IN_INDEX`

	rows, err := r.db.QueryContext(ctx, query, r.database)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, name, column string
		var nonUnique int
		if err := rows.Scan(&table, &name, &nonUnique, &column); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		t, ok := r.tables[table]
		if !ok || backsForeignKey(t, name) {
			continue
		}
		if n := len(t.Indexes); n == 0 || t.Indexes[n-1].Name != name {
			t.Indexes = append(t.Indexes, schema.Index{Name: name, Unique: nonUnique == 0})
		}
		last := &t.Indexes[len(t.Indexes)-1]
		last.Columns = append(last.Columns, column)
	}
	return rows.Err()
}

func backsForeignKey(t *schema.Table, index string) bool {
	for _, fk := range t.ForeignKeys {
		if fk.Name == index {
			return true
		}
	}
	return false
}
