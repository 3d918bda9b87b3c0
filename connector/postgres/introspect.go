package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/stokaro/schemapush/core/schema"
)

// Introspect reads the tables and enums of the connection's schema.
func (c *Connector) Introspect(ctx context.Context) (*schema.Schema, error) {
	r := &reader{db: c.DB.DB, schema: c.schema, tables: make(map[string]*schema.Table)}

	if err := r.readEnums(ctx); err != nil {
		return nil, fmt.Errorf("failed to read enums: %w", err)
	}
	if err := r.readColumns(ctx); err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if err := r.readPrimaryKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to read primary keys: %w", err)
	}
	if err := r.readIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to read indexes: %w", err)
	}
	if err := r.readForeignKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}

	out := &schema.Schema{Enums: r.enums}
	for _, name := range r.order {
		out.Tables = append(out.Tables, *r.tables[name])
	}
	sortTables(out)
	return out, nil
}

type reader struct {
	db     *sql.DB
	schema string
	enums  []schema.Enum
	order  []string
	tables map[string]*schema.Table
}

func (r *reader) readEnums(ctx context.Context) error {
	const query = `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder`

	rows, err := r.db.QueryContext(ctx, query, r.schema)
	if err != nil {
		return fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, variant string
		if err := rows.Scan(&name, &variant); err != nil {
			return fmt.Errorf("failed to scan enum: %w", err)
		}
		if n := len(r.enums); n == 0 || r.enums[n-1].Name != name {
			r.enums = append(r.enums, schema.Enum{Name: name})
		}
		last := &r.enums[len(r.enums)-1]
		last.Variants = append(last.Variants, variant)
	}
	return rows.Err()
}

func (r *reader) isEnum(name string) bool {
	for _, e := range r.enums {
		if e.Name == name {
			return true
		}
	}
	return false
}

// readColumns reads the columns of every base table, which also defines the
// set of tables.
func (r *reader) readColumns(ctx context.Context) error {
	const query = `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.column_default,
			c.is_identity,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`

	rows, err := r.db.QueryContext(ctx, query, r.schema)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, name, dataType, udtName, isNullable, isIdentity string
			columnDefault                                           sql.NullString
			maxLength, precision, scale                             sql.NullInt64
		)
		if err := rows.Scan(&table, &name, &dataType, &udtName, &isNullable, &columnDefault,
			&isIdentity, &maxLength, &precision, &scale); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		typ, err := r.columnType(dataType, udtName, maxLength, precision, scale)
		if err != nil {
			return fmt.Errorf("failed to read column %s.%s: %w", table, name, err)
		}
		col := schema.Column{
			Name:          name,
			Type:          typ,
			Nullable:      isNullable == "YES",
			AutoIncrement: isIdentity == "YES",
		}
		if columnDefault.Valid {
			if isSequenceDefault(columnDefault.String) {
				col.AutoIncrement = true
			} else {
				col.Default = parseDefault(columnDefault.String, typ)
			}
		}
		r.table(table).Columns = append(r.table(table).Columns, col)
	}
	return rows.Err()
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

func (r *reader) columnType(dataType, udtName string, maxLength, precision, scale sql.NullInt64) (schema.ColumnType, error) {
	switch dataType {
	case "integer", "smallint":
		return schema.Int(), nil
	case "bigint":
		return schema.BigInt(), nil
	case "double precision", "real":
		return schema.Float(), nil
	case "numeric":
		if !precision.Valid {
			return schema.Decimal(0, 0), nil
		}
		return schema.Decimal(int(precision.Int64), int(scale.Int64)), nil
	case "character varying", "character":
		return schema.String(int(maxLength.Int64)), nil
	case "text":
		return schema.String(0), nil
	case "boolean":
		return schema.Boolean(), nil
	case "timestamp without time zone", "timestamp with time zone", "date":
		return schema.DateTime(), nil
	case "jsonb", "json":
		return schema.JSON(), nil
	case "bytea":
		return schema.Bytes(), nil
	case "USER-DEFINED":
		if r.isEnum(udtName) {
			return schema.EnumType(udtName), nil
		}
	}
	return schema.ColumnType{}, fmt.Errorf("unsupported column type %q", udtName)
}

func isSequenceDefault(def string) bool {
	return strings.HasPrefix(def, "nextval(")
}

// parseDefault converts a column default as PostgreSQL reports it, e.g.
// 'HAPPY'::"CatMood", CURRENT_TIMESTAMP or 42, into a schema default.
func parseDefault(def string, t schema.ColumnType) *schema.DefaultValue {
	def = strings.TrimSpace(def)
	for strings.HasPrefix(def, "(") && strings.HasSuffix(def, ")") {
		def = strings.TrimSpace(def[1 : len(def)-1])
	}

	if strings.HasPrefix(def, "'") {
		end := closingQuote(def)
		if end > 0 {
			value := strings.ReplaceAll(def[1:end], "''", "'")
			if t.IsEnum() {
				return schema.Variant(value)
			}
			return schema.Literal(value)
		}
	}

	lower := strings.ToLower(def)
	switch {
	case lower == "current_timestamp" || strings.HasPrefix(lower, "current_timestamp(") || lower == "now()":
		return schema.Expression("now")
	case lower == "true" || lower == "false":
		return schema.Literal(lower)
	case strings.HasSuffix(def, "()"):
		return schema.Expression(strings.TrimSuffix(def, "()"))
	}
	// Numbers are reported without a cast; anything else is kept verbatim.
	if t.Kind != schema.KindString && strings.IndexFunc(def, isNotNumeric) < 0 {
		return schema.Literal(def)
	}
	return schema.Expression(def)
}

// closingQuote returns the index of the quote closing the literal opened at
// def[0], skipping doubled quotes.
func closingQuote(def string) int {
	for i := 1; i < len(def); i++ {
		if def[i] != '\'' {
			continue
		}
		if i+1 < len(def) && def[i+1] == '\'' {
			i++
			continue
		}
		return i
	}
	return -1
}

func isNotNumeric(r rune) bool {
	return (r < '0' || r > '9') && r != '-' && r != '.' && r != 'e' && r != 'E' && r != '+'
}

func (r *reader) readPrimaryKeys(ctx context.Context) error {
	const query = `
		SELECT t.relname, a.attname
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(c.conkey::smallint[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1 AND c.contype = 'p'
		ORDER BY t.relname, k.ord`

	rows, err := r.db.QueryContext(ctx, query, r.schema)
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

// readIndexes reads every index except primary keys. Expression columns are
// skipped; the predicate of a partial index is reported as pg_get_expr prints
// it.
func (r *reader) readIndexes(ctx context.Context) error {
	const query = `
		SELECT
			t.relname,
			i.relname,
			ix.indisunique,
			a.attname,
			COALESCE(pg_get_expr(ix.indpred, ix.indrelid), '')
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(ix.indkey::smallint[]) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1 AND NOT ix.indisprimary AND t.relkind = 'r'
		ORDER BY t.relname, i.relname, k.ord`

	rows, err := r.db.QueryContext(ctx, query, r.schema)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, name, column, where string
		var unique bool
		if err := rows.Scan(&table, &name, &unique, &column, &where); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		t, ok := r.tables[table]
		if !ok {
			continue
		}
		if n := len(t.Indexes); n == 0 || t.Indexes[n-1].Name != name {
			t.Indexes = append(t.Indexes, schema.Index{Name: name, Unique: unique, Where: where})
		}
		last := &t.Indexes[len(t.Indexes)-1]
		last.Columns = append(last.Columns, column)
	}
	return rows.Err()
}

var referentialActions = map[string]schema.ReferentialAction{
	"a": schema.NoAction,
	"r": schema.Restrict,
	"c": schema.Cascade,
	"n": schema.SetNull,
	"d": schema.SetDefault,
}

func (r *reader) readForeignKeys(ctx context.Context) error {
	const query = `
		SELECT
			c.conname,
			t.relname,
			rt.relname,
			a.attname,
			ra.attname,
			c.confdeltype::text,
			c.confupdtype::text
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_class rt ON rt.oid = c.confrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(c.conkey::smallint[], c.confkey::smallint[]) WITH ORDINALITY AS k(attnum, refattnum, ord)
		JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute ra ON ra.attrelid = c.confrelid AND ra.attnum = k.refattnum
		WHERE n.nspname = $1 AND c.contype = 'f'
		ORDER BY t.relname, c.conname, k.ord`

	rows, err := r.db.QueryContext(ctx, query, r.schema)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, refTable, column, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&name, &table, &refTable, &column, &refColumn, &onDelete, &onUpdate); err != nil {
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
				OnDelete:        referentialActions[onDelete],
				OnUpdate:        referentialActions[onUpdate],
			})
		}
		last := &t.ForeignKeys[len(t.ForeignKeys)-1]
		last.Columns = append(last.Columns, column)
		last.ReferencedColumns = append(last.ReferencedColumns, refColumn)
	}
	return rows.Err()
}

// sortTables orders tables by name; information_schema already returns them
// sorted, this keeps the result independent of collation.
func sortTables(s *schema.Schema) {
	sort.Slice(s.Tables, func(i, j int) bool { return s.Tables[i].Name < s.Tables[j].Name })
}
