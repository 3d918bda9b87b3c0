// Package schemafile reads and writes desired schemas as YAML or JSON
// documents.
//
//	enums:
//	  - name: CatMood
//	    variants: [HAPPY, HUNGRY]
//	tables:
//	  - name: Cat
//	    primaryKey: [id]
//	    columns:
//	      - name: id
//	        type: Int
//	        autoincrement: true
//	      - name: mood
//	        type: Enum(CatMood)
//	        default: {enum: HAPPY}
//	      - name: bornAt
//	        type: DateTime
//	        default: {expression: now}
//	    indexes:
//	      - columns: [mood]
//	    foreignKeys:
//	      - columns: [ownerId]
//	        referencedTable: Owner
//	        referencedColumns: [id]
//	        onDelete: CASCADE
//
// JSON documents use the same field names; YAML decoding accepts both.
package schemafile

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stokaro/schemapush/core/schema"
)

// Document is the file form of a schema.
type Document struct {
	Enums  []Enum  `json:"enums,omitempty" yaml:"enums,omitempty"`
	Tables []Table `json:"tables" yaml:"tables"`
}

type Enum struct {
	Name     string   `json:"name" yaml:"name"`
	Variants []string `json:"variants" yaml:"variants,flow"`
}

type Table struct {
	Name        string       `json:"name" yaml:"name"`
	PrimaryKey  []string     `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty,flow"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	Indexes     []Index      `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

type Column struct {
	Name          string   `json:"name" yaml:"name"`
	Type          string   `json:"type" yaml:"type"`
	Nullable      bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	AutoIncrement bool     `json:"autoincrement,omitempty" yaml:"autoincrement,omitempty"`
	Default       *Default `json:"default,omitempty" yaml:"default,omitempty"`
}

// Default sets exactly one of its fields.
type Default struct {
	Value      *string `json:"value,omitempty" yaml:"value,omitempty"`
	Enum       string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Expression string  `json:"expression,omitempty" yaml:"expression,omitempty"`
}

type Index struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns []string `json:"columns" yaml:"columns,flow"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	Where   string   `json:"where,omitempty" yaml:"where,omitempty"`
}

type ForeignKey struct {
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns           []string `json:"columns" yaml:"columns,flow"`
	ReferencedTable   string   `json:"referencedTable" yaml:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns" yaml:"referencedColumns,flow"`
	OnDelete          string   `json:"onDelete,omitempty" yaml:"onDelete,omitempty"`
	OnUpdate          string   `json:"onUpdate,omitempty" yaml:"onUpdate,omitempty"`
}

// Load reads and validates the schema file at path.
func Load(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML or JSON schema document.
func Parse(data []byte) (*schema.Schema, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}
	return doc.Schema()
}

// Schema converts the document and validates the result.
func (d *Document) Schema() (*schema.Schema, error) {
	s := &schema.Schema{}
	for _, e := range d.Enums {
		s.Enums = append(s.Enums, schema.Enum{Name: e.Name, Variants: e.Variants})
	}
	for _, dt := range d.Tables {
		t := schema.Table{Name: dt.Name, PrimaryKey: dt.PrimaryKey}
		for _, dc := range dt.Columns {
			typ, err := schema.ParseColumnType(dc.Type)
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", dt.Name, dc.Name, err)
			}
			def, err := dc.Default.value()
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", dt.Name, dc.Name, err)
			}
			t.Columns = append(t.Columns, schema.Column{
				Name:          dc.Name,
				Type:          typ,
				Nullable:      dc.Nullable,
				AutoIncrement: dc.AutoIncrement,
				Default:       def,
			})
		}
		for _, di := range dt.Indexes {
			t.Indexes = append(t.Indexes, schema.Index(di))
		}
		for _, df := range dt.ForeignKeys {
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				Name:              df.Name,
				Columns:           df.Columns,
				ReferencedTable:   df.ReferencedTable,
				ReferencedColumns: df.ReferencedColumns,
				OnDelete:          actionOf(df.OnDelete),
				OnUpdate:          actionOf(df.OnUpdate),
			})
		}
		s.Tables = append(s.Tables, t)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func actionOf(s string) schema.ReferentialAction {
	if s == "" {
		return ""
	}
	return schema.ReferentialAction(s).Normalize()
}

func (d *Default) value() (*schema.DefaultValue, error) {
	if d == nil {
		return nil, nil
	}
	set := 0
	var out *schema.DefaultValue
	if d.Value != nil {
		set++
		out = schema.Literal(*d.Value)
	}
	if d.Enum != "" {
		set++
		out = schema.Variant(d.Enum)
	}
	if d.Expression != "" {
		set++
		out = schema.Expression(d.Expression)
	}
	if set != 1 {
		return nil, fmt.Errorf("default must set exactly one of value, enum or expression")
	}
	return out, nil
}

// FromSchema converts a schema into its file form.
func FromSchema(s *schema.Schema) *Document {
	doc := &Document{Tables: []Table{}}
	for _, e := range s.Enums {
		doc.Enums = append(doc.Enums, Enum{Name: e.Name, Variants: e.Variants})
	}
	for _, t := range s.Tables {
		dt := Table{Name: t.Name, PrimaryKey: t.PrimaryKey}
		for _, c := range t.Columns {
			dt.Columns = append(dt.Columns, Column{
				Name:          c.Name,
				Type:          c.Type.String(),
				Nullable:      c.Nullable,
				AutoIncrement: c.AutoIncrement,
				Default:       defaultOf(c.Default),
			})
		}
		for _, idx := range t.Indexes {
			dt.Indexes = append(dt.Indexes, Index(idx))
		}
		for _, fk := range t.ForeignKeys {
			dt.ForeignKeys = append(dt.ForeignKeys, ForeignKey{
				Name:              fk.Name,
				Columns:           fk.Columns,
				ReferencedTable:   fk.ReferencedTable,
				ReferencedColumns: fk.ReferencedColumns,
				OnDelete:          string(fk.OnDelete),
				OnUpdate:          string(fk.OnUpdate),
			})
		}
		doc.Tables = append(doc.Tables, dt)
	}
	return doc
}

func defaultOf(d *schema.DefaultValue) *Default {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case schema.DefaultEnumVariant:
		return &Default{Enum: d.Value}
	case schema.DefaultExpression:
		return &Default{Expression: d.Value}
	default:
		v := d.Value
		return &Default{Value: &v}
	}
}

// Marshal encodes a schema as a YAML document.
func Marshal(s *schema.Schema) ([]byte, error) {
	data, err := yaml.Marshal(FromSchema(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}

// MarshalJSON encodes a schema as an indented JSON document.
func MarshalJSON(s *schema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(FromSchema(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return data, nil
}
