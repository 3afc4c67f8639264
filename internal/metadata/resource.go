package metadata

// Column semantic types understood by the engine.
const (
	TypeString   = "string"
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeFloat    = "float"
	TypeDecimal  = "decimal"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeDatetime = "datetime"
	TypeEnum     = "enum"
	TypeUUID     = "uuid"
)

type Column struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Nullable  bool     `json:"nullable,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Precision int      `json:"precision,omitempty"`
	Scale     int      `json:"scale,omitempty"`
	Default   any      `json:"default,omitempty"`
	Enum      []string `json:"enum,omitempty"`

	// Array marks a native array-of-scalar column; ElemType is the
	// element's semantic type.
	Array    bool   `json:"array,omitempty"`
	ElemType string `json:"elem_type,omitempty"`
}

// IsSearchable reports whether free-text search applies to the column.
func (c Column) IsSearchable() bool {
	return !c.Array && (c.Type == TypeString || c.Type == TypeText)
}

// IsNumeric reports whether the column holds integer/float/decimal values.
func (c Column) IsNumeric() bool {
	return c.Type == TypeInteger || c.Type == TypeFloat || c.Type == TypeDecimal
}

// IsTemporal reports whether the column holds date/datetime values.
func (c Column) IsTemporal() bool {
	return c.Type == TypeDate || c.Type == TypeDatetime
}

// IsEnum reports whether the column carries declared enum values.
func (c Column) IsEnum() bool {
	return c.Type == TypeEnum || len(c.Enum) > 0
}

type PrimaryKey struct {
	Column    string `json:"column"`
	Type      string `json:"type"` // uuid, integer, string
	Generated bool   `json:"generated"`
}

// Resource describes one administrable data type backed by a table.
type Resource struct {
	Name       string     `json:"name"` // canonical singular snake_case name
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Columns    []Column   `json:"columns"`
}

// Column returns a pointer to the column with the given name, or nil.
func (r *Resource) Column(name string) *Column {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i]
		}
	}
	return nil
}

// HasColumn returns true if the resource has a column with the given name.
func (r *Resource) HasColumn(name string) bool {
	return r.Column(name) != nil
}

// ColumnNames returns all column names in declaration order.
func (r *Resource) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// SearchableColumns returns the string/text columns of the resource.
func (r *Resource) SearchableColumns() []Column {
	var cols []Column
	for _, c := range r.Columns {
		if c.IsSearchable() {
			cols = append(cols, c)
		}
	}
	return cols
}
