// pkg/model/metadata.go
package model

import "strings"

// Record is one row of a record set, keyed by field name
type Record map[string]Value

// Column describes one field of a record set
type Column struct {
	Name     string // Field name, the join key between training and inference
	Kind     Kind   // Logical type
	Nullable bool   // Whether missing values were observed
}

// Dataset is an ordered record set. Column order is significant and is
// preserved by every transformation.
type Dataset struct {
	Source  string   // Where the rows were loaded from (path or table)
	Columns []Column // Column definitions, in order
	Rows    []Record // Row values
}

// NewDataset creates an empty dataset with the given columns
func NewDataset(source string, columns []Column) *Dataset {
	return &Dataset{
		Source:  source,
		Columns: columns,
		Rows:    make([]Record, 0),
	}
}

// Len returns the number of rows
func (ds *Dataset) Len() int {
	return len(ds.Rows)
}

// ColumnNames returns the ordered column names
func (ds *Dataset) ColumnNames() []string {
	names := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of a column, or -1 if absent
func (ds *Dataset) ColumnIndex(name string) int {
	for i, col := range ds.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the dataset has a column with this exact name
func (ds *Dataset) HasColumn(name string) bool {
	return ds.ColumnIndex(name) >= 0
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (ds *Dataset) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range ds.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &ds.Columns[i]
		}
	}
	return nil
}

// Values returns the column values in row order. Rows without the field
// yield a missing value of the column kind.
func (ds *Dataset) Values(name string) []Value {
	kind := KindText
	if col := ds.GetColumnByName(name); col != nil {
		kind = col.Kind
	}
	values := make([]Value, len(ds.Rows))
	for i, row := range ds.Rows {
		v, ok := row[name]
		if !ok {
			v = Missing(kind)
		}
		values[i] = v
	}
	return values
}

// DropColumn removes a column and its values from every row
func (ds *Dataset) DropColumn(name string) bool {
	idx := ds.ColumnIndex(name)
	if idx < 0 {
		return false
	}
	ds.Columns = append(ds.Columns[:idx:idx], ds.Columns[idx+1:]...)
	for _, row := range ds.Rows {
		delete(row, name)
	}
	return true
}

// RenameColumn renames a column in place, keeping its position
func (ds *Dataset) RenameColumn(from, to string) {
	idx := ds.ColumnIndex(from)
	if idx < 0 || from == to {
		return
	}
	ds.Columns[idx].Name = to
	for _, row := range ds.Rows {
		if v, ok := row[from]; ok {
			delete(row, from)
			row[to] = v
		}
	}
}

// Clone returns a deep copy so callers can transform without touching the input
func (ds *Dataset) Clone() *Dataset {
	out := &Dataset{
		Source:  ds.Source,
		Columns: append([]Column(nil), ds.Columns...),
		Rows:    make([]Record, len(ds.Rows)),
	}
	for i, row := range ds.Rows {
		cp := make(Record, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// IsIdentifierColumn reports whether a column only identifies a customer and
// carries no predictive signal
func (col *Column) IsIdentifierColumn() bool {
	name := normalizeColumnName(col.Name)
	return name == "customerid" || name == "customer_id" || name == "id"
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
