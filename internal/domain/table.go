package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnType is the logical type of a table column.
type ColumnType string

const (
	ColumnText    ColumnType = "TEXT"
	ColumnInteger ColumnType = "INTEGER"
	ColumnDecimal ColumnType = "DECIMAL"
)

func (t ColumnType) String() string { return string(t) }

type ColumnSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// TableSpec describes an editable table: its columns, the key columns every
// edit must carry, the column the table is partitioned by and the columns the
// table viewer may filter on.
type TableSpec struct {
	Name             string
	Columns          []ColumnSpec
	NecessaryColumns []string
	PartitionColumn  string
	FilterColumns    []string
}

// ColumnType returns the type of column, falling back to text for unknown
// names.
func (t TableSpec) ColumnType(column string) ColumnType {
	for _, c := range t.Columns {
		if c.Name == column {
			return c.Type
		}
	}
	return ColumnText
}

func (t TableSpec) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

func (t TableSpec) IsFilterColumn(column string) bool {
	for _, c := range t.FilterColumns {
		if c == column {
			return true
		}
	}
	return false
}

func (t TableSpec) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// RequiredEditColumns returns the columns an uploaded edit file must carry.
// Updates also need "<key>_old" to locate the row being replaced.
func (t TableSpec) RequiredEditColumns(edit EditType) []string {
	required := append([]string(nil), t.NecessaryColumns...)
	if edit == EditUpdate {
		for _, c := range t.NecessaryColumns {
			required = append(required, OldColumn(c))
		}
	}
	return required
}

// OldColumn names the column holding the previous key value in an update.
func OldColumn(column string) string {
	return column + "_old"
}

// TableCatalog maps table names to their specs.
type TableCatalog map[string]TableSpec

const (
	TableSupplierStock = "supplier_stock"
	TableStore         = "store"
)

// DefaultCatalog is the set of tables the console manages.
func DefaultCatalog() TableCatalog {
	return TableCatalog{
		TableSupplierStock: {
			Name: TableSupplierStock,
			Columns: []ColumnSpec{
				{Name: "part_number", Type: ColumnText},
				{Name: "quantity", Type: ColumnInteger},
				{Name: "updated_date", Type: ColumnText},
				{Name: "supplier", Type: ColumnText},
			},
			NecessaryColumns: []string{"part_number"},
			PartitionColumn:  "supplier",
			FilterColumns:    []string{"part_number", "supplier", "updated_date"},
		},
		TableStore: {
			Name: TableStore,
			Columns: []ColumnSpec{
				{Name: "item_id", Type: ColumnInteger},
				{Name: "custom_label", Type: ColumnText},
				{Name: "title", Type: ColumnText},
				{Name: "current_price", Type: ColumnDecimal},
				{Name: "prefix", Type: ColumnText},
				{Name: "uk_rtg", Type: ColumnText},
				{Name: "fps_wds_dir", Type: ColumnText},
				{Name: "payment_profile_name", Type: ColumnText},
				{Name: "shipping_profile_name", Type: ColumnText},
				{Name: "return_profile_name", Type: ColumnText},
				{Name: "supplier", Type: ColumnText},
				{Name: "ebay_store", Type: ColumnText},
			},
			NecessaryColumns: []string{"item_id"},
			PartitionColumn:  "ebay_store",
			FilterColumns:    []string{"item_id", "custom_label", "supplier", "ebay_store"},
		},
	}
}

func (c TableCatalog) Lookup(name string) (TableSpec, error) {
	spec, ok := c[strings.TrimSpace(name)]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: unknown table %q", ErrValidation, name)
	}
	return spec, nil
}

func (c TableCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EditType is the kind of bulk edit applied to a table.
type EditType string

const (
	EditAppend EditType = "APPEND"
	EditUpdate EditType = "UPDATE"
	EditDelete EditType = "DELETE"
)

func (e EditType) String() string { return string(e) }

func (e EditType) IsValid() bool {
	switch e {
	case EditAppend, EditUpdate, EditDelete:
		return true
	}
	return false
}

func ParseEditTypeFromString(s string) (EditType, error) {
	e := EditType(strings.ToUpper(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid edit type %q", ErrValidation, s)
	}
	return e, nil
}

// Row is one table record keyed by column name.
type Row map[string]any
