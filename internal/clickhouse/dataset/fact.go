package dataset

import (
	"fmt"
	"log/slog"
	"strings"
)

// FactDataset is the write-path handle for a single fact table: it knows
// the table's name and column order and turns a FactSchema into the
// PrepareBatch calls WriteBatch issues.
type FactDataset struct {
	log    *slog.Logger
	schema FactSchema

	cols          []string
	uniqueKeyCols []string
}

// NewFactDataset builds a FactDataset for the given schema, validating that
// its unique key columns are a subset of its declared columns.
func NewFactDataset(log *slog.Logger, schema FactSchema) (*FactDataset, error) {
	cols, err := extractColumnNames(schema.Columns())
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	uniqueKeyCols := schema.UniqueKeyColumns()

	colSet := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		colSet[c] = struct{}{}
	}
	for _, uk := range uniqueKeyCols {
		if _, ok := colSet[uk]; !ok {
			return nil, fmt.Errorf("unique key column %q is not a declared column of %q", uk, schema.Name())
		}
	}

	return &FactDataset{
		log:           log,
		schema:        schema,
		cols:          cols,
		uniqueKeyCols: uniqueKeyCols,
	}, nil
}

// TableName returns the physical ClickHouse table name for this fact dataset.
func (f *FactDataset) TableName() string {
	return "fact_" + f.schema.Name()
}

// Columns returns the column names in declaration order.
func (f *FactDataset) Columns() []string {
	return f.cols
}

// UniqueKeyColumns returns the columns the table deduplicates on.
func (f *FactDataset) UniqueKeyColumns() []string {
	return f.uniqueKeyCols
}

// CreateTableDDL renders a CREATE TABLE IF NOT EXISTS statement for this
// fact table. The goose migrations do not call it; they carry their own
// SQL.
func (f *FactDataset) CreateTableDDL() (string, error) {
	colDefs := f.schema.Columns()
	lines := make([]string, 0, len(colDefs))
	for _, def := range colDefs {
		name, chType, err := splitColumnDef(def)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("    %s %s", name, chType))
	}

	engine := "MergeTree"
	orderBy := f.schema.TimeColumn()
	if len(f.uniqueKeyCols) > 0 {
		orderBy = strings.Join(f.uniqueKeyCols, ", ")
	}
	if f.schema.DedupMode() == DedupReplacing {
		engine = fmt.Sprintf("ReplacingMergeTree(%s)", f.schema.DedupVersionColumn())
	}

	partitionClause := ""
	if f.schema.PartitionByTime() {
		partitionClause = fmt.Sprintf("\nPARTITION BY toYYYYMM(%s)", f.schema.TimeColumn())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n%s\n) ENGINE = %s%s\nORDER BY (%s)",
		f.TableName(),
		strings.Join(lines, ",\n"),
		engine,
		partitionClause,
		orderBy,
	), nil
}

// extractColumnNames extracts column names from a slice of "name:type" format strings.
func extractColumnNames(colDefs []string) ([]string, error) {
	names := make([]string, 0, len(colDefs))
	for _, colDef := range colDefs {
		name, err := extractColumnName(colDef)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// extractColumnName extracts the column name from a "name:type" format string.
func extractColumnName(colDef string) (string, error) {
	parts := strings.SplitN(colDef, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid column definition %q: expected format 'name:type'", colDef)
	}
	return strings.TrimSpace(parts[0]), nil
}

// splitColumnDef maps the package's "name:TYPE" column-definition shorthand
// to a ClickHouse column type.
func splitColumnDef(def string) (name string, chType string, err error) {
	name, err = extractColumnName(def)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(def, ":", 2)
	switch strings.ToUpper(strings.TrimSpace(parts[1])) {
	case "VARCHAR":
		chType = "String"
	case "INTEGER":
		chType = "Int32"
	case "BIGINT":
		chType = "Int64"
	case "DOUBLE":
		chType = "Float64"
	case "BOOLEAN":
		chType = "UInt8"
	case "TIMESTAMP":
		chType = "DateTime64(9)"
	default:
		return "", "", fmt.Errorf("unsupported column type %q in %q", parts[1], def)
	}
	return name, chType, nil
}
