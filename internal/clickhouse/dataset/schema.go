package dataset

// DedupMode controls how a fact table's ReplacingMergeTree engine
// deduplicates rows that share the same unique key.
type DedupMode int

const (
	// DedupNone performs no deduplication; every inserted row is kept.
	DedupNone DedupMode = iota
	// DedupReplacing keeps the row with the highest DedupVersionColumn
	// value among rows sharing the same UniqueKeyColumns.
	DedupReplacing
)

// FactSchema defines the structure of a fact dataset for ClickHouse
type FactSchema interface {
	// Name returns the dataset name (e.g., "dz_device_interface_counters")
	Name() string
	// UniqueKeyColumns returns the column definitions for unique key fields
	UniqueKeyColumns() []string
	// Columns returns the column definitions for all fields
	Columns() []string
	// TimeColumn returns the column name for the time column
	TimeColumn() string
	// PartitionByTime returns true if the dataset should be partitioned by time
	PartitionByTime() bool
	// DedupMode returns the dedup mode of the dataset
	DedupMode() DedupMode
	// DedupVersionColumn returns the column name for the dedup version column
	DedupVersionColumn() string
}
