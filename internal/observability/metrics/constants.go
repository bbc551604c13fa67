package metrics

// Operation label values.
const (
	// OpListTables is a table catalogue lookup.
	OpListTables = "list_tables"
	// OpListColumns is a column-name lookup on a sampled table.
	OpListColumns = "list_columns"
	// OpLoadQuery is a query whose result replaces the current table.
	OpLoadQuery = "load_query"
	// OpNormalize is a datetime normalization pass.
	OpNormalize = "normalize_datetimes"
	// OpExport is a Parquet export.
	OpExport = "export_parquet"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart1KB is the starting bucket for byte-size histograms.
	BucketStart1KB = 1024.0
	// BucketFactor2 is the exponential growth factor for duration buckets.
	BucketFactor2 = 2
	// BucketFactor4 is the exponential growth factor for size buckets.
	BucketFactor4 = 4
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)
