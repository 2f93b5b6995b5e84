package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldBatchID is the local BatchRecord ID
	FieldBatchID = "batch_id"

	// FieldRemoteID is the provider-assigned batch ID
	FieldRemoteID = "remote_id"

	// FieldBatchType is the batch workload type (parsing, cv_embedding, ...)
	FieldBatchType = "batch_type"

	// FieldItemID is the domain item ID (candidate, job, prediction)
	FieldItemID = "item_id"

	// FieldCustomID is the wire-level correlation key
	FieldCustomID = "custom_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldCycleID is the poll/submit cycle ID
	FieldCycleID = "cycle_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
