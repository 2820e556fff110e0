package handlers

// Metadata keys set by the relay. They are reserved and should not be used
// for custom headers.
const (
	// MetadataKeyCorrelationID tracks related messages across services.
	MetadataKeyCorrelationID = "correlation_id"

	MetadataKeyCoTUID      = "cot_uid"
	MetadataKeyCoTType     = "cot_type"
	MetadataKeyCoTHow      = "cot_how"
	MetadataKeyCoTCategory = "cot_category"

	// MetadataKeyCoTFiltered marks a document a relay filter dropped. Such
	// messages are acknowledged but never archived.
	MetadataKeyCoTFiltered = "cot_filtered"

	// MetadataKeyTraceID stores distributed tracing ID.
	MetadataKeyTraceID = "trace_id"

	// MetadataKeySpanID stores distributed tracing span ID.
	MetadataKeySpanID = "span_id"
)
