package logger

// Standard field names for consistent structured logging across refinery.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID    = "run_id"
	FieldStage    = "stage"
	FieldUnit     = "unit"
	FieldKind     = "kind"
	FieldDocument = "document_id"
	FieldVersion  = "version"

	// Loop state
	FieldIteration = "iteration"
	FieldScore     = "score"
	FieldThreshold = "threshold"
	FieldStatus    = "status"

	// Decisions
	FieldDecision = "decision"
	FieldResult   = "result"

	// Timing
	FieldDuration = "duration_seconds"

	// Errors
	FieldError = "error"
)
