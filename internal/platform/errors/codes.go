// Package errors provides coded domain errors shared by the audit engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors. Commands treat these as a no-op with an explanation.
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeInvalidTimeRange Code = "INVALID_TIME_RANGE"
	CodeInvalidBatchSize Code = "INVALID_BATCH_SIZE"
	CodeInvalidLimit     Code = "INVALID_LIMIT"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeAuditEntryExists Code = "AUDIT_ENTRY_EXISTS"

	// Delivery errors
	CodeDeliveryFailed      Code = "DELIVERY_FAILED"
	CodeChannelUnconfigured Code = "CHANNEL_UNCONFIGURED"
)

// IsValidation reports whether the code describes rejected caller input.
func (c Code) IsValidation() bool {
	switch c {
	case CodeInvalidArgument, CodeInvalidTimeRange, CodeInvalidBatchSize, CodeInvalidLimit:
		return true
	default:
		return false
	}
}
