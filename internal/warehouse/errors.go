package warehouse

import "fmt"

const (
	CodeUnreachable     = "E_WAREHOUSE_UNREACHABLE"
	CodeAuthInvalid     = "E_AUTH_INVALID"
	CodeDatasetNotFound = "E_DATASET_NOT_FOUND"
	CodeTableNotFound   = "E_TABLE_NOT_FOUND"
	CodeQueryFailed     = "E_QUERY_FAILED"
	CodeLoadJobFailed   = "E_LOAD_JOB_FAILED"
	CodeBadPayload      = "E_BAD_PAYLOAD"
	CodeTimeout         = "E_TIMEOUT"
)

// Error wraps warehouse failures with a stable code and a retryability hint.
// Load-job failures are never marked retryable: a blind retry risks a
// duplicate partial load, so re-running is a caller decision.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}
