// Package errors provides structured error handling for DocWeave.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Validation errors (bad input, empty corpus, over budget)
//   - 2XX: Not-found errors (missing index, checkpoint, repository)
//   - 3XX: Transient errors (timeouts, 5xx, dropped connections)
//   - 4XX: Upstream errors (endpoint reachable but unusable)
//   - 5XX: Internal errors (invariant violations)
//   - 6XX: Partial failures (degraded but useful results)
package errors

// Category classifies errors by propagation semantics.
type Category string

const (
	// CategoryValidation indicates bad input; surfaced to the caller, never retried.
	CategoryValidation Category = "VALIDATION"
	// CategoryNotFound indicates a missing index, checkpoint, or repository.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryTransient indicates timeouts and connection failures; retried with backoff.
	CategoryTransient Category = "TRANSIENT"
	// CategoryUpstream indicates an endpoint that is reachable but unusable.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryInternal indicates invariant violations; fail fast.
	CategoryInternal Category = "INTERNAL"
	// CategoryPartial indicates recoverable degradations recorded as warnings.
	CategoryPartial Category = "PARTIAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort the job.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Validation errors (100-199)
	ErrCodeInvalidRepoURL = "ERR_101_INVALID_REPO_URL"
	ErrCodeEmptyCorpus    = "ERR_102_EMPTY_CORPUS"
	ErrCodeInvalidArchive = "ERR_103_INVALID_ARCHIVE"
	ErrCodeEmptyQuery     = "ERR_104_EMPTY_QUERY"
	ErrCodeConfigInvalid  = "ERR_105_CONFIG_INVALID"
	ErrCodeNoContent      = "ERR_106_NO_CONTENT"
	ErrCodeInvalidPath    = "ERR_107_INVALID_PATH"

	// Not-found errors (200-299)
	ErrCodeIndexNotFound      = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeCheckpointNotFound = "ERR_202_CHECKPOINT_NOT_FOUND"
	ErrCodeRepoNotFound       = "ERR_203_REPO_NOT_FOUND"
	ErrCodeJobNotFound        = "ERR_204_JOB_NOT_FOUND"

	// Transient errors (300-399)
	ErrCodeTimeout          = "ERR_301_TIMEOUT"
	ErrCodeConnectionFailed = "ERR_302_CONNECTION_FAILED"
	ErrCodeRateLimited      = "ERR_303_RATE_LIMITED"
	ErrCodeUpstream5xx      = "ERR_304_UPSTREAM_5XX"

	// Upstream errors (400-499)
	ErrCodeModelNotLoaded    = "ERR_401_MODEL_NOT_LOADED"
	ErrCodeChatModelMissing  = "ERR_402_CHAT_MODEL_MISSING"
	ErrCodeInvalidResponse   = "ERR_403_INVALID_RESPONSE"
	ErrCodeEmbedModelMissing = "ERR_404_EMBED_MODEL_MISSING"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeDimensionMismatch = "ERR_502_DIMENSION_MISMATCH"
	ErrCodeMetadataMismatch  = "ERR_503_METADATA_MISMATCH"
	ErrCodeCheckpointFailed  = "ERR_504_CHECKPOINT_FAILED"
	ErrCodeIndexCorrupt      = "ERR_505_INDEX_CORRUPT"

	// Partial failures (600-699)
	ErrCodeFileSkipped        = "ERR_601_FILE_SKIPPED"
	ErrCodeChapterStub        = "ERR_602_CHAPTER_STUB"
	ErrCodePDFUnavailable     = "ERR_603_PDF_UNAVAILABLE"
	ErrCodeKeywordIndexFailed = "ERR_604_KEYWORD_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the leading digit of the numeric portion
	// (e.g., '1' from "ERR_101_INVALID_REPO_URL").
	switch code[4] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryNotFound
	case '3':
		return CategoryTransient
	case '4':
		return CategoryUpstream
	case '6':
		return CategoryPartial
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeMetadataMismatch, ErrCodeDimensionMismatch:
		return SeverityFatal
	}

	switch categoryFromCode(code) {
	case CategoryTransient, CategoryPartial:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return categoryFromCode(code) == CategoryTransient
}
