package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these rather
// than on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeTranscriptFailed = "transcript_failed"
	ErrCodeAttachmentFailed = "attachment_failed"
)
