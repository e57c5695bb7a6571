package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrNotQuizAuthor ErrCode = "NOT_QUIZ_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrQuizNotPublished   ErrCode = "QUIZ_NOT_PUBLISHED"
	ErrQuizInvalid        ErrCode = "QUIZ_INVALID"
	ErrSessionNotFinished ErrCode = "SESSION_NOT_FINISHED"
	ErrRoomNotFound       ErrCode = "ROOM_NOT_FOUND"
	ErrRoomClosed         ErrCode = "ROOM_CLOSED"
	ErrInvalidGameMode    ErrCode = "INVALID_GAME_MODE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotQuizAuthor:
		return "You are not the author of this quiz."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."

	case ErrQuizNotPublished:
		return "This quiz has not been published."
	case ErrQuizInvalid:
		return "The quiz content is invalid."
	case ErrSessionNotFinished:
		return "Results are only available once the session has finished."
	case ErrRoomNotFound:
		return "No session exists for this room code."
	case ErrRoomClosed:
		return "This session has already finished."
	case ErrInvalidGameMode:
		return "The game mode is not recognized."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
