package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"
	ErrNotEntitled     ErrCode = "NOT_ENTITLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// ─── Exams ─────────────────────────────────────────────────────────
	ErrActiveExamExists     ErrCode = "ACTIVE_EXAM_EXISTS"
	ErrNoActiveExam         ErrCode = "NO_ACTIVE_EXAM"
	ErrAnswerCountMismatch  ErrCode = "ANSWER_COUNT_MISMATCH"
	ErrInvalidAnswer        ErrCode = "INVALID_ANSWER"
	ErrExamAlreadySubmitted ErrCode = "EXAM_ALREADY_SUBMITTED"
	ErrExamNotFinished      ErrCode = "EXAM_NOT_FINISHED"
	ErrNotEnoughQuestions   ErrCode = "NOT_ENOUGH_QUESTIONS"

	// ─── Simulations ───────────────────────────────────────────────────
	ErrActiveSimulationExists ErrCode = "ACTIVE_SIMULATION_EXISTS"
	ErrNoActiveSimulation     ErrCode = "NO_ACTIVE_SIMULATION"
	ErrSimulationExpired      ErrCode = "SIMULATION_EXPIRED"
	ErrSimulationCompleted    ErrCode = "SIMULATION_COMPLETED"
	ErrSimulationNotFinished  ErrCode = "SIMULATION_NOT_FINISHED"
	ErrRecoveryTokenExpired   ErrCode = "RECOVERY_TOKEN_EXPIRED"
	ErrNotCurrentQuestion     ErrCode = "NOT_CURRENT_QUESTION"
	ErrReviewNotAllowed       ErrCode = "REVIEW_NOT_ALLOWED"
	ErrSkipNotAllowed         ErrCode = "SKIP_NOT_ALLOWED"
	ErrQuestionTimeUp         ErrCode = "QUESTION_TIME_UP"
	ErrUnknownQuestion        ErrCode = "UNKNOWN_QUESTION"

	// ─── Payments ──────────────────────────────────────────────────────
	ErrUnknownPackage       ErrCode = "UNKNOWN_PACKAGE"
	ErrPaymentNotRetryable  ErrCode = "PAYMENT_NOT_RETRYABLE"
	ErrPaymentNotRefundable ErrCode = "PAYMENT_NOT_REFUNDABLE"
	ErrInvalidSignature     ErrCode = "INVALID_SIGNATURE"
	ErrGatewayUnavailable   ErrCode = "GATEWAY_UNAVAILABLE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrNotEntitled:
		return "An active access package is required. Please purchase one to continue."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "This item is still referenced by other records and cannot be deleted."

	// ─── Exams ─────────────────────────────────────────────────────────
	case ErrActiveExamExists:
		return "You already have an exam in progress. Resume it instead of starting a new one."
	case ErrNoActiveExam:
		return "You have no exam in progress."
	case ErrAnswerCountMismatch:
		return "The number of answers does not match the number of questions."
	case ErrInvalidAnswer:
		return "The answer is not one of the question's options."
	case ErrExamAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrExamNotFinished:
		return "This exam has not been submitted yet."
	case ErrNotEnoughQuestions:
		return "The question bank does not hold enough questions."

	// ─── Simulations ───────────────────────────────────────────────────
	case ErrActiveSimulationExists:
		return "You already have a practice session in progress. Resume it instead of starting a new one."
	case ErrNoActiveSimulation:
		return "You have no practice session in progress."
	case ErrSimulationExpired:
		return "This practice session expired after a period of inactivity."
	case ErrSimulationCompleted:
		return "This practice session is already completed."
	case ErrSimulationNotFinished:
		return "Answer review is available once the practice session is completed."
	case ErrRecoveryTokenExpired:
		return "This recovery token is no longer valid. Start a new practice session."
	case ErrNotCurrentQuestion:
		return "That question is not the current question of the session."
	case ErrReviewNotAllowed:
		return "This session does not allow changing an answer."
	case ErrSkipNotAllowed:
		return "This session does not allow skipping questions."
	case ErrQuestionTimeUp:
		return "Time for this question is up."
	case ErrUnknownQuestion:
		return "One or more questions do not exist."

	// ─── Payments ──────────────────────────────────────────────────────
	case ErrUnknownPackage:
		return "Unknown package."
	case ErrPaymentNotRetryable:
		return "Only failed or abandoned payments can be retried."
	case ErrPaymentNotRefundable:
		return "Only completed payments can be refunded."
	case ErrInvalidSignature:
		return "Invalid webhook signature."
	case ErrGatewayUnavailable:
		return "The payment provider could not be reached. Please try again."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrServiceUnavailable:
		return "The service is temporarily unavailable."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
