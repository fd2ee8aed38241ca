package realtime

type ErrorCode string

const (
	CodeSessionNotFound            ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionCreationFailed      ErrorCode = "SESSION_CREATION_FAILED"
	CodeUserAddFailed              ErrorCode = "USER_ADD_FAILED"
	CodeUserNotFound               ErrorCode = "USER_NOT_FOUND"
	CodeMatchAlreadyActive         ErrorCode = "MATCH_ALREADY_ACTIVE"
	CodeMatchAlreadyFinished       ErrorCode = "MATCH_ALREADY_FINISHED"
	CodeMatchNotActive             ErrorCode = "MATCH_NOT_ACTIVE"
	CodeMatchStartFailed           ErrorCode = "MATCH_START_FAILED"
	CodeMatchFinishFailed          ErrorCode = "MATCH_FINISH_FAILED"
	CodeReadyStatusUpdateFailed    ErrorCode = "READY_STATUS_UPDATE_FAILED"
	CodeSolvedProblemsUpdateFailed ErrorCode = "SOLVED_PROBLEMS_UPDATE_FAILED"
	CodeProblemsNotLoaded          ErrorCode = "PROBLEMS_NOT_LOADED"
	CodeNoFairProblemFound         ErrorCode = "NO_FAIR_PROBLEM_FOUND"
	CodeProblemVerificationFailed  ErrorCode = "PROBLEM_VERIFICATION_FAILED"
	CodeInvalidRequest             ErrorCode = "INVALID_REQUEST"
	CodeInternalError              ErrorCode = "INTERNAL_ERROR"
)

var errorMessages = map[ErrorCode]string{
	CodeSessionNotFound:            "Session not found. Please reconnect.",
	CodeSessionCreationFailed:      "Failed to create the match session.",
	CodeUserAddFailed:              "Failed to join the match session.",
	CodeUserNotFound:               "User is not part of this match.",
	CodeMatchAlreadyActive:         "The match has already started.",
	CodeMatchAlreadyFinished:       "The match is already finished.",
	CodeMatchNotActive:             "The match has not started yet.",
	CodeMatchStartFailed:           "Failed to start the match.",
	CodeMatchFinishFailed:          "Failed to finish the match.",
	CodeReadyStatusUpdateFailed:    "Failed to update ready status.",
	CodeSolvedProblemsUpdateFailed: "Failed to load solved problems for this handle.",
	CodeProblemsNotLoaded:          "Problems are still loading. Please wait.",
	CodeNoFairProblemFound:         "No suitable problem found for both users.",
	CodeProblemVerificationFailed:  "Failed to verify the submission. Try again.",
	CodeInvalidRequest:             "Invalid request.",
	CodeInternalError:              "Internal server error.",
}

// ErrorData is the payload of an ERROR message.
type ErrorData struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Context string    `json:"context,omitempty"`
	Details string    `json:"details,omitempty"`
}

func NewError(code ErrorCode, context, details string) ErrorData {
	msg, ok := errorMessages[code]
	if !ok {
		msg = errorMessages[CodeInternalError]
	}
	return ErrorData{Code: code, Message: msg, Context: context, Details: details}
}
