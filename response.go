package accounts

// Envelope is the uniform response body every operation returns: a status
// flag, a human-readable message, and an optional data payload. The HTTP
// status lives alongside but never serializes into the body.
type Envelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Code    int            `json:"-"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// SuccessResponse builds a success envelope with HTTP 200.
func SuccessResponse(message string, data map[string]any) Envelope {
	return Envelope{
		Status:  statusSuccess,
		Message: message,
		Data:    data,
		Code:    200,
	}
}

// ErrorResponse builds an error envelope. A zero code defaults to 200: most
// business failures here are reported in-band with the envelope status, not
// through the transport status.
func ErrorResponse(message string, code int) Envelope {
	if code == 0 {
		code = 200
	}
	return Envelope{
		Status:  statusError,
		Message: message,
		Code:    code,
	}
}

// SessionTokenInvalidResponse is the single envelope used for any session
// token failure.
func SessionTokenInvalidResponse() Envelope {
	return ErrorResponse(MsgCredentialsExpired, 401)
}

// IsSuccess reports whether the envelope carries a success status.
func (e Envelope) IsSuccess() bool {
	return e.Status == statusSuccess
}
