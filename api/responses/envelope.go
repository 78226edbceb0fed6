package responses

// requestIDHeader mirrors the header set by the RequestID middleware.
const requestIDHeader = "X-Request-Id"

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-visible part of a failed call. RequestID lets
// callers quote the failing request when reporting sync problems.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
