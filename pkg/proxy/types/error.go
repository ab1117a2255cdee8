package types

// ErrorResponse is the OpenAI-shaped error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error classification and message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NewError builds an ErrorResponse.
func NewError(errType, message string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Type: errType, Message: message}}
}

// NewInvalidRequestError builds a 400-class error body.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{
		Type:    "invalid_request_error",
		Message: message,
		Param:   param,
		Code:    code,
	}}
}
