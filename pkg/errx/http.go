package errx

// HTTPErrorResponse is the JSON body rendered for an Error.
type HTTPErrorResponse struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"status_code"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse. A missing status
// falls back to the type's default.
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	status := e.HTTPStatus
	if status == 0 {
		status = e.Type.Status()
	}
	return HTTPErrorResponse{
		Code:       e.Code,
		Message:    e.Message,
		Type:       string(e.Type),
		Details:    e.Details,
		StatusCode: status,
	}
}
