package model

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// Message is the only human-readable field; internals are never included.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
