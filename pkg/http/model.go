package http

// DetailResponse is the error body shape: a message string, or a list
// of validation errors for 422 responses.
type DetailResponse struct {
	Detail interface{} `json:"detail"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"prices"`
	Message string                 `json:"message,omitempty" example:"prices is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
