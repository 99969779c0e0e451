package api

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	ActiveConnections int    `json:"active_connections"`
}

// LanguageOption is one entry of the widget's language selector
type LanguageOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// LanguagesResponse lists the selectable languages in display order
type LanguagesResponse struct {
	Languages []LanguageOption `json:"languages"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
