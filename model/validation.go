package model

type ThreatKind string

const (
	ThreatXSS           ThreatKind = "xss"
	ThreatSQLInjection  ThreatKind = "sql_injection"
	ThreatPathTraversal ThreatKind = "path_traversal"
	ThreatFlooding      ThreatKind = "character_flooding"
)

// FieldError is one itemised problem with the inbound body.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is derived deterministically from the raw message.
type ValidationResult struct {
	Safe             bool         `json:"safe"`
	SanitizedMessage string       `json:"-"`
	ThreatsDetected  []ThreatKind `json:"threats_detected,omitempty"`
}

type BodyValidation struct {
	Success bool         `json:"success"`
	Errors  []FieldError `json:"errors,omitempty"`
	Request *ChatRequest `json:"-"`
}
