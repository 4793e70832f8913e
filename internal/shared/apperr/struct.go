package apperr

type Kind string

type AppError struct {
	Kind      Kind
	PublicMsg string            // safe to show to the caller
	Fields    map[string]string // optional per-field validation errors
	Err       error             // internal cause, logged only
}
