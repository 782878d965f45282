package errx

// Type represents the category of error
type Type string

const (
	// TypeInternal is a failure inside the process
	TypeInternal Type = "INTERNAL"

	// TypeValidation is a rejected input
	TypeValidation Type = "VALIDATION"

	// TypeNotFound is a missing resource
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict is an operation that does not fit the resource's current state
	TypeConflict Type = "CONFLICT"

	// TypeExternal is an unavailable backing service
	TypeExternal Type = "EXTERNAL"
)

func (t Type) String() string {
	return string(t)
}

// Status maps a type to its default HTTP status code.
func (t Type) Status() int {
	switch t {
	case TypeValidation:
		return 400
	case TypeNotFound:
		return 404
	case TypeConflict:
		return 409
	case TypeExternal:
		return 502
	default:
		return 500
	}
}
