package envelope

import "fmt"

// DecodeErrorKind distinguishes why a Decode call failed.
type DecodeErrorKind string

const (
	// SchemaMismatch means the discriminator fields selected a concrete
	// type, but the payload does not satisfy that type's required fields.
	SchemaMismatch DecodeErrorKind = "schema_mismatch"
	// UnknownEnum means an enum-valued field held a string outside its
	// declared value set.
	UnknownEnum DecodeErrorKind = "unknown_enum"
)

// DecodeError reports a failed envelope decode with enough structure for
// callers to log and branch on (errors.As), per the error taxonomy in the
// propagation policy.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope: %s: field %q value %q: %v", e.Kind, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("envelope: %s: field %q value %q", e.Kind, e.Field, e.Value)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func unknownEnum(field, value string) *DecodeError {
	return &DecodeError{Kind: UnknownEnum, Field: field, Value: value}
}

func schemaMismatch(field, value string, err error) *DecodeError {
	return &DecodeError{Kind: SchemaMismatch, Field: field, Value: value, Err: err}
}

// enum marshal/unmarshal helpers shared by the enum types in enums.go.

func marshalEnum(s string) ([]byte, error) {
	return []byte(`"` + s + `"`), nil
}
