// Package errors provides the typed failure taxonomy of the graph mapper.
// Every error here is raised at the point of detection and propagates
// unchanged through the pipeline; no stage downgrades a typed failure into a
// partial result. Errors name the offending type and property wherever known,
// to make debugging a mis-registered type tractable.
package errors

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotFound is a sentinel error returned by lookup operations when no
// record matching the criteria exists in the database.
var ErrNotFound = errors.New("record not found")

// UnsupportedQueryShapeError reports a query operator or expression shape
// that has no Cypher compilation rule. It is raised at compile time; the
// compiler never silently degrades to a wrong query.
type UnsupportedQueryShapeError struct {
	// Shape describes the offending operator or expression.
	Shape string
	// Reason explains why no compilation rule applies.
	Reason string
}

func (e *UnsupportedQueryShapeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported query shape: %s", e.Shape)
	}
	return fmt.Sprintf("unsupported query shape: %s: %s", e.Shape, e.Reason)
}

// NewUnsupportedQueryShape builds an UnsupportedQueryShapeError from the
// offending shape and a formatted reason.
func NewUnsupportedQueryShape(shape, format string, args ...any) error {
	return &UnsupportedQueryShapeError{Shape: shape, Reason: fmt.Sprintf(format, args...)}
}

// MissingSerializerError reports that a nested or element type has no
// registered serializer and none could be derived. Fatal for the call.
type MissingSerializerError struct {
	Type reflect.Type
}

func (e *MissingSerializerError) Error() string {
	return fmt.Sprintf("no serializer registered for type %s", typeName(e.Type))
}

// NewMissingSerializer builds a MissingSerializerError for the given type.
func NewMissingSerializer(t reflect.Type) error {
	return &MissingSerializerError{Type: t}
}

// RequiredPropertyMissingError reports that a non-nullable property has no
// value in the wire representation. Fatal for that entity's reconstruction.
type RequiredPropertyMissingError struct {
	Type     reflect.Type
	Property string
}

func (e *RequiredPropertyMissingError) Error() string {
	return fmt.Sprintf("required property %q of type %s has no value in the stored representation",
		e.Property, typeName(e.Type))
}

// NewRequiredPropertyMissing builds a RequiredPropertyMissingError.
func NewRequiredPropertyMissing(t reflect.Type, property string) error {
	return &RequiredPropertyMissingError{Type: t, Property: property}
}

// MalformedRecordError reports a result record lacking an expected structural
// key for its dispatch branch ("Node", "StartNode", ...). Malformed records
// are a hard error, never silently skipped.
type MalformedRecordError struct {
	// Expected is the structural key the dispatch branch required.
	Expected string
	// Keys are the keys actually present on the record.
	Keys []string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: expected key %q, record has keys %v", e.Expected, e.Keys)
}

// NewMalformedRecord builds a MalformedRecordError.
func NewMalformedRecord(expected string, keys []string) error {
	return &MalformedRecordError{Expected: expected, Keys: keys}
}

// ConversionError reports that a wire value could not be mapped to the
// requested target type. It names both sides.
type ConversionError struct {
	// From describes the wire value's type.
	From string
	// To is the requested target type.
	To reflect.Type
	// Cause carries an underlying parse failure, when any.
	Cause error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert wire value of type %s to %s", e.From, typeName(e.To))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// NewConversion builds a ConversionError from a wire value and target type.
func NewConversion(from any, to reflect.Type, cause error) error {
	fromName := "<nil>"
	if from != nil {
		fromName = reflect.TypeOf(from).String()
	}
	return &ConversionError{From: fromName, To: to, Cause: cause}
}

// UnsupportedTypeError reports a Go value whose type the value bridge cannot
// represent on the wire.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("type %s has no wire representation", typeName(e.Type))
}

// NewUnsupportedType builds an UnsupportedTypeError for the given type.
func NewUnsupportedType(t reflect.Type) error {
	return &UnsupportedTypeError{Type: t}
}

// CannotMaterializeError reports that the generic fallback construction could
// not produce a value of the requested type, naming the unmatched field.
type CannotMaterializeError struct {
	Type  reflect.Type
	Field string
}

func (e *CannotMaterializeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot materialize type %s from query result", typeName(e.Type))
	}
	return fmt.Sprintf("cannot materialize type %s: no value for field %q and no usable default",
		typeName(e.Type), e.Field)
}

// NewCannotMaterialize builds a CannotMaterializeError.
func NewCannotMaterialize(t reflect.Type, field string) error {
	return &CannotMaterializeError{Type: t, Field: field}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsMissingSerializer reports whether err is, or wraps, a
// MissingSerializerError.
func IsMissingSerializer(err error) bool {
	var target *MissingSerializerError
	return errors.As(err, &target)
}

// IsConversion reports whether err is, or wraps, a ConversionError.
func IsConversion(err error) bool {
	var target *ConversionError
	return errors.As(err, &target)
}

// IsUnsupportedQueryShape reports whether err is, or wraps, an
// UnsupportedQueryShapeError.
func IsUnsupportedQueryShape(err error) bool {
	var target *UnsupportedQueryShapeError
	return errors.As(err, &target)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
