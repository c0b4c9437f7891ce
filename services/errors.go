package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/school-backoffice/utils/validation"
)

var (
	// ErrNotFound is wrapped by every NotFoundError
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the caller's role may not perform the operation
	ErrForbidden = errors.New("insufficient permissions")
)

// ValidationError reports invalid input. Nothing was written.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, validation.FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field errors were collected
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a ValidationError with a single field
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// DuplicateError reports a unique constraint hit, with the value that collided
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: %s %q already exists", e.Entity, e.Field, e.Value)
}

// ReferentialBlockError means dependent rows prevent the operation
type ReferentialBlockError struct {
	Entity  string
	ID      uint
	Reasons []string
}

func (e *ReferentialBlockError) Error() string {
	return fmt.Sprintf("cannot modify %s %d: %s", e.Entity, e.ID, strings.Join(e.Reasons, ", "))
}

// TransactionFailure wraps a database error raised mid-cascade. The unit was rolled back.
type TransactionFailure struct {
	Op  string
	Err error
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransactionFailure) Unwrap() error {
	return e.Err
}

// NotFoundError names the missing entity
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvoiceStateError rejects an operation the invoice's current state does not allow
type InvoiceStateError struct {
	InvoiceID uint
	Status    string
	Op        string
}

func (e *InvoiceStateError) Error() string {
	return fmt.Sprintf("cannot %s invoice %d in status %s", e.Op, e.InvoiceID, e.Status)
}

// txFailure logs and wraps err unless it is already one of the typed errors
func txFailure(prefix, op string, err error) error {
	if isDomainError(err) {
		return err
	}
	log.Printf("%s %s rolled back: %v", prefix, op, err)
	return &TransactionFailure{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var (
		ve  *ValidationError
		de  *DuplicateError
		re  *ReferentialBlockError
		tf  *TransactionFailure
		nf  *NotFoundError
		ise *InvoiceStateError
	)
	return errors.As(err, &ve) || errors.As(err, &de) || errors.As(err, &re) ||
		errors.As(err, &tf) || errors.As(err, &nf) || errors.As(err, &ise) ||
		errors.Is(err, ErrForbidden)
}

// validateInput runs struct tag validation and converts failures to a ValidationError
func validateInput(v *validation.Validator, input interface{}) error {
	err := v.ValidateStruct(input)
	if err == nil {
		return nil
	}
	fields := validation.FormatValidationErrors(err)
	if len(fields) == 0 {
		return NewValidationError("body", err.Error())
	}
	return &ValidationError{Fields: fields}
}
