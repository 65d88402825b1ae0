package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures so callers can decide whether to alert,
// log, or abort.
type ErrorType string

const (
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeDelivery    ErrorType = "delivery"
	ErrorTypeConfig      ErrorType = "config"
)

// DomainError is a typed error with optional cause and context.
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same Type, so errors.Is(err, ErrPersistence) works.
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds a key/value pair and returns the same error.
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewTransportError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTransport, message, cause)
}

func NewProtocolError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProtocol, message, cause)
}

func NewPersistenceError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePersistence, message, cause)
}

func NewDeliveryError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeDelivery, message, cause)
}

func NewConfigError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConfig, message, cause)
}

// Sentinels for errors.Is comparisons.
var (
	ErrTransport   = &DomainError{Type: ErrorTypeTransport}
	ErrProtocol    = &DomainError{Type: ErrorTypeProtocol}
	ErrPersistence = &DomainError{Type: ErrorTypePersistence}
	ErrDelivery    = &DomainError{Type: ErrorTypeDelivery}
	ErrConfig      = &DomainError{Type: ErrorTypeConfig}
)

// TypeOf returns the ErrorType of the first DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}
