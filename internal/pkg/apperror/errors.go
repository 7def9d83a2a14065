package apperror

import (
	"errors"
	"fmt"
)

// Sentinels matched through errors.Is by every typed error below.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrGateway           = errors.New("gateway failure")
	ErrTimeout           = errors.New("gateway timeout")
	ErrValidation        = errors.New("validation failed")
)

// NotFoundError reports an unknown session or item reference.
type NotFoundError struct {
	Resource string
	Id       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Id)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, Id: id}
}

// TransitionError is raised by the store when an update would violate the item state machine.
type TransitionError struct {
	ItemId string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("item %s: invalid transition %s -> %s", e.ItemId, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// GatewayError wraps a failure of an external capability. Timeouts are a subtype:
// errors.Is(err, ErrTimeout) and errors.Is(err, ErrGateway) both hold for them.
type GatewayError struct {
	Gateway string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s gateway timed out: %v", e.Gateway, e.Err)
	}
	return fmt.Sprintf("%s gateway failed: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	errs := []error{ErrGateway}
	if e.Timeout {
		errs = append(errs, ErrTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func Gateway(gateway string, err error) error {
	return &GatewayError{Gateway: gateway, Err: err}
}

func Timeout(gateway string, err error) error {
	return &GatewayError{Gateway: gateway, Timeout: true, Err: err}
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// ValidationError rejects a malformed submission before any state is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
