package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the fault taxonomy used across the
// checkout engine. Only Upstream and Internal surface as server faults.
type Kind int

const (
	Validation Kind = iota
	NotFound
	Conflict
	Range
	Upstream
	Internal
)

// Stable machine-readable codes returned to callers.
const (
	CodeNoFulfillmentCenter = "NoFulfillmentCenterAvailable"
	CodeAddressUnresolvable = "AddressUnresolvable"
	CodeOutOfDeliveryRange  = "OutOfDeliveryRange"
	CodeInvalidPaymentSplit = "InvalidPaymentSplit"
	CodeInvalidTransition   = "InvalidTransition"
	CodePaymentNotConfirmed = "PaymentNotConfirmed"
	CodeOrderNotFound       = "OrderNotFound"
	CodeOrderNotEditable    = "OrderNotEditable"
	CodeCompanyNotFound     = "CompanyNotFound"
	CodeItemNotFound        = "ItemNotFound"
	CodeItemUnavailable     = "ItemUnavailable"
	CodeInvalidPayload      = "InvalidPayload"
	CodeProviderFailure     = "ProviderFailure"
)

// Error carries a taxonomy kind, a stable code, and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and code.
func New(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// CodeOf extracts the stable code from err, or an empty string.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps the taxonomy to HTTP status codes. Client faults stay in
// the 4xx range; only upstream and internal faults map to 5xx.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Range:
		return http.StatusUnprocessableEntity
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
