package rates

import (
	"errors"
	"fmt"
)

// Kind classifies failures raised while acquiring or converting rates.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindParseFailure    Kind = "parse_failure"
	KindMissingCurrency Kind = "missing_currency"
	KindBaseUnavailable Kind = "base_unavailable"
	KindInvalidConfig   Kind = "invalid_config"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrParseFailure    = &Error{Kind: KindParseFailure}
	ErrMissingCurrency = &Error{Kind: KindMissingCurrency}
	ErrBaseUnavailable = &Error{Kind: KindBaseUnavailable}
	ErrInvalidConfig   = &Error{Kind: KindInvalidConfig}
)

// Error carries the failure kind, the operation that raised it and, when relevant,
// the currency involved.
type Error struct {
	Kind     Kind
	Op       string
	Currency string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Currency != "" {
		msg += " " + e.Currency
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NetworkError wraps a transport or status failure.
func NetworkError(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// ParseFailure reports a body that yielded no usable rates.
func ParseFailure(op string, err error) error {
	return &Error{Kind: KindParseFailure, Op: op, Err: err}
}

// MissingCurrency reports a currency absent from a snapshot.
func MissingCurrency(op, code string) error {
	return &Error{Kind: KindMissingCurrency, Op: op, Currency: code}
}

// BaseUnavailable reports a requested base that cannot anchor a conversion.
func BaseUnavailable(code string) error {
	return &Error{Kind: KindBaseUnavailable, Op: "normalize", Currency: code}
}

// InvalidConfig reports malformed configuration or alert fields.
func InvalidConfig(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind of err, or "" when err is not a rates error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
