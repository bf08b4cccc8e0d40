package cmdline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code is an error code in a command result.
type Code int

// Code values.
const (
	CodeWrongFormat Code = iota + 1
	CodeUnknownCommand
	CodeNoParam
	CodeInvalidType
	CodeInvalidValue
	CodeFailed
)

var codeNames = map[Code]string{
	CodeWrongFormat:    "WRONG_FORMAT",
	CodeUnknownCommand: "UNKNOWN_CMD",
	CodeNoParam:        "NO_PARAM",
	CodeInvalidType:    "INVALID_TYPE",
	CodeInvalidValue:   "INVALID_VALUE",
	CodeFailed:         "FAILED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("%d", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	for code, name := range codeNames {
		if name == string(text) {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("unknown result code %q", text)
}

// Error is a command error with a result code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func errorf(code Code, format string, a ...any) *Error {
	return newError(code, fmt.Errorf(format, a...))
}

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result is the reply of a command that has no other output.
type Result struct {
	Result       string        `json:"result"`
	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`
}

// ErrorDetails describes a failed command.
type ErrorDetails struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Err converts a failed Result to an error.
func (res Result) Err() error {
	if res.Result == ResultSuccess {
		return nil
	}
	if res.ErrorDetails == nil {
		return errors.New(res.Result)
	}
	return &Error{Code: res.ErrorDetails.Code, Err: errors.New(res.ErrorDetails.Message)}
}

// NewResult creates a Result from an error.
// Errors other than *Error are reported as CodeFailed.
func NewResult(e error) (res Result) {
	if e == nil {
		return Result{Result: ResultSuccess}
	}
	code := CodeFailed
	if ce := (*Error)(nil); errors.As(e, &ce) {
		code = ce.Code
	}
	return Result{
		Result:       ResultError,
		ErrorDetails: &ErrorDetails{Code: code, Message: e.Error()},
	}
}

func marshal(v any) []byte {
	j, e := json.Marshal(v)
	if e != nil {
		j, _ = json.Marshal(NewResult(e))
	}
	return j
}
