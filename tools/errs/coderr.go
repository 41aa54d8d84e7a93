package errs

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError is the error type every recoverable request failure resolves to.
// Code maps directly onto the response envelope's statusCode.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: e.Detail,
	}
}

// WithDetail returns a copy carrying extra context; the original stays
// untouched so the package-level sentinels remain comparable.
func (e *CodeError) WithDetail(detail string) *CodeError {
	ret := e.clone()
	if ret.Detail == "" {
		ret.Detail = detail
	} else {
		ret.Detail += ", " + detail
	}
	return ret
}

// WrapMsg attaches context and a call stack in one step.
func (e *CodeError) WrapMsg(msg string) error {
	return errors.WithStack(e.WithDetail(msg))
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches on Code so WithDetail copies compare equal to their sentinel.
func (e *CodeError) Is(err error) bool {
	var codeErr *CodeError
	if !stderrors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

// Wrap attaches a call stack if err doesn't carry one yet.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Code extracts the status code from err. Anything that isn't a CodeError
// degrades to Unknown rather than crashing the handler.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var codeErr *CodeError
	if stderrors.As(err, &codeErr) {
		return codeErr.Code
	}
	return Unknown
}

// Message returns the client-facing description for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var codeErr *CodeError
	if stderrors.As(err, &codeErr) {
		if codeErr.Detail != "" {
			return codeErr.Msg + ": " + codeErr.Detail
		}
		return codeErr.Msg
	}
	return err.Error()
}
