package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the error type returned across the node. It carries a code from the ERR
// enum, a message, an optional cause and an optional data payload such as the
// reject code and ban score of a rejected block or transaction.
type Error struct {
	code       ERR
	message    string
	wrappedErr error
	data       ErrDataI
}

func (e *Error) Error() string {
	// wrapped sentinels may be typed nil pointers
	if e == nil {
		return "<nil>"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (%d): %s", e.code.Enum(), e.code, e.message)

	if e.wrappedErr != nil {
		fmt.Fprintf(&sb, " -> %v", e.wrappedErr)
	}

	if e.data != nil {
		fmt.Fprintf(&sb, " [%s]", strings.TrimSpace(e.data.Error()))
	}

	return sb.String()
}

// Is matches on the error code anywhere in the chain of wrapped *Error values. A
// foreign target matches when its text is part of the message.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	t, ok := target.(*Error)
	if !ok {
		return strings.Contains(e.Error(), target.Error())
	}

	for cur := e; cur != nil; {
		if cur.code == t.code {
			return true
		}

		next, ok := cur.wrappedErr.(*Error)
		if !ok {
			return false
		}

		cur = next
	}

	return false
}

// As also looks into the data payload, so errors.As can extract ValidationErrData.
func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	if t, ok := target.(**Error); ok {
		*t = e
		return true
	}

	if e.data != nil && errors.As(e.data, target) {
		return true
	}

	if inner, ok := e.wrappedErr.(*Error); ok {
		return inner != nil && inner.As(target)
	}

	return e.wrappedErr != nil && errors.As(e.wrappedErr, target)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

func (e *Error) Code() ERR {
	if e == nil {
		return ERR_UNKNOWN
	}

	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}

	return e.message
}

func (e *Error) Data() ErrDataI {
	if e == nil {
		return nil
	}

	return e.data
}

func (e *Error) SetData(key string, value interface{}) {
	if e.data == nil {
		e.data = &ErrData{}
	}

	e.data.SetData(key, value)
}

func (e *Error) GetData(key string) interface{} {
	if e.data == nil {
		return nil
	}

	return e.data.GetData(key)
}

// WithData replaces the data payload of the error and returns it for chaining.
func (e *Error) WithData(data ErrDataI) *Error {
	e.data = data
	return e
}

// New formats message with params. A trailing error in params becomes the cause;
// causes that are not *Error are flattened to their text.
func New(code ERR, message string, params ...interface{}) *Error {
	var cause error

	if n := len(params); n > 0 {
		switch err := params[n-1].(type) {
		case *Error:
			cause = err
			params = params[:n-1]
		case error:
			cause = &Error{code: ERR_ERROR, message: err.Error()}
			params = params[:n-1]
		}
	}

	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	if _, ok := ERR_name[int32(code)]; !ok {
		message = "invalid error code"
	}

	return &Error{code: code, message: message, wrappedErr: cause}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// AsData finds a data payload of the type target points to in the chain of err.
func AsData(err error, target interface{}) bool {
	for {
		e, ok := err.(*Error)
		if !ok || e == nil {
			return false
		}

		if e.data != nil && errors.As(e.data, target) {
			return true
		}

		err = e.wrappedErr
	}
}
