package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ErrDataI is the payload an *Error can carry. Payloads are JSON encoded so they
// survive being written to logs or handed to another process.
type ErrDataI interface {
	EncodeErrorData() []byte
	Error() string
	GetData(key string) interface{}
	SetData(key string, value interface{})
}

// ErrData is a free form key/value payload.
type ErrData map[string]interface{}

// Error lists the keys in sorted order.
func (e *ErrData) Error() string {
	if e == nil || len(*e) == 0 {
		return ""
	}

	keys := make([]string, 0, len(*e))
	for k := range *e {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, (*e)[k])
	}

	return strings.Join(parts, " ")
}

func (e *ErrData) SetData(key string, value interface{}) {
	if e == nil {
		return
	}

	if *e == nil {
		*e = ErrData{}
	}

	(*e)[key] = value
}

func (e *ErrData) GetData(key string) interface{} {
	if e == nil {
		return nil
	}

	return (*e)[key]
}

func (e *ErrData) EncodeErrorData() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte{}
	}

	return data
}

// GetErrorData decodes a payload produced by EncodeErrorData. Rejection codes decode
// into ValidationErrData, everything else into ErrData.
func GetErrorData(code ERR, dataBytes []byte) (ErrDataI, error) {
	var errData ErrDataI = &ErrData{}

	if IsInvalidCode(code) {
		errData = &ValidationErrData{}
	}

	err := json.Unmarshal(dataBytes, errData)

	return errData, err
}
