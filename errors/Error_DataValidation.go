package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RejectCode is the reject code reported to a peer for a rejected block or transaction.
type RejectCode uint32

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43

	// codes >= RejectInternal are never sent over the network
	RejectInternal     RejectCode = 0x100
	RejectHighFee      RejectCode = 0x100
	RejectAlreadyKnown RejectCode = 0x101
	RejectConflict     RejectCode = 0x102
)

// ValidationErrData is attached to every consensus or policy rejection.
type ValidationErrData struct {
	DoS                int        `json:"dos"`
	RejectCode         RejectCode `json:"reject_code"`
	RejectReason       string     `json:"reject_reason"`
	CorruptionPossible bool       `json:"corruption_possible"`
}

func (v *ValidationErrData) Error() string {
	return fmt.Sprintf("%s (code 0x%02x, dos %d)", v.RejectReason, uint32(v.RejectCode), v.DoS)
}

func (v *ValidationErrData) GetData(key string) interface{} {
	switch key {
	case "dos":
		return v.DoS
	case "reject_code":
		return v.RejectCode
	case "reject_reason":
		return v.RejectReason
	case "corruption_possible":
		return v.CorruptionPossible
	default:
		return nil
	}
}

func (v *ValidationErrData) SetData(key string, value interface{}) {
	switch key {
	case "dos":
		if i, ok := value.(int); ok {
			v.DoS = i
		}
	case "reject_code":
		if c, ok := value.(RejectCode); ok {
			v.RejectCode = c
		}
	case "reject_reason":
		if s, ok := value.(string); ok {
			v.RejectReason = s
		}
	case "corruption_possible":
		if b, ok := value.(bool); ok {
			v.CorruptionPossible = b
		}
	}
}

func (v *ValidationErrData) EncodeErrorData() []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte{}
	}

	return data
}

// NewInvalid creates a rejection error. The reject reason sent to peers is the formatted
// message up to the first colon or comma, e.g. "bad-txns-vin-empty".
func NewInvalid(code ERR, dos int, rejectCode RejectCode, reason string, params ...interface{}) *Error {
	e := New(code, reason, params...)

	return e.WithData(&ValidationErrData{
		DoS:          dos,
		RejectCode:   rejectCode,
		RejectReason: rejectReasonFromMessage(e.message),
	})
}

// NewCorruptionPossibleError is a rejection caused by data that may have been mutated
// in transit. The object must not be marked permanently invalid.
func NewCorruptionPossibleError(code ERR, dos int, rejectCode RejectCode, reason string, params ...interface{}) *Error {
	e := NewInvalid(code, dos, rejectCode, reason, params...)
	if vd, ok := e.data.(*ValidationErrData); ok {
		vd.CorruptionPossible = true
	}

	return e
}

func rejectReasonFromMessage(message string) string {
	if i := strings.IndexAny(message, ":,"); i >= 0 {
		message = message[:i]
	}

	return strings.TrimSpace(message)
}
