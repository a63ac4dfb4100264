package mpesa

import (
	"fmt"
	"strings"
)

// AuthError means the OAuth credential exchange failed.
type AuthError struct {
	Status int // 0 for transport errors
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mpesa: access token request failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("mpesa: access token request failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type ErrorCode string

const (
	CodeInvalidPhone      ErrorCode = "invalid_phone"
	CodeInsufficientFunds ErrorCode = "insufficient_funds"
	CodeCancelled         ErrorCode = "cancelled"
	CodeDeclined          ErrorCode = "declined"
	CodeGeneric           ErrorCode = "generic"
)

// RequestError means the provider rejected the push request or it never
// reached the provider. Message is the provider's human-readable text; Raw is
// the undecoded body and must only be logged.
type RequestError struct {
	Code    ErrorCode
	Message string
	Status  int
	Raw     string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("mpesa: %s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Daraja error codes surfaced on the synchronous STK push response.
var errorCodes = map[string]ErrorCode{
	"500.001.1001": CodeInsufficientFunds,
	"500.001.1002": CodeDeclined,
	"500.001.1003": CodeCancelled,
	"400.002.02":   CodeInvalidPhone,
}

func classify(errorCode, errorMessage string) ErrorCode {
	if c, ok := errorCodes[errorCode]; ok {
		return c
	}
	if strings.Contains(strings.ToLower(errorMessage), "phonenumber") {
		return CodeInvalidPhone
	}
	return CodeGeneric
}

// Result codes delivered in the asynchronous STK callback.
const (
	ResultSuccess           = 0
	ResultInsufficientFunds = 1
	ResultCancelledByUser   = 1032
	ResultUserUnreachable   = 1037
	ResultWrongPIN          = 2001
)
