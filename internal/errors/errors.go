// Package errors defines the service error type shared by the portal handlers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a ServiceError.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeContractRead      Code = "CONTRACT_READ_FAILED"
	CodeTransactionFailed Code = "TRANSACTION_FAILED"
	CodeSubmissionFailed  Code = "SUBMISSION_FAILED"
	CodeInternal          Code = "INTERNAL"
)

const genericSubmissionError = "submission failed"

// ServiceError is an error with an HTTP mapping.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail field and returns the same error.
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, msg string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, HTTPStatus: status, Err: err}
}

func BadRequest(msg string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, msg, nil)
}

func Unauthorized(msg string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, msg, nil)
}

func Forbidden(msg string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, msg, nil)
}

func NotFound(resource string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil)
}

// RateLimitExceeded reports that a client exceeded limit requests per window.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetail("limit", limit).
		WithDetail("window", window)
}

// ContractRead wraps a contract read failure where no fallback applies.
func ContractRead(err error) *ServiceError {
	return newError(CodeContractRead, http.StatusBadGateway, "contract read failed", err)
}

// Transaction wraps a wallet rejection or on-chain revert. The raw message is surfaced.
func Transaction(err error) *ServiceError {
	msg := "transaction failed"
	if err != nil {
		msg = err.Error()
	}
	return newError(CodeTransactionFailed, http.StatusBadGateway, msg, err)
}

// SubmissionFailed wraps a third-party HTTP failure. Only a generic message is surfaced.
func SubmissionFailed(err error) *ServiceError {
	return newError(CodeSubmissionFailed, http.StatusBadGateway, genericSubmissionError, err)
}

func Internal(msg string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, msg, err)
}

// As extracts a ServiceError from err.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Is reports whether err is a ServiceError with the given code.
func Is(err error, code Code) bool {
	se, ok := As(err)
	return ok && se.Code == code
}
