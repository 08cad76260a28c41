package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *ServiceError
		code   Code
		status int
	}{
		{"bad request", BadRequest("x"), CodeBadRequest, http.StatusBadRequest},
		{"unauthorized", Unauthorized("x"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), CodeForbidden, http.StatusForbidden},
		{"not found", NotFound("vault"), CodeNotFound, http.StatusNotFound},
		{"rate limited", RateLimitExceeded(10, "1s"), CodeRateLimited, http.StatusTooManyRequests},
		{"contract read", ContractRead(stderrors.New("revert")), CodeContractRead, http.StatusBadGateway},
		{"transaction", Transaction(stderrors.New("user rejected")), CodeTransactionFailed, http.StatusBadGateway},
		{"submission", SubmissionFailed(stderrors.New("503")), CodeSubmissionFailed, http.StatusBadGateway},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.status)
			}
		})
	}
}

func TestTransactionKeepsRawMessage(t *testing.T) {
	err := Transaction(stderrors.New("execution reverted: buffer too low"))
	if err.Message != "execution reverted: buffer too low" {
		t.Fatalf("Message = %q", err.Message)
	}
}

func TestSubmissionFailedHidesCause(t *testing.T) {
	err := SubmissionFailed(stderrors.New("api key invalid"))
	if err.Message != "submission failed" {
		t.Fatalf("Message = %q, want generic text", err.Message)
	}
	if !stderrors.Is(err, err.Err) {
		t.Fatal("cause should be reachable through Unwrap")
	}
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("policy"))
	se, ok := As(wrapped)
	if !ok {
		t.Fatal("As() did not find ServiceError")
	}
	if se.Code != CodeNotFound {
		t.Fatalf("Code = %s", se.Code)
	}
	if !Is(wrapped, CodeNotFound) || Is(wrapped, CodeInternal) {
		t.Fatal("Is() mismatch")
	}
}
