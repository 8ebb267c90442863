package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestDelegationFailed_PreservesReason(t *testing.T) {
	cause := stderrors.New("pool: slippage exceeded")
	err := DelegationFailed(cause)

	if err.Error() != "delegation failed: pool: slippage exceeded" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !stderrors.Is(err, ErrDelegationFailed) {
		t.Error("expected error to match ErrDelegationFailed")
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if err.Details["reason"] != "pool: slippage exceeded" {
		t.Errorf("reason detail = %v", err.Details["reason"])
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("status = %d", err.HTTPStatus)
	}
}

func TestIs_MatchesByCode(t *testing.T) {
	tests := []struct {
		err    error
		target error
		want   bool
	}{
		{Unauthorized("not owner"), ErrUnauthorized, true},
		{ReentrantCall(), ErrReentrantCall, true},
		{ReentrantCall(), ErrUnauthorized, false},
		{TransferFailed("NEO", nil), ErrTransferFailed, true},
		{InvalidArgument("amount", "must be positive"), ErrInvalidArgument, true},
		{fmt.Errorf("wrapped: %w", NotFound("receipt", "x")), ErrNotFound, true},
		{stderrors.New("plain"), ErrInternal, false},
	}

	for _, tc := range tests {
		if got := stderrors.Is(tc.err, tc.target); got != tc.want {
			t.Errorf("Is(%v, %v) = %v, want %v", tc.err, tc.target, got, tc.want)
		}
	}
}

func TestWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := InvalidArgument("owner", "zero address")
	extended := base.WithDetails("value", "0x00")

	if _, ok := base.Details["value"]; ok {
		t.Error("original error was mutated")
	}
	if extended.Details["value"] != "0x00" || extended.Details["field"] != "owner" {
		t.Errorf("unexpected details %v", extended.Details)
	}
}

func TestGetServiceErrorAndCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("call: %w", Unauthorized("not self-invoked"))
	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatal("expected service error")
	}
	if se.Message != "unauthorized: not self-invoked" {
		t.Errorf("message = %q", se.Message)
	}
	if CodeOf(wrapped) != ErrCodeUnauthorized {
		t.Errorf("CodeOf = %s", CodeOf(wrapped))
	}
	if CodeOf(stderrors.New("x")) != ErrCodeInternal {
		t.Error("unclassified errors should map to internal")
	}
	if GetServiceError(nil) != nil {
		t.Error("nil error should yield nil")
	}
}

func TestNotFound_Message(t *testing.T) {
	if got := NotFound("contract", "").Error(); got != "contract not found" {
		t.Errorf("got %q", got)
	}
	if got := NotFound("receipt", "abc").Error(); got != `receipt "abc" not found` {
		t.Errorf("got %q", got)
	}
}
