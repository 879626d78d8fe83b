package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, machine-readable error type mapped to HTTP status
// classes and process exit codes.
type Kind string

const (
	KindInvalidAddress         Kind = "InvalidAddress"
	KindInvalidAmount          Kind = "InvalidAmount"
	KindInvalidSlippage        Kind = "InvalidSlippage"
	KindNoRoute                Kind = "NoRoute"
	KindUpstream               Kind = "UpstreamError"
	KindWalletSignerMismatch   Kind = "WalletSignerMismatch"
	KindSigningIdentityMissing Kind = "SigningIdentityMissing"
	KindApprovalFailed         Kind = "ApprovalFailed"
	KindIncompleteTransaction  Kind = "IncompleteTransaction"
	KindBroadcastFailed        Kind = "BroadcastFailed"
	KindUsage                  Kind = "Usage"
	KindInternal               Kind = "Internal"
)

// Error is a typed error that carries a stable kind and, for upstream
// rejections, the raw upstream payload for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Upstream builds an UpstreamError preserving the rejecting service's
// status code and raw body.
func Upstream(status int, body []byte) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: fmt.Sprintf("upstream service rejected request (status %d)", status),
		Details: string(body),
	}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps an error to its response status class: client input,
// no-liquidity, upstream rejections and signer configuration problems are
// 400-class; execution-stage and unexpected failures are 500-class.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindInvalidAddress, KindInvalidAmount, KindInvalidSlippage, KindUsage:
		return http.StatusUnprocessableEntity
	case KindNoRoute, KindUpstream, KindWalletSignerMismatch, KindSigningIdentityMissing:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps an error to a stable CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := As(err)
	if !ok {
		return 1
	}
	switch e.Kind {
	case KindInvalidAddress, KindInvalidAmount, KindInvalidSlippage, KindUsage:
		return 2
	case KindNoRoute:
		return 10
	case KindUpstream:
		return 11
	case KindWalletSignerMismatch, KindSigningIdentityMissing:
		return 12
	case KindApprovalFailed, KindIncompleteTransaction, KindBroadcastFailed:
		return 13
	default:
		return 1
	}
}
