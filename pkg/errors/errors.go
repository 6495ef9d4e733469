package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a stable code
// that the command layer renders into a user-facing response.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	// Key layer
	ErrCodeInvalidMnemonic   = "invalid_mnemonic"
	ErrCodeDerivationFailed  = "derivation_failed"
	ErrCodeEncryptionFailed  = "encryption_failed"
	ErrCodeAuthFailure       = "authentication_failure"
	ErrCodeWalletCorrupted   = "wallet_corrupted"

	// Orchestration layer
	ErrCodeInvalidToken         = "invalid_token"
	ErrCodeUnsupportedForMarket = "unsupported_for_market"
	ErrCodeInsufficientBalance  = "insufficient_balance"
	ErrCodeApprovalFailed       = "approval_failed"
	ErrCodeCallFailed           = "call_failed"
	ErrCodeTimeout              = "timeout"

	// Session / command layer
	ErrCodeSessionExpired     = "session_expired"
	ErrCodeInvalidDestination = "invalid_destination"
	ErrCodeInvalidAmount      = "invalid_amount"
	ErrCodeWalletNotFound     = "wallet_not_found"
	ErrCodeWalletExists       = "wallet_exists"
	ErrCodeInternalError      = "internal_error"
)

// Predefined errors
var (
	ErrInvalidMnemonic = &AppError{
		Code:    ErrCodeInvalidMnemonic,
		Message: "Mnemonic phrase failed checksum validation",
	}

	ErrAuthFailure = &AppError{
		Code:    ErrCodeAuthFailure,
		Message: "Failed to authenticate encrypted key material",
	}

	ErrWalletNotFound = &AppError{
		Code:    ErrCodeWalletNotFound,
		Message: "No wallet exists for this account",
	}

	ErrWalletExists = &AppError{
		Code:    ErrCodeWalletExists,
		Message: "A wallet already exists for this account",
	}

	ErrWalletCorrupted = &AppError{
		Code:    ErrCodeWalletCorrupted,
		Message: "Wallet record is missing its authentication tag",
	}

	ErrInternalError = &AppError{
		Code:    ErrCodeInternalError,
		Message: "Internal error",
	}
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// InvalidToken creates an unsupported-token error listing what is supported
func InvalidToken(symbol string, supported []string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidToken,
		Message: fmt.Sprintf("Token %s is not supported", symbol),
		Detail:  fmt.Sprintf("supported: %v", supported),
	}
}

// UnsupportedForMarket creates an error for tokens the lending market
// does not accept even though wallet transfers do
func UnsupportedForMarket(symbol string) *AppError {
	return &AppError{
		Code:    ErrCodeUnsupportedForMarket,
		Message: fmt.Sprintf("Token %s cannot be used with the lending market", symbol),
	}
}

// InsufficientBalance creates a balance-check failure
func InsufficientBalance(symbol, have, want string) *AppError {
	return &AppError{
		Code:    ErrCodeInsufficientBalance,
		Message: fmt.Sprintf("Insufficient %s balance", symbol),
		Detail:  fmt.Sprintf("have %s, need %s", have, want),
	}
}

// ApprovalFailed wraps a failed allowance approval
func ApprovalFailed(detail string) *AppError {
	return &AppError{
		Code:    ErrCodeApprovalFailed,
		Message: "Token approval failed",
		Detail:  detail,
	}
}

// CallFailed wraps a failed on-chain call
func CallFailed(detail string) *AppError {
	return &AppError{
		Code:    ErrCodeCallFailed,
		Message: "On-chain call failed",
		Detail:  detail,
	}
}

// Timeout wraps a chain call that exceeded its deadline
func Timeout(op string) *AppError {
	return &AppError{
		Code:    ErrCodeTimeout,
		Message: "Chain call timed out",
		Detail:  op,
	}
}

// InvalidDestination creates an error for a malformed destination address
func InvalidDestination(addr string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidDestination,
		Message: "Invalid destination address",
		Detail:  addr,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
