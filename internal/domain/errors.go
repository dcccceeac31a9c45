package domain

import "errors"

var (
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrInvalidToken           = errors.New("invalid token")
	ErrInvalidMessage         = errors.New("transfer message must be empty")
	ErrInsufficientBalance    = errors.New("insufficient staked balance")
	ErrCooldownActive         = errors.New("cooldown is active")
	ErrCallbackArityViolation = errors.New("withdrawal callback must carry exactly one result")

	ErrInsufficientDelegation   = errors.New("insufficient delegated amount")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInvalidAccount           = errors.New("invalid account id")
	ErrAccountNotFound          = errors.New("account not found")
	ErrAmountOverflow           = errors.New("amount overflow")
	ErrWithdrawalNotFound       = errors.New("pending withdrawal not found")
	ErrUnauthorizedCallback     = errors.New("withdrawal callback may only be invoked by the contract itself")
	ErrInvalidOutcome           = errors.New("unknown transfer outcome")
	ErrUnsupportedSchemaVersion = errors.New("unsupported account schema version")
	ErrNotInitialized           = errors.New("staking state is not initialized")

	// ErrTransferOutcomeUnknown means a custody call ended without telling
	// whether the token moved.
	ErrTransferOutcomeUnknown = errors.New("transfer outcome unknown")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotOwner, "NOT_OWNER"},
	{ErrInvalidToken, "INVALID_TOKEN"},
	{ErrInvalidMessage, "INVALID_MESSAGE"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrCooldownActive, "COOLDOWN_ACTIVE"},
	{ErrCallbackArityViolation, "CALLBACK_ARITY_VIOLATION"},
	{ErrInsufficientDelegation, "INSUFFICIENT_DELEGATION"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInvalidAccount, "INVALID_ACCOUNT"},
	{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
	{ErrAmountOverflow, "AMOUNT_OVERFLOW"},
	{ErrWithdrawalNotFound, "WITHDRAWAL_NOT_FOUND"},
	{ErrUnauthorizedCallback, "UNAUTHORIZED_CALLBACK"},
	{ErrInvalidOutcome, "INVALID_OUTCOME"},
	{ErrUnsupportedSchemaVersion, "UNSUPPORTED_SCHEMA_VERSION"},
	{ErrNotInitialized, "NOT_INITIALIZED"},
	{ErrTransferOutcomeUnknown, "TRANSFER_OUTCOME_UNKNOWN"},
}

// ErrorCode returns a stable machine readable code for err, or "INTERNAL".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL"
}

// IsContractViolation reports whether err means the custody boundary broke its
// exactly-one-result contract.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrCallbackArityViolation) || errors.Is(err, ErrInvalidOutcome)
}
