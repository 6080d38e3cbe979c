package perp

import "errors"

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindArithmetic
	KindOracle
	KindPolicy
	KindLiquidity
	KindAuthorization
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindOracle:
		return "oracle"
	case KindPolicy:
		return "policy"
	case KindLiquidity:
		return "liquidity"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Every rejection the engine produces
// wraps one of the sentinels below.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidPrice            = newError(KindValidation, "InvalidPrice", "invalid price")
	ErrInvalidPoolName         = newError(KindValidation, "InvalidPoolName", "invalid pool name")
	ErrInvalidLeverage         = newError(KindValidation, "InvalidLeverage", "invalid leverage")
	ErrInvalidCollateralAmount = newError(KindValidation, "InvalidCollateralAmount", "invalid collateral amount")
	ErrInvalidAmount           = newError(KindValidation, "InvalidAmount", "invalid amount")
	ErrInvalidAdmins           = newError(KindValidation, "InvalidAdmins", "invalid admin set")

	ErrMathOverflow = newError(KindArithmetic, "MathOverflow", "math overflow")

	ErrInvalidOraclePrice = newError(KindOracle, "InvalidOraclePrice", "invalid oracle price")
	ErrPriceTooOld        = newError(KindOracle, "PriceTooOld", "oracle price too old")

	ErrActionNotAllowed        = newError(KindPolicy, "ActionNotAllowed", "action not allowed")
	ErrPositionNotLiquidatable = newError(KindPolicy, "PositionNotLiquidatable", "position not liquidatable")
	ErrPriceSlippageExceeded   = newError(KindPolicy, "PriceSlippageExceeded", "price slippage exceeded")
	ErrSlippageExceeded        = newError(KindPolicy, "SlippageExceeded", "slippage exceeded")
	ErrMaxGlobalSizeExceeded   = newError(KindPolicy, "MaxGlobalSizeExceeded", "max global position size exceeded")

	ErrInsufficientLiquidity = newError(KindLiquidity, "InsufficientLiquidity", "insufficient liquidity")

	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "unauthorized")

	ErrNotInitialized     = newError(KindState, "NotInitialized", "perpetuals not initialized")
	ErrAlreadyInitialized = newError(KindState, "AlreadyInitialized", "perpetuals already initialized")
	ErrAlreadyExists      = newError(KindState, "AlreadyExists", "record already exists")
	ErrPositionExists     = newError(KindState, "PositionExists", "position already open")
	ErrCapacityExceeded   = newError(KindState, "CapacityExceeded", "capacity exceeded")
	ErrPoolNotFound       = newError(KindState, "PoolNotFound", "pool not found")
	ErrCustodyNotFound    = newError(KindState, "CustodyNotFound", "custody not found")
	ErrPositionNotFound   = newError(KindState, "PositionNotFound", "position not found")
)

// KindOf returns the classification of err, or KindUnknown for errors that
// did not originate in the engine.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the short code of an engine error, or "" otherwise.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
